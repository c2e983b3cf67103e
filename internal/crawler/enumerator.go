package crawler

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

// ErrCheckpointKey reports a stored checkpoint whose key cannot be parsed
// under the source's granularity, usually left behind by a strategy change.
var ErrCheckpointKey = errors.New("checkpoint key does not match source granularity")

const dayLayout = "2006-01-02"

// enumerator yields the remaining work units for one source in order,
// strictly after the checkpoint. Paged sources without max_pages keep
// yielding until the driver sees an end-of-archive signal.
type enumerator struct {
	src   config.SourceConfig
	daily bool

	date time.Time // next day to yield
	end  time.Time

	page     int // next page to yield
	lastPage int // 0 when uncapped

	seq int
}

func newEnumerator(src config.SourceConfig, cp domain.Checkpoint, resumed bool, now time.Time) (*enumerator, error) {
	e := &enumerator{src: src, daily: src.Daily()}
	if !e.daily {
		e.page = src.StartPage
		if src.MaxPages > 0 {
			e.lastPage = src.StartPage + src.MaxPages - 1
		}
		if resumed {
			done, err := strconv.Atoi(cp.LastKey)
			if err != nil {
				return nil, fmt.Errorf("%w: source %s stores %q for a paged archive",
					ErrCheckpointKey, src.ID, cp.LastKey)
			}
			if done+1 > e.page {
				e.page = done + 1
			}
		}
		return e, nil
	}

	start, err := time.Parse(dayLayout, src.StartDate)
	if err != nil {
		return nil, fmt.Errorf("parsing start_date for %s: %w", src.ID, err)
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if src.EndDate != "" {
		if end, err = time.Parse(dayLayout, src.EndDate); err != nil {
			return nil, fmt.Errorf("parsing end_date for %s: %w", src.ID, err)
		}
	}
	if resumed {
		done, err := time.Parse(dayLayout, cp.LastKey)
		if err != nil {
			return nil, fmt.Errorf("%w: source %s stores %q for a daily archive",
				ErrCheckpointKey, src.ID, cp.LastKey)
		}
		if next := done.AddDate(0, 0, 1); next.After(start) {
			start = next
		}
	}
	e.date, e.end = start, end
	return e, nil
}

// Next returns the following unit, or false once the range is exhausted.
func (e *enumerator) Next() (domain.WorkItem, bool) {
	if e.daily {
		if e.date.After(e.end) {
			return domain.WorkItem{}, false
		}
		item := domain.WorkItem{
			SourceID: e.src.ID,
			Key:      e.date.Format(dayLayout),
			Seq:      e.seq,
			Date:     e.date,
			Status:   domain.UnitPending,
		}
		e.date = e.date.AddDate(0, 0, 1)
		e.seq++
		return item, true
	}

	if e.lastPage > 0 && e.page > e.lastPage {
		return domain.WorkItem{}, false
	}
	item := domain.WorkItem{
		SourceID: e.src.ID,
		Key:      strconv.Itoa(e.page),
		Seq:      e.seq,
		Page:     e.page,
		Status:   domain.UnitPending,
	}
	e.page++
	e.seq++
	return item, true
}
