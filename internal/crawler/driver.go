package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/checkpoint"
	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/monitoring"
	"github.com/user/news-ingest/internal/source"
)

// Fetcher issues polite, retried requests. Implemented by fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) domain.FetchResult
}

// ArticleStore is the slice of the persistent store the driver needs.
type ArticleStore interface {
	FilterNew(ctx context.Context, urls []string) (map[string]bool, error)
	UpsertBatch(ctx context.Context, records []domain.ArticleRecord) (int, error)
}

// Cache mirrors committed articles locally. Append failures are logged and
// swallowed; the persistent store stays authoritative.
type Cache interface {
	Append(sourceID string, records []domain.ArticleRecord) error
}

// driver walks one source's unit sequence from its checkpoint to the end of
// the range. Units are strictly sequential; only article extraction inside
// a unit fans out. The checkpoint moves forward exclusively here, and only
// after a unit's articles are committed.
type driver struct {
	src         config.SourceConfig
	parser      source.ArchiveParser
	fetcher     Fetcher
	pool        *extractPool
	store       ArticleStore
	cache       Cache
	checkpoints checkpoint.Store
	metrics     *monitoring.Metrics
	logger      *zap.Logger
	publish     func(domain.SourceReport)
	now         func() time.Time
}

func (d *driver) run(ctx context.Context) domain.SourceReport {
	report := domain.SourceReport{SourceID: d.src.ID, MediaName: d.src.MediaName}

	cp, resumed, err := d.checkpoints.Load(ctx, d.src.ID)
	if err != nil {
		return d.fail(report, "loading checkpoint", err)
	}
	if resumed {
		report.LastCheckpoint = cp.LastKey
		d.logger.Info("resuming after checkpoint", zap.String("last_unit", cp.LastKey))
	}

	units, err := newEnumerator(d.src, cp, resumed, d.now())
	if err != nil {
		return d.fail(report, "enumerating work", err)
	}

	emptyLimit := 0
	if stopper, ok := d.parser.(source.EmptyPageStopper); ok {
		emptyLimit = stopper.EmptyPageLimit()
	}
	emptyRun := 0

	for {
		item, ok := units.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return d.fail(report, "run interrupted", err)
		}

		item.Attempts++
		d.transition(&item, domain.UnitInProgress)
		report.CurrentUnit = item.Key
		d.post(report)

		links, archiveErr := d.fetchArchive(ctx, item)
		if errors.Is(archiveErr, source.ErrEndOfArchive) {
			d.logger.Info("reached end of archive", zap.String("unit", item.Key))
			break
		}
		if archiveErr != nil {
			var afe *source.ArchiveFetchError
			if errors.As(archiveErr, &afe) {
				report.ArchiveFailures++
				d.count(monitoring.OutcomeArchiveFailure)
				d.logger.Warn("archive page unavailable, moving on",
					zap.String("unit", item.Key), zap.Error(archiveErr))
			} else {
				report.ParseFailures++
				d.count(monitoring.OutcomeParseFailure)
				d.logger.Warn("archive page did not parse, moving on",
					zap.String("unit", item.Key), zap.Error(archiveErr))
			}
			links = nil
		}

		report.Candidates += len(links)
		if d.metrics != nil {
			d.metrics.AddCandidates(d.src.ID, len(links))
		}

		fresh, err := d.dropKnown(ctx, links, &report)
		if err != nil {
			d.transition(&item, domain.UnitFailed)
			return d.fail(report, "deduplicating candidates", err)
		}

		records := d.extract(ctx, item, fresh, &report)
		if err := ctx.Err(); err != nil {
			d.transition(&item, domain.UnitFailed)
			return d.fail(report, "run interrupted", err)
		}

		if err := d.commit(ctx, item, records, &report); err != nil {
			d.transition(&item, domain.UnitFailed)
			return d.fail(report, "committing unit", err)
		}
		d.transition(&item, domain.UnitDone)
		d.post(report)

		if emptyLimit > 0 {
			if archiveErr == nil && len(links) == 0 {
				emptyRun++
				if emptyRun >= emptyLimit {
					d.logger.Info("archive exhausted after consecutive empty pages",
						zap.Int("empty_pages", emptyRun))
					break
				}
			} else if len(links) > 0 {
				emptyRun = 0
			}
		}
	}

	report.CurrentUnit = ""
	report.UpdatedAt = d.now()
	d.post(report)
	d.logger.Info("source run finished",
		zap.Int("units", report.UnitsCompleted),
		zap.Int("candidates", report.Candidates),
		zap.Int("ingested", report.Ingested),
		zap.Int("duplicates", report.Duplicates))
	return report
}

// fetchArchive retrieves and parses one listing page.
func (d *driver) fetchArchive(ctx context.Context, item domain.WorkItem) ([]domain.CandidateLink, error) {
	url := d.parser.ArchiveURL(item)
	d.logger.Debug("fetching archive page", zap.String("unit", item.Key), zap.String("url", url))
	res := d.fetcher.Fetch(ctx, url)
	return d.parser.ParseArchive(res, item)
}

// dropKnown strips URLs the store has already ingested.
func (d *driver) dropKnown(ctx context.Context, links []domain.CandidateLink, report *domain.SourceReport) ([]domain.CandidateLink, error) {
	if len(links) == 0 {
		return nil, nil
	}
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	isNew, err := d.store.FilterNew(ctx, urls)
	if err != nil {
		return nil, err
	}
	fresh := make([]domain.CandidateLink, 0, len(links))
	for _, l := range links {
		if isNew[l.URL] {
			fresh = append(fresh, l)
		}
	}
	dups := len(links) - len(fresh)
	report.Duplicates += dups
	if d.metrics != nil {
		d.metrics.AddDuplicates(d.src.ID, dups)
	}
	if dups > 0 {
		d.logger.Debug("skipping already-ingested articles", zap.Int("count", dups))
	}
	return fresh, nil
}

// extract runs the pool over fresh candidates and tallies terminal outcomes.
func (d *driver) extract(ctx context.Context, item domain.WorkItem, fresh []domain.CandidateLink, report *domain.SourceReport) []domain.ArticleRecord {
	var records []domain.ArticleRecord
	for _, out := range d.pool.run(ctx, fresh) {
		switch out.kind {
		case outcomeRecord:
			records = append(records, out.record)
		case outcomePermanent:
			report.PermanentFails++
			d.count(monitoring.OutcomePermanentFailure)
		case outcomeEmpty:
			report.EmptySkipped++
			d.count(monitoring.OutcomeEmptyContent)
		case outcomeParseFailure:
			report.ParseFailures++
			d.count(monitoring.OutcomeParseFailure)
		}
	}
	if len(records) > 0 {
		d.logger.Debug("unit extraction done",
			zap.String("unit", item.Key), zap.Int("articles", len(records)))
	}
	return records
}

// commit writes the unit's records, mirrors them to the cache, and advances
// the checkpoint. Any store or checkpoint failure aborts before the advance
// so the next run replays this unit.
func (d *driver) commit(ctx context.Context, item domain.WorkItem, records []domain.ArticleRecord, report *domain.SourceReport) error {
	written, err := d.store.UpsertBatch(ctx, records)
	if err != nil {
		return err
	}
	report.Ingested += written
	if raced := len(records) - written; raced > 0 {
		// Another writer got there first; conflicting rows count as dupes.
		report.Duplicates += raced
		if d.metrics != nil {
			d.metrics.AddDuplicates(d.src.ID, raced)
		}
	}
	if d.metrics != nil {
		d.metrics.AddIngested(d.src.ID, written)
	}

	if d.cache != nil && len(records) > 0 {
		if err := d.cache.Append(d.src.ID, records); err != nil {
			d.logger.Warn("cache append failed", zap.String("unit", item.Key), zap.Error(err))
		}
	}

	if err := d.checkpoints.Advance(ctx, d.src.ID, item.Key); err != nil {
		return fmt.Errorf("advancing checkpoint: %w", err)
	}
	report.UnitsCompleted++
	report.LastCheckpoint = item.Key
	if d.metrics != nil {
		d.metrics.IncUnitCompleted(d.src.ID)
		d.metrics.SetCheckpointSeq(d.src.ID, checkpointGauge(item))
	}
	d.logger.Info("unit committed",
		zap.String("unit", item.Key),
		zap.Int("written", written),
		zap.Int("records", len(records)))
	return nil
}

// transition moves a unit through the pending/in-progress/done/failed
// lifecycle and leaves a trace of it.
func (d *driver) transition(item *domain.WorkItem, status domain.WorkItemStatus) {
	item.Status = status
	d.logger.Debug("unit state",
		zap.String("unit", item.Key),
		zap.String("state", string(status)),
		zap.Int("attempt", item.Attempts))
}

func (d *driver) count(reason string) {
	if d.metrics != nil {
		d.metrics.IncOutcome(d.src.ID, reason)
	}
}

func (d *driver) post(report domain.SourceReport) {
	if d.publish != nil {
		report.UpdatedAt = d.now()
		d.publish(report)
	}
}

func (d *driver) fail(report domain.SourceReport, stage string, err error) domain.SourceReport {
	report.Failed = true
	report.FailReason = fmt.Sprintf("%s: %v", stage, err)
	report.UpdatedAt = d.now()
	d.post(report)
	d.logger.Error("source run aborted", zap.String("stage", stage), zap.Error(err))
	return report
}

// checkpointGauge maps a unit to a monotonic progress value: the page number
// for paged sources, the epoch day for daily ones.
func checkpointGauge(item domain.WorkItem) int {
	if item.Page > 0 {
		return item.Page
	}
	return int(item.Date.Unix() / 86400)
}
