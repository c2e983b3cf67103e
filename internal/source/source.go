// Package source turns archive listings into candidate article links and
// article pages into structured records. Three listing strategies cover
// the archive shapes in use: daily date-path archives, paginated JSON
// APIs, and category listing pages.
package source

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

// ErrEndOfArchive signals that enumeration walked past the last page the
// site has. The unit that produced it is not checkpointed.
var ErrEndOfArchive = errors.New("end of archive reached")

// ParseError marks a structurally broken archive page. The work unit
// continues; the failure is counted.
type ParseError struct {
	SourceID string
	UnitKey  string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse archive %s unit %s: %v", e.SourceID, e.UnitKey, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ArchiveFetchError wraps a failed retrieval of the archive page itself.
// The unit completes empty and the checkpoint still advances.
type ArchiveFetchError struct {
	SourceID string
	UnitKey  string
	Err      error
}

func (e *ArchiveFetchError) Error() string {
	return fmt.Sprintf("fetch archive %s unit %s: %v", e.SourceID, e.UnitKey, e.Err)
}

func (e *ArchiveFetchError) Unwrap() error { return e.Err }

// ArchiveParser is one source's listing strategy.
type ArchiveParser interface {
	// ArchiveURL builds the listing URL for a work unit.
	ArchiveURL(item domain.WorkItem) string
	// ParseArchive extracts candidate links from a fetched listing.
	// A quiet page yields an empty slice and nil error.
	ParseArchive(res domain.FetchResult, item domain.WorkItem) ([]domain.CandidateLink, error)
}

// EmptyPageStopper is implemented by parsers whose archives end with a run
// of empty pages rather than an explicit signal.
type EmptyPageStopper interface {
	EmptyPageLimit() int
}

// New selects the parser for a source's configured strategy.
func New(src config.SourceConfig) (ArchiveParser, error) {
	switch src.Strategy {
	case config.StrategyArchiveHTML:
		return newArchiveHTML(src)
	case config.StrategyPaginatedAPI:
		return newPaginatedAPI(src)
	case config.StrategyCategoryHTML:
		return newCategoryHTML(src)
	default:
		return nil, fmt.Errorf("unknown strategy %q", src.Strategy)
	}
}

// starttimeBase is the archive index of starttimeEpoch; the site counts
// archive days from this offset.
const starttimeBase = 43829

var starttimeEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// expandDateTokens fills date placeholders in an archive URL template.
// Supported tokens: {yyyy} {mm} {dd} {m} {d} {starttime}.
func expandDateTokens(template string, date time.Time) string {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	starttime := starttimeBase + int(day.Sub(starttimeEpoch).Hours()/24)

	r := strings.NewReplacer(
		"{yyyy}", fmt.Sprintf("%04d", date.Year()),
		"{mm}", fmt.Sprintf("%02d", int(date.Month())),
		"{dd}", fmt.Sprintf("%02d", date.Day()),
		"{m}", strconv.Itoa(int(date.Month())),
		"{d}", strconv.Itoa(date.Day()),
		"{starttime}", strconv.Itoa(starttime),
	)
	return r.Replace(template)
}

// expandPageTokens fills {page} and {count} in a listing URL template.
func expandPageTokens(template string, page, count int) string {
	r := strings.NewReplacer(
		"{page}", strconv.Itoa(page),
		"{count}", strconv.Itoa(count),
	)
	return r.Replace(template)
}

// linkFilter applies a source's allow/deny URL patterns.
type linkFilter struct {
	allow []*regexp.Regexp
	deny  []*regexp.Regexp
}

func newLinkFilter(allow, deny []string) (*linkFilter, error) {
	f := &linkFilter{}
	for _, p := range allow {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile allow pattern %q: %w", p, err)
		}
		f.allow = append(f.allow, re)
	}
	for _, p := range deny {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile deny pattern %q: %w", p, err)
		}
		f.deny = append(f.deny, re)
	}
	return f, nil
}

// Match reports whether the URL passes the filter. With no allow patterns
// every URL not denied passes.
func (f *linkFilter) Match(u string) bool {
	for _, re := range f.deny {
		if re.MatchString(u) {
			return false
		}
	}
	if len(f.allow) == 0 {
		return true
	}
	for _, re := range f.allow {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

// absoluteURL resolves href against the page it appeared on and strips
// tracking query strings and fragments.
func absoluteURL(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	abs.RawQuery = ""
	abs.Fragment = ""
	return abs.String(), true
}
