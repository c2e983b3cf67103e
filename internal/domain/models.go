package domain

import "time"

// Granularity describes how a source's archive is enumerated.
type Granularity string

const (
	GranularityDaily Granularity = "daily"
	GranularityPaged Granularity = "paged"
)

// WorkItemStatus tracks a unit through the crawl state machine.
type WorkItemStatus string

const (
	UnitPending    WorkItemStatus = "pending"
	UnitInProgress WorkItemStatus = "in_progress"
	UnitDone       WorkItemStatus = "done"
	UnitFailed     WorkItemStatus = "failed"
)

// WorkItem is one unit of crawl work for a source: a calendar day for daily
// archives, or a listing page number for paginated ones.
type WorkItem struct {
	SourceID string
	Key      string // "2006-01-02" for daily, decimal page number for paged
	Seq      int    // position in enumeration order
	Date     time.Time
	Page     int
	Status   WorkItemStatus
	Attempts int
}

// Checkpoint is the durable watermark marking the last fully-ingested unit
// for a source. Advanced only after that unit's articles are committed.
type Checkpoint struct {
	SourceID  string    `json:"source_id"`
	LastKey   string    `json:"last_completed_unit_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CandidateLink is an article reference discovered on an archive page,
// not yet verified as new. Ephemeral; never persisted on its own.
type CandidateLink struct {
	SourceID      string
	UnitKey       string
	URL           string
	Title         string
	Summary       string
	Section       string
	PublishedHint string // date text carried from the listing, if any
}

// ArticleRecord is the structured article this engine exists to produce.
// SourceURL is the natural dedup key; the store treats it as unique.
// Records with WordCount == 0 are dropped, never persisted.
type ArticleRecord struct {
	SourceURL   string    `json:"source_url"`
	MediaName   string    `json:"media_name"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	PublishDate string    `json:"publish_date"` // YYYY-MM-DD when normalizable
	Body        string    `json:"body_text"`
	Tags        []string  `json:"tags"`
	WordCount   int       `json:"word_count"`
	Language    string    `json:"language_code"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// FetchStatus classifies a single retrieval.
type FetchStatus string

const (
	FetchOK        FetchStatus = "ok"
	FetchTransient FetchStatus = "transient_error"
	FetchPermanent FetchStatus = "permanent_error"
)

// FetchResult is the outcome of one Fetch call, after retries are spent.
// Transient here means the retry budget was exhausted on retryable errors.
type FetchResult struct {
	URL        string
	Status     FetchStatus
	Body       []byte
	HTTPStatus int
	Err        error
}

// OK reports whether the fetch produced a usable payload.
func (r FetchResult) OK() bool { return r.Status == FetchOK }

// SourceReport carries the per-source counters surfaced at the end of a run
// and through the progress endpoint.
type SourceReport struct {
	SourceID        string    `json:"source_id"`
	MediaName       string    `json:"media_name"`
	CurrentUnit     string    `json:"current_unit,omitempty"`
	LastCheckpoint  string    `json:"last_checkpoint,omitempty"`
	UnitsCompleted  int       `json:"units_completed"`
	Candidates      int       `json:"candidates_found"`
	Duplicates      int       `json:"skipped_duplicate"`
	Ingested        int       `json:"ingested"`
	PermanentFails  int       `json:"skipped_permanent_failure"`
	EmptySkipped    int       `json:"skipped_empty_content"`
	ParseFailures   int       `json:"parse_failures"`
	ArchiveFailures int       `json:"archive_fetch_failures"`
	Failed          bool      `json:"failed"`
	FailReason      string    `json:"fail_reason,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}
