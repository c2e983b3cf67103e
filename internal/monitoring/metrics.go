// Package monitoring exposes the engine's Prometheus metrics.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine. Counters are
// labeled by source so multi-source runs stay distinguishable.
type Metrics struct {
	Registry *prometheus.Registry

	UnitsCompleted  *prometheus.CounterVec
	CandidatesFound *prometheus.CounterVec
	Duplicates      *prometheus.CounterVec
	Ingested        *prometheus.CounterVec
	Outcomes        *prometheus.CounterVec
	FetchAttempts   *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec
	CheckpointValue *prometheus.GaugeVec
}

// Outcome labels used by the Outcomes counter.
const (
	OutcomePermanentFailure = "permanent_failure"
	OutcomeEmptyContent     = "empty_content"
	OutcomeParseFailure     = "parse_failure"
	OutcomeArchiveFailure   = "archive_fetch_failure"
)

// NewMetrics registers the engine metrics on a fresh registry. Each engine
// instance owns its registry, so tests never collide on duplicate names.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		UnitsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsingest_units_completed_total",
			Help: "Work units fully ingested and checkpointed",
		}, []string{"source"}),
		CandidatesFound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsingest_candidates_total",
			Help: "Candidate article links discovered on archive pages",
		}, []string{"source"}),
		Duplicates: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsingest_duplicates_total",
			Help: "Candidates skipped because the store already has them",
		}, []string{"source"}),
		Ingested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsingest_articles_ingested_total",
			Help: "Article records committed to the store",
		}, []string{"source"}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsingest_skipped_total",
			Help: "Candidates that ended in a non-ingested terminal state",
		}, []string{"source", "reason"}),
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsingest_fetch_attempts_total",
			Help: "Individual fetch attempts by outcome",
		}, []string{"source", "outcome"}),
		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsingest_fetch_duration_seconds",
			Help:    "Wall time of fetch attempts, politeness delay excluded",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		CheckpointValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "newsingest_checkpoint_seq",
			Help: "Sequence position of the last checkpointed unit",
		}, []string{"source"}),
	}
}

func (m *Metrics) IncUnitCompleted(source string) {
	m.UnitsCompleted.WithLabelValues(source).Inc()
}

func (m *Metrics) AddCandidates(source string, n int) {
	m.CandidatesFound.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) AddDuplicates(source string, n int) {
	m.Duplicates.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) AddIngested(source string, n int) {
	m.Ingested.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) IncOutcome(source, reason string) {
	m.Outcomes.WithLabelValues(source, reason).Inc()
}

func (m *Metrics) IncFetchAttempt(source, outcome string) {
	m.FetchAttempts.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) ObserveFetchDuration(source string, seconds float64) {
	m.FetchDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) SetCheckpointSeq(source string, seq int) {
	m.CheckpointValue.WithLabelValues(source).Set(float64(seq))
}
