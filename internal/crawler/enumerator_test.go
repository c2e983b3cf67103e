package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
)

var enumNow = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

func dailySource(start, end string) config.SourceConfig {
	return config.SourceConfig{
		ID:        "express",
		Strategy:  config.StrategyArchiveHTML,
		StartDate: start,
		EndDate:   end,
	}
}

func pagedSource(startPage, maxPages int) config.SourceConfig {
	return config.SourceConfig{
		ID:        "api",
		Strategy:  config.StrategyPaginatedAPI,
		StartPage: startPage,
		MaxPages:  maxPages,
	}
}

func drainKeys(e *enumerator, limit int) []string {
	var keys []string
	for len(keys) < limit {
		item, ok := e.Next()
		if !ok {
			break
		}
		keys = append(keys, item.Key)
	}
	return keys
}

func TestEnumeratorWalksDateRangeInclusive(t *testing.T) {
	e, err := newEnumerator(dailySource("2024-05-01", "2024-05-03"), domain.Checkpoint{}, false, enumNow)
	require.NoError(t, err)

	first, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, "2024-05-01", first.Key)
	assert.Equal(t, 0, first.Seq)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), first.Date)

	assert.Equal(t, []string{"2024-05-02", "2024-05-03"}, drainKeys(e, 10))
}

func TestEnumeratorResumesStrictlyAfterCheckpoint(t *testing.T) {
	cp := domain.Checkpoint{SourceID: "express", LastKey: "2024-05-02"}
	e, err := newEnumerator(dailySource("2024-05-01", "2024-05-04"), cp, true, enumNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-03", "2024-05-04"}, drainKeys(e, 10))
}

func TestEnumeratorIgnoresCheckpointBelowFloor(t *testing.T) {
	cp := domain.Checkpoint{SourceID: "express", LastKey: "2024-04-20"}
	e, err := newEnumerator(dailySource("2024-05-01", "2024-05-02"), cp, true, enumNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01", "2024-05-02"}, drainKeys(e, 10))
}

func TestEnumeratorExhaustedRangeYieldsNothing(t *testing.T) {
	cp := domain.Checkpoint{SourceID: "express", LastKey: "2024-05-03"}
	e, err := newEnumerator(dailySource("2024-05-01", "2024-05-03"), cp, true, enumNow)
	require.NoError(t, err)
	assert.Empty(t, drainKeys(e, 10))
}

func TestEnumeratorEndDateDefaultsToToday(t *testing.T) {
	e, err := newEnumerator(dailySource("2024-05-08", ""), domain.Checkpoint{}, false, enumNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-08", "2024-05-09", "2024-05-10"}, drainKeys(e, 10))
}

func TestEnumeratorIdenticalSequenceOnRerun(t *testing.T) {
	cp := domain.Checkpoint{SourceID: "express", LastKey: "2024-05-01"}
	first, err := newEnumerator(dailySource("2024-05-01", "2024-05-05"), cp, true, enumNow)
	require.NoError(t, err)
	second, err := newEnumerator(dailySource("2024-05-01", "2024-05-05"), cp, true, enumNow)
	require.NoError(t, err)
	assert.Equal(t, drainKeys(first, 10), drainKeys(second, 10))
}

func TestEnumeratorWalksPages(t *testing.T) {
	e, err := newEnumerator(pagedSource(1, 3), domain.Checkpoint{}, false, enumNow)
	require.NoError(t, err)

	first, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, "1", first.Key)
	assert.Equal(t, 1, first.Page)

	assert.Equal(t, []string{"2", "3"}, drainKeys(e, 10))
}

func TestEnumeratorResumesPages(t *testing.T) {
	cp := domain.Checkpoint{SourceID: "api", LastKey: "3"}
	e, err := newEnumerator(pagedSource(1, 5), cp, true, enumNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, drainKeys(e, 10))
}

func TestEnumeratorUncappedPagesKeepYielding(t *testing.T) {
	e, err := newEnumerator(pagedSource(1, 0), domain.Checkpoint{}, false, enumNow)
	require.NoError(t, err)
	keys := drainKeys(e, 100)
	require.Len(t, keys, 100)
	assert.Equal(t, "100", keys[99])
}

func TestEnumeratorRejectsForeignCheckpointKeys(t *testing.T) {
	cp := domain.Checkpoint{SourceID: "express", LastKey: "7"}
	_, err := newEnumerator(dailySource("2024-05-01", "2024-05-03"), cp, true, enumNow)
	assert.ErrorIs(t, err, ErrCheckpointKey)

	cp = domain.Checkpoint{SourceID: "api", LastKey: "2024-05-01"}
	_, err = newEnumerator(pagedSource(1, 5), cp, true, enumNow)
	assert.ErrorIs(t, err, ErrCheckpointKey)
}
