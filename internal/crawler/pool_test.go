package crawler

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/source"
)

type fetchFunc func(ctx context.Context, url string) domain.FetchResult

func (f fetchFunc) Fetch(ctx context.Context, url string) domain.FetchResult { return f(ctx, url) }

func TestPoolBoundsConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	fetcher := fetchFunc(func(ctx context.Context, url string) domain.FetchResult {
		c := cur.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		cur.Add(-1)
		return domain.FetchResult{URL: url, Status: domain.FetchOK, HTTPStatus: 200, Body: []byte(articleHTML(1))}
	})

	src := driverDailySource("2024-05-01", "2024-05-01")
	pool := newExtractPool(fetcher, source.NewArticleExtractor(src), 3, zap.NewNop())

	links := make([]domain.CandidateLink, 12)
	for i := range links {
		links[i] = domain.CandidateLink{SourceID: src.ID, UnitKey: "2024-05-01", URL: fmt.Sprintf("https://example.com/a/%d", i)}
	}
	outcomes := pool.run(context.Background(), links)

	require.Len(t, outcomes, 12, "every candidate must reach a terminal outcome")
	for _, out := range outcomes {
		assert.Equal(t, outcomeRecord, out.kind)
	}
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestPoolClassifiesOutcomes(t *testing.T) {
	results := map[string]domain.FetchResult{
		"https://example.com/a/good":  {Status: domain.FetchOK, HTTPStatus: 200, Body: []byte(articleHTML(7))},
		"https://example.com/a/gone":  {Status: domain.FetchPermanent, HTTPStatus: 410, Err: fmt.Errorf("gone")},
		"https://example.com/a/blank": {Status: domain.FetchOK, HTTPStatus: 200, Body: []byte("<html><body></body></html>")},
	}
	fetcher := fetchFunc(func(ctx context.Context, url string) domain.FetchResult {
		res := results[url]
		res.URL = url
		return res
	})

	src := driverDailySource("2024-05-01", "2024-05-01")
	pool := newExtractPool(fetcher, source.NewArticleExtractor(src), 2, zap.NewNop())

	var links []domain.CandidateLink
	for u := range results {
		links = append(links, domain.CandidateLink{SourceID: src.ID, UnitKey: "2024-05-01", URL: u})
	}
	outcomes := pool.run(context.Background(), links)
	require.Len(t, outcomes, 3)

	kinds := make(map[string]outcomeKind, 3)
	for _, out := range outcomes {
		kinds[out.link.URL] = out.kind
	}
	assert.Equal(t, outcomeRecord, kinds["https://example.com/a/good"])
	assert.Equal(t, outcomePermanent, kinds["https://example.com/a/gone"])
	assert.Equal(t, outcomeEmpty, kinds["https://example.com/a/blank"])
}

func TestPoolEmptyInputReturnsImmediately(t *testing.T) {
	var calls atomic.Int32
	fetcher := fetchFunc(func(ctx context.Context, url string) domain.FetchResult {
		calls.Add(1)
		return domain.FetchResult{}
	})
	src := driverDailySource("2024-05-01", "2024-05-01")
	pool := newExtractPool(fetcher, source.NewArticleExtractor(src), 3, zap.NewNop())

	assert.Empty(t, pool.run(context.Background(), nil))
	assert.Zero(t, calls.Load())
}
