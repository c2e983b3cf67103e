package crawler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/source"
)

// outcomeKind classifies the terminal state of one candidate link.
type outcomeKind int

const (
	outcomeRecord outcomeKind = iota
	outcomePermanent
	outcomeEmpty
	outcomeParseFailure
)

// outcome is the terminal result for one candidate link.
type outcome struct {
	link   domain.CandidateLink
	record domain.ArticleRecord
	kind   outcomeKind
	err    error
}

// extractPool fans a unit's candidates across a bounded set of workers.
// Workers share nothing; results come back over a channel.
type extractPool struct {
	fetcher   Fetcher
	extractor *source.ArticleExtractor
	size      int
	logger    *zap.Logger
}

func newExtractPool(fetcher Fetcher, extractor *source.ArticleExtractor, size int, logger *zap.Logger) *extractPool {
	if size < 1 {
		size = 1
	}
	return &extractPool{fetcher: fetcher, extractor: extractor, size: size, logger: logger}
}

// run processes every candidate and returns once all workers have drained.
// On cancellation the unfed remainder is dropped; the driver abandons the
// unit without checkpointing it, so nothing is lost.
func (p *extractPool) run(ctx context.Context, links []domain.CandidateLink) []outcome {
	if len(links) == 0 {
		return nil
	}

	workers := p.size
	if workers > len(links) {
		workers = len(links)
	}

	tasks := make(chan domain.CandidateLink)
	results := make(chan outcome, len(links))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range tasks {
				results <- p.process(ctx, link)
			}
		}()
	}

feed:
	for _, link := range links {
		select {
		case tasks <- link:
		case <-ctx.Done():
			break feed
		}
	}
	close(tasks)
	wg.Wait()
	close(results)

	out := make([]outcome, 0, len(links))
	for res := range results {
		out = append(out, res)
	}
	return out
}

func (p *extractPool) process(ctx context.Context, link domain.CandidateLink) outcome {
	res := p.fetcher.Fetch(ctx, link.URL)
	if !res.OK() {
		p.logger.Warn("giving up on article",
			zap.String("url", link.URL),
			zap.Error(res.Err))
		return outcome{link: link, kind: outcomePermanent, err: res.Err}
	}

	rec, err := p.extractor.Extract(link, res.Body, time.Now().UTC())
	if err != nil {
		p.logger.Warn("article did not parse",
			zap.String("url", link.URL),
			zap.Error(err))
		return outcome{link: link, kind: outcomeParseFailure, err: err}
	}
	if rec.WordCount == 0 {
		p.logger.Debug("dropping article with no content", zap.String("url", link.URL))
		return outcome{link: link, kind: outcomeEmpty}
	}
	return outcome{link: link, record: rec, kind: outcomeRecord}
}
