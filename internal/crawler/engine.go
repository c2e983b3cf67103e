// Package crawler walks news-archive sources unit by unit, extracts the
// articles each unit lists, and commits them with checkpointed resume.
package crawler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/news-ingest/internal/checkpoint"
	"github.com/user/news-ingest/internal/config"
	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/fetch"
	"github.com/user/news-ingest/internal/monitoring"
	"github.com/user/news-ingest/internal/source"
)

// Engine supervises one driver per enabled source. Source failures are
// contained: a broken source never stops its siblings.
type Engine struct {
	cfg         *config.Config
	store       ArticleStore
	cache       Cache
	checkpoints checkpoint.Store
	metrics     *monitoring.Metrics
	logger      *zap.Logger

	httpTransport    fetch.Transport
	browserTransport fetch.Transport

	mu    sync.RWMutex
	board map[string]domain.SourceReport
}

func NewEngine(cfg *config.Config, store ArticleStore, cache Cache, cps checkpoint.Store, m *monitoring.Metrics, logger *zap.Logger) *Engine {
	agents := fetch.NewAgentPool(cfg.Engine.UserAgents)
	proxies, err := fetch.NewProxyRing(cfg.Engine.ProxyURLs)
	if err != nil {
		// Config validation rejects bad proxy URLs at load time.
		logger.Warn("ignoring proxy list", zap.Error(err))
	}
	e := &Engine{
		cfg:           cfg,
		store:         store,
		cache:         cache,
		checkpoints:   cps,
		metrics:       m,
		logger:        logger,
		httpTransport: fetch.NewHTTPTransport(cfg.Engine.RequestTimeout, cfg.Engine.MaxBodyBytes, agents, proxies),
		board:         make(map[string]domain.SourceReport),
	}

	browserPool := 0
	for _, src := range cfg.EnabledSources() {
		if src.FetchMode == config.FetchModeBrowser && src.PoolSize > browserPool {
			browserPool = src.PoolSize
		}
	}
	if browserPool > 0 {
		e.browserTransport = fetch.NewBrowserTransport(browserPool, cfg.Engine.RequestTimeout)
	}
	return e
}

// Run crawls every enabled source and returns one report per source, in
// config order. The source-level parallelism limit bounds how many sources
// run at once; units within a source stay strictly sequential.
func (e *Engine) Run(ctx context.Context) []domain.SourceReport {
	sources := e.cfg.EnabledSources()
	reports := make([]domain.SourceReport, len(sources))

	e.logger.Info("starting run",
		zap.Int("sources", len(sources)),
		zap.Int("parallelism", e.cfg.Engine.SourceParallelism))

	var g errgroup.Group
	g.SetLimit(e.cfg.Engine.SourceParallelism)
	for i, src := range sources {
		g.Go(func() error {
			reports[i] = e.runSource(ctx, src)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, r := range reports {
		if r.Failed {
			failed++
		}
	}
	e.logger.Info("run finished",
		zap.Int("sources", len(sources)),
		zap.Int("failed", failed))
	return reports
}

func (e *Engine) runSource(ctx context.Context, src config.SourceConfig) domain.SourceReport {
	logger := e.logger.With(zap.String("source", src.ID))

	parser, err := source.New(src)
	if err != nil {
		logger.Error("source setup failed", zap.Error(err))
		report := domain.SourceReport{
			SourceID:   src.ID,
			MediaName:  src.MediaName,
			Failed:     true,
			FailReason: fmt.Sprintf("building parser: %v", err),
			UpdatedAt:  time.Now().UTC(),
		}
		e.publish(report)
		return report
	}

	transport := e.httpTransport
	if src.FetchMode == config.FetchModeBrowser {
		transport = e.browserTransport
	}

	articleFetcher := fetch.New(transport, fetchOptions(src, e.cfg.Engine), logger, e.metrics)
	archiveFetcher := articleFetcher
	if src.Strategy == config.StrategyPaginatedAPI && src.API.AuthToken != "" {
		// The bearer token is for the listing API only; article pages are
		// public and must not see it.
		opts := fetchOptions(src, e.cfg.Engine)
		opts.Headers["Authorization"] = "Bearer " + src.API.AuthToken
		archiveFetcher = fetch.New(transport, opts, logger, e.metrics)
	}

	d := &driver{
		src:         src,
		parser:      parser,
		fetcher:     archiveFetcher,
		pool:        newExtractPool(articleFetcher, source.NewArticleExtractor(src), src.PoolSize, logger),
		store:       e.store,
		cache:       e.cache,
		checkpoints: e.checkpoints,
		metrics:     e.metrics,
		logger:      logger,
		publish:     e.publish,
		now:         func() time.Time { return time.Now().UTC() },
	}

	logger.Info("starting source", zap.String("strategy", src.Strategy))
	return d.run(ctx)
}

func (e *Engine) publish(r domain.SourceReport) {
	e.mu.Lock()
	e.board[r.SourceID] = r
	e.mu.Unlock()
}

// Progress returns a snapshot of per-source progress for the HTTP API,
// sorted by source id.
func (e *Engine) Progress() []domain.SourceReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.SourceReport, 0, len(e.board))
	for _, r := range e.board {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceID < out[j].SourceID })
	return out
}

// fetchOptions maps a source's politeness and retry settings onto the
// fetcher, with the engine supplying the shared backoff envelope.
func fetchOptions(src config.SourceConfig, eng config.EngineConfig) fetch.Options {
	headers := make(map[string]string, len(src.Headers)+1)
	for k, v := range src.Headers {
		headers[k] = v
	}
	return fetch.Options{
		Source:      src.ID,
		MinDelay:    src.MinDelay,
		MaxDelay:    src.MaxDelay,
		MaxRetries:  src.MaxRetries,
		BackoffBase: eng.BackoffBase,
		BackoffCap:  eng.BackoffCap,
		Headers:     headers,
	}
}
