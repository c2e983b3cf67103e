// Package fetch retrieves pages with politeness delays, bounded retries
// and exponential backoff, and classifies every outcome as ok, transient
// or permanent.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/monitoring"
)

const jitterFactor = 0.2 // +/- 20%

// Transport performs one HTTP exchange. Implementations must honor ctx.
type Transport interface {
	Do(ctx context.Context, url string, headers map[string]string) (status int, body []byte, err error)
}

// FetchError carries the classification of a failed retrieval.
type FetchError struct {
	URL        string
	HTTPStatus int
	Transient  bool
	Err        error
}

func (e *FetchError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.HTTPStatus)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Options tune one fetcher instance. A fetcher is built per source, so the
// politeness window and retry budget follow that source's config.
type Options struct {
	Source      string
	MinDelay    time.Duration
	MaxDelay    time.Duration
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
	Headers     map[string]string
}

// Fetcher retrieves URLs through a Transport with the retry policy applied.
// Safe for concurrent use.
type Fetcher struct {
	transport Transport
	opts      Options
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// New builds a fetcher around the given transport.
func New(transport Transport, opts Options, logger *zap.Logger, m *monitoring.Metrics) *Fetcher {
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = 2 * time.Second
	}
	if opts.BackoffCap < opts.BackoffBase {
		opts.BackoffCap = 60 * time.Second
	}
	return &Fetcher{transport: transport, opts: opts, logger: logger, metrics: m}
}

// Fetch retrieves url. It sleeps a uniform politeness delay before every
// attempt, retries transient outcomes up to MaxRetries times with
// exponential backoff, and returns permanent outcomes immediately.
func (f *Fetcher) Fetch(ctx context.Context, url string) domain.FetchResult {
	attempts := f.opts.MaxRetries + 1
	var last domain.FetchResult

	for attempt := 0; attempt < attempts; attempt++ {
		if err := f.sleep(ctx, f.politenessDelay()); err != nil {
			return domain.FetchResult{URL: url, Status: domain.FetchTransient, Err: err}
		}

		start := time.Now()
		status, body, err := f.transport.Do(ctx, url, f.opts.Headers)
		if f.metrics != nil {
			f.metrics.ObserveFetchDuration(f.opts.Source, time.Since(start).Seconds())
		}

		res := f.classify(url, status, body, err)
		if f.metrics != nil {
			f.metrics.IncFetchAttempt(f.opts.Source, string(res.Status))
		}
		f.logAttempt(url, attempt, res)

		if res.Status != domain.FetchTransient {
			return res
		}
		last = res

		if ctx.Err() != nil {
			return last
		}
		if attempt < attempts-1 {
			if err := f.sleep(ctx, f.backoffDelay(attempt)); err != nil {
				return last
			}
		}
	}
	return last
}

func (f *Fetcher) classify(url string, status int, body []byte, err error) domain.FetchResult {
	switch {
	case err != nil:
		return domain.FetchResult{
			URL:    url,
			Status: domain.FetchTransient,
			Err:    &FetchError{URL: url, Transient: true, Err: err},
		}
	case status == http.StatusTooManyRequests,
		status == http.StatusRequestTimeout,
		status >= http.StatusInternalServerError:
		return domain.FetchResult{
			URL:        url,
			Status:     domain.FetchTransient,
			HTTPStatus: status,
			Err:        &FetchError{URL: url, HTTPStatus: status, Transient: true},
		}
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return domain.FetchResult{URL: url, Status: domain.FetchOK, HTTPStatus: status, Body: body}
	default:
		return domain.FetchResult{
			URL:        url,
			Status:     domain.FetchPermanent,
			HTTPStatus: status,
			Err:        &FetchError{URL: url, HTTPStatus: status},
		}
	}
}

func (f *Fetcher) logAttempt(url string, attempt int, res domain.FetchResult) {
	fields := []zap.Field{
		zap.String("source", f.opts.Source),
		zap.String("url", url),
		zap.Int("attempt", attempt+1),
		zap.String("outcome", string(res.Status)),
	}
	switch res.Status {
	case domain.FetchOK:
		f.logger.Debug("fetched", fields...)
	case domain.FetchTransient:
		f.logger.Warn("fetch attempt failed", append(fields, zap.Error(res.Err))...)
	default:
		f.logger.Warn("fetch failed permanently", append(fields, zap.Int("status", res.HTTPStatus))...)
	}
}

// politenessDelay draws a uniform duration from [MinDelay, MaxDelay).
func (f *Fetcher) politenessDelay() time.Duration {
	window := f.opts.MaxDelay - f.opts.MinDelay
	if window <= 0 {
		return f.opts.MinDelay
	}
	return f.opts.MinDelay + time.Duration(rand.Int63n(int64(window)))
}

// backoffDelay doubles the base per attempt and jitters the result, capped
// at BackoffCap.
func (f *Fetcher) backoffDelay(attempt int) time.Duration {
	d := f.opts.BackoffBase << uint(attempt)
	if d <= 0 || d > f.opts.BackoffCap {
		d = f.opts.BackoffCap
	}
	jitter := 1 + (rand.Float64()*2-1)*jitterFactor
	d = time.Duration(float64(d) * jitter)
	if d > f.opts.BackoffCap {
		d = f.opts.BackoffCap
	}
	return d
}

func (f *Fetcher) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// HTTPTransport is the default transport: a plain HTTP GET with a rotating
// User-Agent and a capped response body.
type HTTPTransport struct {
	client       *http.Client
	agents       *AgentPool
	maxBodyBytes int64
}

// NewHTTPTransport builds the default transport. A non-empty proxy ring
// routes each request through the next proxy in rotation.
func NewHTTPTransport(timeout time.Duration, maxBodyBytes int64, agents *AgentPool, proxies *ProxyRing) *HTTPTransport {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 10 << 20
	}
	client := &http.Client{Timeout: timeout}
	if proxies.Len() > 0 {
		client.Transport = &http.Transport{
			Proxy: func(*http.Request) (*url.URL, error) { return proxies.Next(), nil },
		}
	}
	return &HTTPTransport{
		client:       client,
		agents:       agents,
		maxBodyBytes: maxBodyBytes,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, url string, headers map[string]string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", t.agents.Pick())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("http fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
