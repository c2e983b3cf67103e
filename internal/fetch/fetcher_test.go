package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/news-ingest/internal/domain"
	"github.com/user/news-ingest/internal/fetch"
)

// fastOptions keeps retry sleeps negligible so tests run quickly.
func fastOptions(maxRetries int) fetch.Options {
	return fetch.Options{
		Source:      "test",
		MinDelay:    0,
		MaxDelay:    time.Millisecond,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffCap:  5 * time.Millisecond,
	}
}

func newFetcher(t *testing.T, maxRetries int) *fetch.Fetcher {
	t.Helper()
	transport := fetch.NewHTTPTransport(5*time.Second, 1<<20, fetch.NewAgentPool(nil), nil)
	return fetch.New(transport, fastOptions(maxRetries), zap.NewNop(), nil)
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	res := newFetcher(t, 3).Fetch(context.Background(), srv.URL)

	assert.Equal(t, domain.FetchOK, res.Status)
	assert.Equal(t, http.StatusOK, res.HTTPStatus)
	assert.Contains(t, string(res.Body), "ok")
	assert.True(t, res.OK())
}

func TestFetchRecoversFromTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	res := newFetcher(t, 3).Fetch(context.Background(), srv.URL)

	assert.Equal(t, domain.FetchOK, res.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchPermanentFailureDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	res := newFetcher(t, 3).Fetch(context.Background(), srv.URL)

	assert.Equal(t, domain.FetchPermanent, res.Status)
	assert.Equal(t, http.StatusNotFound, res.HTTPStatus)
	assert.Equal(t, int32(1), calls.Load(), "permanent failures must not be retried")

	var ferr *fetch.FetchError
	require.ErrorAs(t, res.Err, &ferr)
	assert.False(t, ferr.Transient)
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := newFetcher(t, 2).Fetch(context.Background(), srv.URL)

	assert.Equal(t, domain.FetchTransient, res.Status)
	assert.Equal(t, int32(3), calls.Load(), "one initial attempt plus MaxRetries retries")
}

func TestFetchRetriesRateLimitAndTimeoutStatuses(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusRequestTimeout} {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(status)
				return
			}
			_, _ = w.Write([]byte("ok"))
		}))

		res := newFetcher(t, 1).Fetch(context.Background(), srv.URL)

		assert.Equal(t, domain.FetchOK, res.Status, "status %d should be retried", status)
		assert.Equal(t, int32(2), calls.Load())
		srv.Close()
	}
}

func TestFetchHonorsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	transport := fetch.NewHTTPTransport(5*time.Second, 1<<20, fetch.NewAgentPool(nil), nil)
	opts := fastOptions(5)
	opts.BackoffBase = time.Minute
	opts.BackoffCap = time.Minute
	f := fetch.New(transport, opts, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	res := f.Fetch(ctx, srv.URL)

	assert.Equal(t, domain.FetchTransient, res.Status)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation must abort backoff sleeps")
}

func TestHTTPTransportSetsHeaders(t *testing.T) {
	var gotUA, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotToken = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	transport := fetch.NewHTTPTransport(5*time.Second, 1<<20, fetch.NewAgentPool([]string{"ArchiveBot/2.0"}), nil)
	status, _, err := transport.Do(context.Background(), srv.URL, map[string]string{
		"Authorization": "Bearer token-1",
	})

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ArchiveBot/2.0", gotUA)
	assert.Equal(t, "Bearer token-1", gotToken)
}

func TestHTTPTransportCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	transport := fetch.NewHTTPTransport(5*time.Second, 1024, fetch.NewAgentPool(nil), nil)
	_, body, err := transport.Do(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.Len(t, body, 1024)
}

func TestProxyRingRotatesSequentially(t *testing.T) {
	ring, err := fetch.NewProxyRing([]string{"http://proxy-a:8000", "http://proxy-b:8000"})
	require.NoError(t, err)

	assert.Equal(t, "proxy-a:8000", ring.Next().Host)
	assert.Equal(t, "proxy-b:8000", ring.Next().Host)
	assert.Equal(t, "proxy-a:8000", ring.Next().Host)
}

func TestHTTPTransportRoutesThroughProxy(t *testing.T) {
	var proxied atomic.Int32
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		proxied.Add(1)
		_, _ = w.Write([]byte("via proxy"))
	}))
	defer proxy.Close()

	ring, err := fetch.NewProxyRing([]string{proxy.URL})
	require.NoError(t, err)
	transport := fetch.NewHTTPTransport(5*time.Second, 1<<20, fetch.NewAgentPool(nil), ring)

	status, body, err := transport.Do(context.Background(), "http://origin.invalid/page", nil)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "via proxy", string(body))
	assert.Equal(t, int32(1), proxied.Load())
}

func TestFetchNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	res := newFetcher(t, 1).Fetch(context.Background(), srv.URL)

	assert.Equal(t, domain.FetchTransient, res.Status)
	require.Error(t, res.Err)

	var ferr *fetch.FetchError
	require.ErrorAs(t, res.Err, &ferr)
	assert.True(t, ferr.Transient)
}
