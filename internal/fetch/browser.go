package fetch

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// BrowserTransport renders pages in headless Chrome and returns the live
// DOM's outer HTML. Useful for sources that assemble their archive pages
// client-side. The browser does not surface HTTP status codes, so every
// rendered page reports 200; sources that rely on status signals should
// stay on the plain HTTP transport.
type BrowserTransport struct {
	allocatorPool *sync.Pool
	timeout       time.Duration
}

// NewBrowserTransport builds the chromedp-backed transport and pre-warms
// one allocator per expected concurrent fetch.
func NewBrowserTransport(maxConcurrency int, pageLoadTimeout time.Duration) *BrowserTransport {
	pool := &sync.Pool{
		New: func() interface{} {
			opts := append(chromedp.DefaultExecAllocatorOptions[:],
				chromedp.Flag("headless", true),
				chromedp.Flag("disable-gpu", true),
				chromedp.Flag("no-sandbox", true),
				chromedp.Flag("disable-dev-shm-usage", true),
			)
			allocCtx, _ := chromedp.NewExecAllocator(context.Background(), opts...)
			return allocCtx
		},
	}

	for i := 0; i < maxConcurrency; i++ {
		allocCtx := pool.Get().(context.Context)
		pool.Put(allocCtx)
	}

	return &BrowserTransport{allocatorPool: pool, timeout: pageLoadTimeout}
}

func (t *BrowserTransport) Do(ctx context.Context, url string, _ map[string]string) (int, []byte, error) {
	allocCtx := t.allocatorPool.Get().(context.Context)
	defer t.allocatorPool.Put(allocCtx)

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	taskCtx, cancel = context.WithTimeout(taskCtx, t.timeout)
	defer cancel()

	// Stop rendering when the caller gives up.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, err
	}
	return http.StatusOK, []byte(html), nil
}
