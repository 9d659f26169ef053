package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/responsum/internal/common"
)

const defaultFetchTimeout = 30 * time.Second

// FetchedPage holds the raw result of retrieving a URL
type FetchedPage struct {
	URL        string
	HTML       string
	StatusCode int
	Rendered   bool // fetched through headless Chrome
}

// Fetcher retrieves web pages for ingestion. Plain HTTP by default;
// when JavaScript rendering is enabled pages load in headless Chrome
// first so client-rendered content is visible.
type Fetcher struct {
	config *common.FetchConfig
	logger arbor.ILogger
	client *http.Client
}

// NewFetcher creates a new page fetcher
func NewFetcher(config *common.FetchConfig, logger arbor.ILogger) *Fetcher {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &Fetcher{
		config: config,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch retrieves the page at url
func (f *Fetcher) Fetch(ctx context.Context, url string) (*FetchedPage, error) {
	if f.config.EnableJavaScript {
		return f.fetchRendered(ctx, url)
	}
	return f.fetchStatic(ctx, url)
}

func (f *Fetcher) fetchStatic(ctx context.Context, url string) (*FetchedPage, error) {
	started := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if f.config.UserAgent != "" {
		req.Header.Set("User-Agent", f.config.UserAgent)
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch failed with status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContentType(contentType) {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	var reader io.Reader = resp.Body
	if f.config.MaxBodySize > 0 {
		reader = io.LimitReader(resp.Body, int64(f.config.MaxBodySize))
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	f.logger.Debug().
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Int("body_size", len(body)).
		Dur("duration", time.Since(started)).
		Msg("Fetched page")

	return &FetchedPage{
		URL:        url,
		HTML:       string(body),
		StatusCode: resp.StatusCode,
	}, nil
}

func (f *Fetcher) fetchRendered(ctx context.Context, url string) (*FetchedPage, error) {
	started := time.Now()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1920, 1080),
	}
	if f.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.config.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			f.logger.Debug().Msgf("chromedp: "+format, args...)
		}),
	)
	defer cancelBrowser()

	timeout := f.config.RequestTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	pageCtx, cancelPage := context.WithTimeout(browserCtx, timeout)
	defer cancelPage()

	if err := chromedp.Run(pageCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("failed to enable network domain: %w", err)
	}

	// The main document response carries the status code for the page
	var statusCode atomic.Int64
	statusCode.Store(http.StatusOK)
	var statusCaptured atomic.Bool
	chromedp.ListenTarget(pageCtx, func(ev interface{}) {
		if resp, ok := ev.(*network.EventResponseReceived); ok {
			if resp.Type == network.ResourceTypeDocument && statusCaptured.CompareAndSwap(false, true) {
				statusCode.Store(resp.Response.Status)
			}
		}
	})

	waitTime := f.config.JavaScriptWaitTime
	if waitTime <= 0 {
		waitTime = 3 * time.Second
	}

	var html string
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(waitTime),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, fmt.Errorf("rendered fetch failed: %w", err)
	}

	status := int(statusCode.Load())
	if status >= 400 {
		return nil, fmt.Errorf("fetch failed with status %d", status)
	}

	f.logger.Debug().
		Str("url", url).
		Int("status_code", status).
		Int("body_size", len(html)).
		Dur("duration", time.Since(started)).
		Msg("Fetched rendered page")

	return &FetchedPage{
		URL:        url,
		HTML:       html,
		StatusCode: status,
		Rendered:   true,
	}, nil
}

func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	lowered := strings.ToLower(contentType)
	return strings.HasPrefix(lowered, "text/html") ||
		strings.HasPrefix(lowered, "application/xhtml+xml")
}
