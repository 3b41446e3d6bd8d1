// Package collyfetcher implements a static crawler.Fetcher using gocolly. It
// serves server-rendered listings and is the cheap first attempt in auto mode.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

// ErrHTTPStatus marks a non-2xx response.
var ErrHTTPStatus = errors.New("unexpected http status")

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
	)
	c.WithTransport(newHTTPTransport())
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the response body as markup.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := f.runCollector(ctx, url)
	if err != nil {
		return "", crawler.NewFetchError(url, err)
	}
	return body, nil
}

// visitResult is owned by the visiting goroutine until it is sent.
type visitResult struct {
	body string
	err  error
}

func (f *Fetcher) buildCollector(body *string, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	extensions.Referer(collector)
	f.configureCollectorHooks(collector, body, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, body *string, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range f.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			*fetchErr = fmt.Errorf("%w: %d: %v", ErrHTTPStatus, r.StatusCode, err)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, url string) (string, error) {
	done := make(chan visitResult, 1)
	go func() {
		var (
			body     string
			fetchErr error
		)
		collector := f.buildCollector(&body, &fetchErr)
		visitErr := collector.Visit(url)
		switch {
		case fetchErr != nil:
			done <- visitResult{err: fmt.Errorf("colly response failed: %w", fetchErr)}
		case visitErr != nil:
			done <- visitResult{err: fmt.Errorf("colly visit failed: %w", visitErr)}
		default:
			done <- visitResult{body: body}
		}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case res := <-done:
		return res.body, res.err
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
