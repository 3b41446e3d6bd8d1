// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
)

// DefaultUserAgent is sent when Config.UserAgent is empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// ErrHTTPStatus marks a document response the site answered with an error status.
var ErrHTTPStatus = errors.New("document returned error status")

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	ExecPath          string
	NoSandbox         bool
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
	Scroll            ScrollConfig
}

// Fetcher implements crawler.Fetcher using chromedp and headless Chrome.
// Each Fetch starts and tears down its own browser process.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout < 0 || cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("headless timeouts must be >= 0")
	}
	if cfg.NavigationTimeout == 0 {
		cfg.NavigationTimeout = 3 * time.Minute
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	scroll, err := cfg.Scroll.withDefaults()
	if err != nil {
		return nil, err
	}
	cfg.Scroll = scroll
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{cfg: cfg, logger: logger}, nil
}

// Fetch navigates with a fresh headless browser, scrolls until the listing
// count settles, and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, f.allocatorOptions()...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	if err := chromedp.Run(taskCtx,
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return "", crawler.NewFetchError(url, fmt.Errorf("navigate: %w", err))
	}
	if status := meta.Status(); status >= 400 {
		return "", crawler.NewFetchError(url, fmt.Errorf("%w: %d", ErrHTTPStatus, status))
	}
	if err := sleep(taskCtx, f.cfg.SettleDelay); err != nil {
		return "", crawler.NewFetchError(url, fmt.Errorf("settle: %w", err))
	}

	outcome, err := scrollUntilStable(taskCtx, cdpPage{}, f.cfg.Scroll)
	if err != nil {
		return "", crawler.NewFetchError(url, fmt.Errorf("scroll: %w", err))
	}

	var html string
	if err := chromedp.Run(taskCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", crawler.NewFetchError(url, fmt.Errorf("capture markup: %w", err))
	}
	f.logger.Debug("headless fetch complete",
		zap.String("url", url),
		zap.Int("scroll_cycles", outcome.Cycles),
		zap.Int("containers", outcome.Containers),
		zap.Bool("stable", outcome.Stable),
		zap.Int("bytes", len(html)),
		zap.Duration("duration", time.Since(start)),
	)
	return html, nil
}

func (f *Fetcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.UserAgent(f.cfg.UserAgent),
	)
	if f.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	return opts
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		return nil
	})
}

// cdpPage drives the page attached to a chromedp context.
type cdpPage struct{}

func (cdpPage) ScrollToBottom(ctx context.Context) error {
	var ignored any
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, &ignored)); err != nil {
		return fmt.Errorf("scroll to bottom: %w", err)
	}
	return nil
}

func (cdpPage) CountContainers(ctx context.Context, selector string) (int, error) {
	var count int
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("count containers: %w", err)
	}
	return count, nil
}

// responseMeta records the status of the main document response.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Redirect chains and iframes report later documents; keep the first.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

// Status returns the captured document status, or 0 when none was seen.
func (m *responseMeta) Status() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}
