// Package hybrid probes a listing with a static fetch and promotes it to a
// headless render when the markup lacks listing containers.
package hybrid

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/openrice-crawler/internal/crawler"
	"github.com/JakeFAU/openrice-crawler/internal/headless/detector"
)

// Detector decides whether probed markup must be rendered headlessly.
type Detector interface {
	Decide(markup string) detector.Decision
}

// Fetcher implements crawler.Fetcher over a probe and a headless fetcher.
type Fetcher struct {
	probe    crawler.Fetcher
	headless crawler.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New wires the probe, headless fetcher and detector together.
func New(probe, headless crawler.Fetcher, d Detector, logger *zap.Logger) (*Fetcher, error) {
	if probe == nil || headless == nil {
		return nil, errors.New("hybrid fetcher requires probe and headless fetchers")
	}
	if d == nil {
		d = detector.NewHeuristic(1, "")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{probe: probe, headless: headless, detector: d, logger: logger}, nil
}

// Fetch returns probed markup when it already lists restaurants, otherwise
// the headless render. A failed probe falls through to the headless fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	markup, err := f.probe.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", crawler.NewFetchError(url, err)
		}
		f.logger.Debug("probe failed; promoting to headless", zap.String("url", url), zap.Error(err))
		return f.headless.Fetch(ctx, url)
	}
	decision := f.detector.Decide(markup)
	if !decision.Promote {
		f.logger.Debug("serving probed markup",
			zap.String("url", url),
			zap.Int("containers", decision.Containers),
		)
		return markup, nil
	}
	f.logger.Debug("promoting to headless",
		zap.String("url", url),
		zap.String("reason", decision.Reason),
		zap.Int("containers", decision.Containers),
	)
	return f.headless.Fetch(ctx, url)
}
