package scrape

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// PromotingFetcher tries a cheap HTTP probe first and escalates to a
// headless fetch when the probe fails or the detector asks for it.
type PromotingFetcher struct {
	probe    Fetcher
	headless Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromotingFetcher wires the probe and headless fetchers together.
func NewPromotingFetcher(probe, headless Fetcher, detector Detector, logger *zap.Logger) (*PromotingFetcher, error) {
	if probe == nil || headless == nil {
		return nil, errors.New("probe and headless fetchers are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotingFetcher{
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger,
	}, nil
}

// Fetch implements Fetcher.
func (f *PromotingFetcher) Fetch(ctx context.Context, url string) (Page, error) {
	page, probeErr := f.probe.Fetch(ctx, url)
	if probeErr == nil && !f.shouldPromote(page) {
		return page, nil
	}
	if probeErr != nil {
		if ctx.Err() != nil {
			return Page{}, fmt.Errorf("probe fetch: %w", probeErr)
		}
		f.logger.Debug("probe failed, promoting to headless", zap.String("url", url), zap.Error(probeErr))
	} else {
		f.logger.Debug("promoting to headless", zap.String("url", url), zap.Int("status", page.StatusCode))
	}

	rendered, err := f.headless.Fetch(ctx, url)
	if err != nil {
		if errors.Is(err, ErrRendererDisabled) && probeErr == nil {
			return page, nil
		}
		return Page{}, fmt.Errorf("headless fetch: %w", err)
	}
	return rendered, nil
}

func (f *PromotingFetcher) shouldPromote(page Page) bool {
	if f.detector == nil {
		return false
	}
	return f.detector.ShouldPromote(page)
}
