// Package scrape defines how archive listing pages are fetched.
package scrape

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	// ErrPoolExhausted indicates no browser session slot became free in time.
	ErrPoolExhausted = errors.New("headless session pool exhausted")
	// ErrScrapeTimeout indicates the navigation deadline expired.
	ErrScrapeTimeout = errors.New("scrape timed out")
	// ErrRendererDisabled indicates headless rendering has been disabled via configuration.
	ErrRendererDisabled = errors.New("renderer disabled")
)

// Fetch modes, also used as metric labels.
const (
	ModeHeadless = "headless"
	ModeProbe    = "probe"
)

// Page is the result of fetching one URL.
type Page struct {
	URL          string
	FinalURL     string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Mode reports which fetch path produced the page.
func (p Page) Mode() string {
	if p.UsedHeadless {
		return ModeHeadless
	}
	return ModeProbe
}

// Fetcher retrieves a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Detector decides whether a plain HTTP page needs a headless retry.
type Detector interface {
	ShouldPromote(page Page) bool
}
