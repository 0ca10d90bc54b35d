// Package resolver turns a normalized URL into an archive snapshot link,
// consulting the cache before scraping the archive host.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/cache"
	"github.com/JakeFAU/unbloq/internal/metrics"
	"github.com/JakeFAU/unbloq/internal/normalize"
	"github.com/JakeFAU/unbloq/internal/scrape"
)

// Status classifies a resolution.
type Status int

const (
	// StatusFound means Link is a published snapshot.
	StatusFound Status = iota + 1
	// StatusNotYetArchived means Link is a submission link.
	StatusNotYetArchived
)

func (s Status) String() string {
	switch s {
	case StatusFound:
		return "found"
	case StatusNotYetArchived:
		return "not_yet_archived"
	default:
		return "unknown"
	}
}

// Result is the outcome of Resolve.
type Result struct {
	Status Status
	Link   string
}

// Extractor pulls the snapshot link out of a listing page.
type Extractor interface {
	Extract(html string, original normalize.URL) (string, error)
}

// Config tunes the resolver.
type Config struct {
	Host ArchiveHost
	TTL  time.Duration
}

// Resolver orchestrates cache lookups, scraping and extraction.
type Resolver struct {
	cache     cache.Store
	fetcher   scrape.Fetcher
	extractor Extractor
	host      ArchiveHost
	ttl       time.Duration
	logger    *zap.Logger
}

// New wires a Resolver.
func New(cfg Config, store cache.Store, fetcher scrape.Fetcher, extractor Extractor, logger *zap.Logger) (*Resolver, error) {
	switch {
	case store == nil:
		return nil, errors.New("cache store is required")
	case fetcher == nil:
		return nil, errors.New("fetcher is required")
	case extractor == nil:
		return nil, errors.New("extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Resolver{
		cache:     store,
		fetcher:   fetcher,
		extractor: extractor,
		host:      cfg.Host,
		ttl:       ttl,
		logger:    logger,
	}, nil
}

// Host returns the archive host the resolver targets.
func (r *Resolver) Host() ArchiveHost {
	return r.host
}

// Resolve returns the snapshot link for u, or a submission link when none can
// be confirmed. Only scrape.ErrPoolExhausted is reported as an error.
func (r *Resolver) Resolve(ctx context.Context, u normalize.URL) (Result, error) {
	key := cache.Key(u)
	logger := r.logger.With(zap.String("url", u.String()))

	link, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		metrics.ObserveCacheLookup("error")
		logger.Warn("cache read failed, treating as miss", zap.Error(err))
	case ok:
		metrics.ObserveCacheLookup("hit")
		metrics.ObserveResolution(StatusFound.String())
		return Result{Status: StatusFound, Link: link}, nil
	default:
		metrics.ObserveCacheLookup("miss")
	}

	listing := r.host.ListingURL(u)
	page, err := r.fetcher.Fetch(ctx, listing)
	if err != nil {
		if errors.Is(err, scrape.ErrPoolExhausted) {
			metrics.ObserveResolution("error")
			return Result{}, fmt.Errorf("resolve %s: %w", u, err)
		}
		logger.Info("listing fetch failed", zap.String("listing", listing), zap.Error(err))
		return r.notYetArchived(u), nil
	}
	metrics.ObserveScrape(page.Mode(), page.Duration)

	link, err = r.extractor.Extract(string(page.Body), u)
	if err != nil {
		logger.Debug("no snapshot on listing", zap.Error(err))
		return r.notYetArchived(u), nil
	}
	link = absolute(page.FinalURL, listing, link)

	if err := r.cache.Set(ctx, key, link, r.ttl); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}
	metrics.ObserveResolution(StatusFound.String())
	logger.Debug("snapshot resolved", zap.String("link", link))
	return Result{Status: StatusFound, Link: link}, nil
}

func (r *Resolver) notYetArchived(u normalize.URL) Result {
	metrics.ObserveResolution(StatusNotYetArchived.String())
	return Result{Status: StatusNotYetArchived, Link: r.host.SubmitURL(u)}
}

// absolute resolves link against the page it was found on.
func absolute(finalURL, listing, link string) string {
	baseRaw := finalURL
	if baseRaw == "" {
		baseRaw = listing
	}
	base, err := url.Parse(baseRaw)
	if err != nil {
		return link
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	return base.ResolveReference(ref).String()
}
