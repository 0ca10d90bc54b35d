// Package extract locates the archive permalink inside an archive host listing page.
//
// Listing markup is not a stable format, so extraction runs an ordered list of
// strategies. Each returns a Verdict; the first verdict other than Continue
// decides the result.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/unbloq/internal/normalize"
)

// ErrNotFound is returned when no strategy produced an archive link.
var ErrNotFound = errors.New("archive link not found")

// DefaultNoResultsMarker is the text archive.today renders for an empty listing.
const DefaultNoResultsMarker = "No results"

// Outcome tags a strategy verdict.
type Outcome int

// Strategy outcomes.
const (
	// Continue defers to the next strategy.
	Continue Outcome = iota
	// Found carries the archive link.
	Found
	// Stop ends extraction with ErrNotFound.
	Stop
)

// Verdict is the typed result of one strategy.
type Verdict struct {
	Outcome Outcome
	Link    string
}

func found(link string) Verdict { return Verdict{Outcome: Found, Link: link} }

// Page is the parsed listing handed to every strategy.
type Page struct {
	HTML     string
	Doc      *goquery.Document
	Original normalize.URL
}

// Strategy inspects a listing page.
type Strategy interface {
	Name() string
	Apply(page Page) Verdict
}

// Extractor applies strategies in order.
type Extractor struct {
	strategies []Strategy
}

// New builds an Extractor running strategies in the given order.
func New(strategies ...Strategy) *Extractor {
	return &Extractor{strategies: strategies}
}

// Default returns the production strategy order: the no-results short circuit,
// the thumbnail anchor heuristic, then the self-reference fallback.
func Default(noResultsMarker string) *Extractor {
	if noResultsMarker == "" {
		noResultsMarker = DefaultNoResultsMarker
	}
	return New(
		NoResultsStrategy{Marker: noResultsMarker},
		ThumbnailAnchorStrategy{},
		SelfReferenceStrategy{},
	)
}

// Extract returns the archive link for original found in html.
func (e *Extractor) Extract(html string, original normalize.URL) (string, error) {
	if original == "" {
		return "", ErrNotFound
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parse listing html: %w", err)
	}
	page := Page{HTML: html, Doc: doc, Original: original}
	for _, strategy := range e.strategies {
		verdict := strategy.Apply(page)
		switch verdict.Outcome {
		case Found:
			return verdict.Link, nil
		case Stop:
			return "", ErrNotFound
		case Continue:
		}
	}
	return "", ErrNotFound
}

// NoResultsStrategy stops extraction when the host reports an empty listing.
type NoResultsStrategy struct {
	Marker string
}

// Name identifies the strategy.
func (NoResultsStrategy) Name() string { return "no-results" }

// Apply implements Strategy.
func (s NoResultsStrategy) Apply(page Page) Verdict {
	if s.Marker != "" && strings.Contains(page.HTML, s.Marker) {
		return Verdict{Outcome: Stop}
	}
	return Verdict{Outcome: Continue}
}

// ThumbnailAnchorStrategy picks the first anchor wrapping an image. Current
// listing markup renders each snapshot as a screenshot thumbnail inside its
// permalink.
type ThumbnailAnchorStrategy struct{}

// Name identifies the strategy.
func (ThumbnailAnchorStrategy) Name() string { return "thumbnail-anchor" }

// Apply implements Strategy.
func (ThumbnailAnchorStrategy) Apply(page Page) Verdict {
	var link string
	page.Doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if a.ChildrenFiltered("img").Length() == 0 {
			return true
		}
		href, ok := a.Attr("href")
		if !ok {
			return true
		}
		link = href
		return false
	})
	if link == "" {
		return Verdict{Outcome: Continue}
	}
	return found(link)
}

// SelfReferenceStrategy handles the older markup where the "you searched for"
// link back to the original URL follows the result list. The permalink is the
// anchor immediately before the last self reference. This is a best-effort
// heuristic tied to one markup generation.
type SelfReferenceStrategy struct{}

// Name identifies the strategy.
func (SelfReferenceStrategy) Name() string { return "self-reference" }

// Apply implements Strategy.
func (SelfReferenceStrategy) Apply(page Page) Verdict {
	hrefs := anchorHrefs(page.Doc)
	selfRef := -1
	for i := len(hrefs) - 1; i >= 0; i-- {
		if hrefs[i] != "" && strings.Contains(hrefs[i], page.Original.String()) {
			selfRef = i
			break
		}
	}
	candidate := selfRef - 1
	// The permalink never opens the document; index 0 is site chrome.
	if candidate <= 0 || hrefs[candidate] == "" {
		return Verdict{Outcome: Continue}
	}
	return found(hrefs[candidate])
}

// anchorHrefs lists href values in document order, skipping anchors without one.
func anchorHrefs(doc *goquery.Document) []string {
	var hrefs []string
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok {
			hrefs = append(hrefs, href)
		}
	})
	return hrefs
}
