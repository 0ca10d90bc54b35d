package reddit

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/unbloq/internal/sweep"
)

// SearchURL builds a site-wide search for posts linking to any of domains.
func SearchURL(baseURL string, q sweep.Query) (string, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if len(q.Domains) == 0 {
		return "", fmt.Errorf("search needs at least one domain")
	}
	sites := make([]string, 0, len(q.Domains))
	for _, d := range q.Domains {
		sites = append(sites, "site:"+strings.TrimSpace(d))
	}
	sort := "new"
	if q.Sort == sweep.SortTop {
		sort = "top"
	}
	window := q.TimeWindow
	if window == "" {
		window = defaultTimeWindow
	}
	params := url.Values{}
	params.Set("q", "("+strings.Join(sites, " OR ")+")")
	params.Set("restrict_sr", "off")
	params.Set("sort", sort)
	params.Set("t", window)

	u := *base
	u.Path = "/search"
	u.RawQuery = params.Encode()
	return u.String(), nil
}

// ParseSearchResults lists the post links on a search result page, resolved
// against pageURL, in page order without duplicates.
func ParseSearchResults(html, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}
	var posts []string
	seen := make(map[string]struct{})
	doc.Find(".search-result-link a.title").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if !strings.Contains(abs, "/r/") {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		posts = append(posts, abs)
	})
	return posts, nil
}

// ReferencesDomain reports whether a post page already links to or mentions
// domain in its links or comment bodies.
func ReferencesDomain(html, domain string) (bool, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return false, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, fmt.Errorf("parse post page: %w", err)
	}
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		found = strings.Contains(strings.ToLower(href), domain)
		return !found
	})
	if found {
		return true, nil
	}
	doc.Find(".usertext-body").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = strings.Contains(strings.ToLower(s.Text()), domain)
		return !found
	})
	return found, nil
}
