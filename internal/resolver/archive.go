package resolver

import (
	"strings"

	"github.com/JakeFAU/unbloq/internal/normalize"
)

// DefaultArchiveBaseURL is the archive.today mirror used when none is configured.
const DefaultArchiveBaseURL = "https://archive.ph"

// ArchiveHost builds archive.today URLs for a normalized target.
type ArchiveHost struct {
	BaseURL string
}

func (h ArchiveHost) base() string {
	base := strings.TrimRight(h.BaseURL, "/")
	if base == "" {
		return DefaultArchiveBaseURL
	}
	return base
}

// ListingURL is the page listing existing snapshots of u.
func (h ArchiveHost) ListingURL(u normalize.URL) string {
	return h.base() + "/" + u.String()
}

// SubmitURL is the link that asks the archive host to capture u.
func (h ArchiveHost) SubmitURL(u normalize.URL) string {
	return h.base() + "/submit/?url=" + normalize.EncodeURIComponent(u.String())
}
