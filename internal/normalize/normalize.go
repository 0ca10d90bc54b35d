// Package normalize canonicalizes the raw path suffix of a redirect request into
// an absolute target URL.
package normalize

import (
	"errors"
	"strings"
)

var (
	// ErrMalformedURL is returned for input that cannot name a target.
	ErrMalformedURL = errors.New("malformed url")
	// ErrNoTarget signals query-only input; callers show the landing page.
	ErrNoTarget = errors.New("no target url")
)

// URL is an absolute URL with exactly one scheme token. Produce it with Normalize.
type URL string

// String returns the URL text.
func (u URL) String() string {
	return string(u)
}

const (
	httpPrefix  = "http://"
	httpsPrefix = "https://"
)

// Normalize turns the portion of a request after the application host into a URL.
//
// Exactly one leading "/" is stripped, the single-slash corruption produced by
// path collapsing ("https:/example.com") is repaired, and "https://" is
// prepended when no scheme is present.
func Normalize(raw string) (URL, error) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "?") || strings.HasPrefix(s, "/?") {
		return "", ErrNoTarget
	}
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return "", ErrMalformedURL
	}

	s = repairScheme(s, "http:/", httpPrefix)
	s = repairScheme(s, "https:/", httpsPrefix)

	if !strings.HasPrefix(s, httpPrefix) && !strings.HasPrefix(s, httpsPrefix) {
		s = httpsPrefix + s
	}
	return URL(s), nil
}

func repairScheme(s, broken, canonical string) string {
	if strings.HasPrefix(s, broken) && !strings.HasPrefix(s, canonical) {
		return canonical + strings.TrimPrefix(s, broken)
	}
	return s
}

// EncodeURIComponent escapes s the way ECMAScript's encodeURIComponent does.
// Cache keys and submission links use this encoding so they stay compatible
// with entries written by other clients of the same store.
func EncodeURIComponent(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}
