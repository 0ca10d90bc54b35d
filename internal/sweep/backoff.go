package sweep

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// rateLimitPattern matches the notices forums show after a too-fast comment,
// e.g. "you are doing that too much. try again in 7 minutes." or
// "Looks like you've been doing that a lot. Take a break for 30 seconds".
var rateLimitPattern = regexp.MustCompile(`(?i)(?:take a break for|try again in)\s+(\d+)\s+(minute|second)s?`)

// MaxRateLimitWait caps a parsed notice so absurd values cannot overflow.
const MaxRateLimitWait = 24 * time.Hour

// RateLimit is an upstream request to stop posting for Wait.
type RateLimit struct {
	Wait time.Duration
}

// ParseRateLimit looks for a rate limit notice in a response page.
func ParseRateLimit(html string) (RateLimit, bool) {
	m := rateLimitPattern.FindStringSubmatch(html)
	if m == nil {
		return RateLimit{}, false
	}
	unit := time.Second
	if strings.EqualFold(m[2], "minute") {
		unit = time.Minute
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return RateLimit{}, false
	}
	if err != nil || n > int64(MaxRateLimitWait/unit) {
		return RateLimit{Wait: MaxRateLimitWait}, true
	}
	return RateLimit{Wait: time.Duration(n) * unit}, true
}

// backoffAfter decides how long to pause after commenting.
func (c *Controller) backoffAfter(html string) (time.Duration, bool) {
	if limit, ok := ParseRateLimit(html); ok {
		return limit.Wait + c.cfg.BackoffMargin, true
	}
	return c.cfg.CandidateCooldown, false
}
