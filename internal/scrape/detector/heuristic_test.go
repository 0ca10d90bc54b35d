package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/unbloq/internal/scrape"
)

func TestHeuristic_ShouldPromote(t *testing.T) {
	t.Parallel()

	listing := `<html><body><div id="CONTENT"><a href="https://archive.ph/AbCd"><img src="t.png"></a>` +
		`<p>snapshot listing with enough text to be a real page</p></div></body></html>`

	testCases := []struct {
		name string
		page scrape.Page
		want bool
	}{
		{"empty body", scrape.Page{StatusCode: 200}, true},
		{"captcha", scrape.Page{StatusCode: 200, Body: []byte(`<div class="g-recaptcha"></div>`)}, true},
		{"cloudflare interstitial", scrape.Page{StatusCode: 200, Body: []byte(`<title>Just a moment...</title>`)}, true},
		{"spa marker", scrape.Page{StatusCode: 200, Body: []byte(`<div id="__next"></div>` + listing)}, true},
		{"script heavy", scrape.Page{StatusCode: 200, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)}, true},
		{"rate limited", scrape.Page{StatusCode: 429, Body: []byte("slow down")}, true},
		{"forbidden", scrape.Page{StatusCode: 403}, true},
		{"not found", scrape.Page{StatusCode: 404, Body: []byte("not found")}, false},
		{"plain listing", scrape.Page{StatusCode: 200, Body: []byte(listing)}, false},
	}

	h := NewHeuristic(100)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, h.ShouldPromote(tc.page))
		})
	}
}

func TestNewHeuristicDefaultThreshold(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2048, NewHeuristic(0).BodyLengthThreshold)
}

func TestScriptDensityUnclosedTag(t *testing.T) {
	t.Parallel()

	require.True(t, scriptDensityHigh([]byte(`<p>x</p><script>while(true){}`)))
	require.False(t, scriptDensityHigh([]byte(`<p>plain text only</p>`)))
}
