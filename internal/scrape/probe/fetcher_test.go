package probe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/unbloq/internal/policy/ratelimit"
	"github.com/JakeFAU/unbloq/internal/scrape"
)

func TestFetch_ReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body data-ua="` + r.UserAgent() + `"><a href="/AbCd"><img src="t.png"></a></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := New(Config{UserAgent: "unbloq-test", Timeout: time.Second}, ratelimit.New(ratelimit.Config{}))
	page, err := f.Fetch(context.Background(), srv.URL+"/https://example.com")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.False(t, page.UsedHeadless)
	require.Contains(t, string(page.Body), `href="/AbCd"`)
	require.Contains(t, string(page.Body), `data-ua="unbloq-test"`)

	// Repeat lookups of the same listing are not deduplicated.
	_, err = f.Fetch(context.Background(), srv.URL+"/https://example.com")
	require.NoError(t, err)
}

func TestFetch_ErrorStatusIsReturnedAsPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	t.Cleanup(srv.Close)

	page, err := New(Config{}, nil).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, page.StatusCode)
}

func TestFetch_ContextCancelled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(block)
		srv.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := New(Config{Timeout: 5 * time.Second}, nil).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var page scrape.Page
	var fetchErr error
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, time.Now(), &page, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	u, err := url.Parse("https://archive.ph/https://example.com")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: u},
	})
	require.Equal(t, "body", string(page.Body))
	require.Equal(t, "ok", page.Headers.Get("X-Resp"))
	require.Equal(t, u.String(), page.FinalURL)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

type stubHooks struct {
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }

func (s *stubHooks) OnError(cb colly.ErrorCallback) { s.onError = cb }
