package headless

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/unbloq/internal/browser"
	"github.com/JakeFAU/unbloq/internal/scrape"
)

func newTestPool(t *testing.T, cfg Config, render renderFunc) *Pool {
	t.Helper()
	p, err := New(cfg, nil, nil)
	require.NoError(t, err)
	p.render = render
	return p
}

func TestNewValidatesParallelism(t *testing.T) {
	t.Parallel()

	_, err := New(Config{MaxParallel: 0}, nil, nil)
	require.Error(t, err)

	p, err := New(Config{MaxParallel: 3}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, cap(p.sem))
}

func TestTimeoutDefaults(t *testing.T) {
	t.Parallel()

	p := &Pool{}
	require.Equal(t, defaultNavigationTimeout, p.navTimeout())
	require.Equal(t, defaultAcquireTimeout, p.acquireTimeout())

	p.cfg = Config{NavigationTimeout: time.Second, AcquireTimeout: 2 * time.Second}
	require.Equal(t, time.Second, p.navTimeout())
	require.Equal(t, 2*time.Second, p.acquireTimeout())
}

func TestFetchReturnsRenderedPage(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MaxParallel: 1}, func(_ context.Context, url string) (rendered, error) {
		return rendered{html: "<html><body>hi</body></html>", finalURL: url + "#done"}, nil
	})

	page, err := p.Fetch(context.Background(), "https://archive.ph/https://example.com")
	require.NoError(t, err)
	require.True(t, page.UsedHeadless)
	require.Equal(t, 200, page.StatusCode)
	require.Equal(t, "https://archive.ph/https://example.com#done", page.FinalURL)
	require.Contains(t, string(page.Body), "hi")
}

func TestFetchPoolExhausted(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var started atomic.Int32
	p := newTestPool(t, Config{MaxParallel: 1, AcquireTimeout: 30 * time.Millisecond},
		func(ctx context.Context, _ string) (rendered, error) {
			started.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return rendered{html: "<html></html>"}, nil
		})

	done := make(chan error, 1)
	go func() {
		_, err := p.Fetch(context.Background(), "https://archive.ph/a")
		done <- err
	}()
	require.Eventually(t, func() bool { return started.Load() == 1 }, time.Second, 5*time.Millisecond)

	_, err := p.Fetch(context.Background(), "https://archive.ph/b")
	require.ErrorIs(t, err, scrape.ErrPoolExhausted)

	close(release)
	require.NoError(t, <-done)

	// The slot is free again once the first session is disposed.
	_, err = p.Fetch(context.Background(), "https://archive.ph/c")
	require.NoError(t, err)
}

func TestFetchNavigationTimeout(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MaxParallel: 1, NavigationTimeout: 20 * time.Millisecond},
		func(ctx context.Context, _ string) (rendered, error) {
			<-ctx.Done()
			return rendered{}, ctx.Err()
		})

	_, err := p.Fetch(context.Background(), "https://archive.ph/slow")
	require.ErrorIs(t, err, scrape.ErrScrapeTimeout)
}

func TestFetchCallerCancellationIsNotTimeout(t *testing.T) {
	t.Parallel()

	p := newTestPool(t, Config{MaxParallel: 1}, func(ctx context.Context, _ string) (rendered, error) {
		<-ctx.Done()
		return rendered{}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.Fetch(ctx, "https://archive.ph/x")
	require.ErrorIs(t, err, context.Canceled)
	require.NotErrorIs(t, err, scrape.ErrScrapeTimeout)
}

func TestFetchRenderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("net::ERR_NAME_NOT_RESOLVED")
	p := newTestPool(t, Config{MaxParallel: 1}, func(context.Context, string) (rendered, error) {
		return rendered{}, boom
	})
	_, err := p.Fetch(context.Background(), "https://archive.ph/x")
	require.ErrorIs(t, err, boom)
}

func TestResponseMetaKeepsFirstDocument(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  429,
			Headers: network.Headers{"Retry-After": "60"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500},
	})

	status, headers := meta.snapshot()
	require.Equal(t, 429, status)
	require.Equal(t, "60", headers.Get("Retry-After"))
}

func TestDisabledFetcher(t *testing.T) {
	t.Parallel()

	_, err := Disabled{}.Fetch(context.Background(), "https://archive.ph")
	require.ErrorIs(t, err, scrape.ErrRendererDisabled)
}

func TestForwardCancel(t *testing.T) {
	t.Parallel()

	parent, cancelParent := context.WithCancel(context.Background())
	var cancelled atomic.Bool
	stop := forwardCancel(parent, func() { cancelled.Store(true) })
	defer stop()

	cancelParent()
	require.Eventually(t, cancelled.Load, time.Second, 5*time.Millisecond)
}

func TestStartRetriesAfterFailedLaunch(t *testing.T) {
	t.Parallel()

	p, err := New(Config{MaxParallel: 1}, nil, nil)
	require.NoError(t, err)

	var launches int
	p.browser = browser.NewProcess(func() (context.Context, context.CancelFunc, error) {
		launches++
		if launches == 1 {
			return nil, nil, errors.New("chrome not found")
		}
		ctx, cancel := context.WithCancel(context.Background())
		return ctx, cancel, nil
	})

	require.ErrorContains(t, p.Start(), "chrome not found")
	require.NoError(t, p.Start())
	require.Equal(t, 2, launches)

	p.Close()
	require.ErrorIs(t, p.Start(), browser.ErrClosed)
}
