// Package headless drives archive listing pages through isolated chromedp sessions.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/browser"
	"github.com/JakeFAU/unbloq/internal/metrics"
	"github.com/JakeFAU/unbloq/internal/policy/ratelimit"
	"github.com/JakeFAU/unbloq/internal/scrape"
)

const (
	defaultNavigationTimeout = 45 * time.Second
	defaultAcquireTimeout    = 30 * time.Second
)

// Config controls the behavior of the session pool.
type Config struct {
	MaxParallel       int
	AcquireTimeout    time.Duration
	NavigationTimeout time.Duration
	UserAgent         string
	ExecPath          string
	NoSandbox         bool
}

// rendered is what one browser session hands back.
type rendered struct {
	html     string
	finalURL string
	status   int
	headers  http.Header
}

type renderFunc func(ctx context.Context, url string) (rendered, error)

// Pool owns one browser process and hands out isolated sessions per fetch.
type Pool struct {
	cfg     Config
	sem     chan struct{}
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	render  renderFunc
	browser *browser.Process
}

// New creates a pool. The browser is launched by Start, or lazily on first Fetch.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Pool, error) {
	if cfg.MaxParallel <= 0 {
		return nil, fmt.Errorf("max parallel must be > 0, got %d", cfg.MaxParallel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		cfg:     cfg,
		sem:     make(chan struct{}, cfg.MaxParallel),
		limiter: limiter,
		logger:  logger,
	}
	p.render = p.renderSession
	p.browser = browser.NewProcess(p.launch)
	return p, nil
}

func (p *Pool) launch() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if p.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if p.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	ctx, cancel, err := browser.ExecLauncher(opts...)()
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("headless browser started", zap.Int("max_parallel", p.cfg.MaxParallel))
	return ctx, cancel, nil
}

// Start launches the shared browser. A failed launch is retried by the next
// Start or Fetch.
func (p *Pool) Start() error {
	if _, err := p.browser.Context(); err != nil {
		return fmt.Errorf("start headless browser: %w", err)
	}
	return nil
}

// Close tears down the browser. Fetches after Close fail.
func (p *Pool) Close() {
	p.browser.Close()
}

// Fetch implements scrape.Fetcher.
func (p *Pool) Fetch(ctx context.Context, url string) (scrape.Page, error) {
	release, err := p.acquire(ctx)
	if err != nil {
		return scrape.Page{}, err
	}
	defer release()

	if p.limiter != nil {
		if waitErr := p.limiter.Wait(ctx, url); waitErr != nil {
			return scrape.Page{}, fmt.Errorf("archive host budget: %w", waitErr)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout())
	defer cancel()

	metrics.IncHeadlessSessions()
	defer metrics.DecHeadlessSessions()

	start := time.Now()
	out, err := p.render(navCtx, url)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, scrape.ErrScrapeTimeout)
		}
		return scrape.Page{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	finalURL := out.finalURL
	if finalURL == "" {
		finalURL = url
	}
	status := out.status
	if status == 0 {
		status = http.StatusOK
	}
	return scrape.Page{
		URL:          url,
		FinalURL:     finalURL,
		StatusCode:   status,
		Headers:      out.headers,
		Body:         []byte(out.html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// acquire waits for a session slot. Running out of AcquireTimeout is reported
// as scrape.ErrPoolExhausted; caller cancellation is reported as itself.
func (p *Pool) acquire(ctx context.Context) (func(), error) {
	timer := time.NewTimer(p.acquireTimeout())
	defer timer.Stop()
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, nil
	case <-timer.C:
		return nil, scrape.ErrPoolExhausted
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire session slot: %w", ctx.Err())
	}
}

// renderSession opens a fresh browser context so cookies and history never
// leak between resolutions, and disposes of it on return.
func (p *Pool) renderSession(ctx context.Context, url string) (rendered, error) {
	browserCtx, err := p.browser.Context()
	if err != nil {
		return rendered{}, fmt.Errorf("start headless browser: %w", err)
	}

	sessionCtx, cancelSession := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	defer cancelSession()
	stopForward := forwardCancel(ctx, cancelSession)
	defer stopForward()

	meta := newResponseMeta()
	chromedp.ListenTarget(sessionCtx, meta.captureEvent)

	var out rendered
	tasks := chromedp.Tasks{
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&out.finalURL),
		chromedp.OuterHTML("html", &out.html, chromedp.ByQuery),
	}
	if p.cfg.UserAgent != "" {
		tasks = append(chromedp.Tasks{emulation.SetUserAgentOverride(p.cfg.UserAgent)}, tasks...)
	}
	if err := chromedp.Run(sessionCtx, tasks); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rendered{}, fmt.Errorf("chromedp run: %w", ctxErr)
		}
		return rendered{}, fmt.Errorf("chromedp run: %w", err)
	}
	out.status, out.headers = meta.snapshot()
	return out, nil
}

func (p *Pool) navTimeout() time.Duration {
	if p.cfg.NavigationTimeout > 0 {
		return p.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func (p *Pool) acquireTimeout() time.Duration {
	if p.cfg.AcquireTimeout > 0 {
		return p.cfg.AcquireTimeout
	}
	return defaultAcquireTimeout
}

// forwardCancel cancels the session when the caller's context ends, since the
// session context descends from the browser rather than the request.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

type responseMeta struct {
	mu      sync.Mutex
	seen    bool
	status  int
	headers http.Header
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen {
		return
	}
	m.seen = true
	m.status = int(resp.Response.Status)
	for key, value := range resp.Response.Headers {
		m.headers.Add(key, fmt.Sprint(value))
	}
}

func (m *responseMeta) snapshot() (int, http.Header) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.headers.Clone()
}
