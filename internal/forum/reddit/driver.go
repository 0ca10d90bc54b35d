// Package reddit drives old.reddit.com through a real browser on behalf of
// the sweep bot.
package reddit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/browser"
	"github.com/JakeFAU/unbloq/internal/sweep"
)

const (
	// DefaultBaseURL is the legacy interface the selectors target.
	DefaultBaseURL = "https://old.reddit.com"

	defaultTimeWindow        = "month"
	defaultWaitTimeout       = 10 * time.Second
	defaultNavigationTimeout = 60 * time.Second
)

// Login form inputs live inside faceplate-text-input shadow roots.
const (
	usernameInputJS = `document.querySelectorAll("faceplate-text-input")[0].shadowRoot.querySelector("input")`
	passwordInputJS = `document.querySelectorAll("faceplate-text-input")[1].shadowRoot.querySelector("input")`
	loginButtonJS   = `document.querySelectorAll("faceplate-tracker")[2].firstElementChild`
	loggedInJS      = `!location.pathname.startsWith("/login")`
)

const (
	outboundSelector = `a.outbound`
	commentBox       = `textarea[name="text"]`
	commentSubmit    = `form.usertext button[type="submit"]`
	// commentSettledJS is truthy once the form cleared after posting or the
	// form shows a visible error such as a rate limit notice.
	commentSettledJS = `(() => {
		const box = document.querySelector('textarea[name="text"]');
		if (box && box.value === "") return true;
		return [...document.querySelectorAll("form.usertext .error")]
			.some(e => e.offsetParent !== null && e.textContent.trim() !== "");
	})()`
)

// Config controls the browser and the forum account.
type Config struct {
	BaseURL           string
	Username          string
	Password          string
	WaitTimeout       time.Duration
	NavigationTimeout time.Duration
	UserAgent         string
	ExecPath          string
	Headful           bool
	NoSandbox         bool
}

// Driver implements sweep.Forum with one browser whose tabs share a login.
type Driver struct {
	cfg     Config
	logger  *zap.Logger
	browser *browser.Process
}

var _ sweep.Forum = (*Driver)(nil)

// New validates cfg. The browser is launched by Start or on first use.
func New(cfg Config, logger *zap.Logger) (*Driver, error) {
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("forum username and password are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{cfg: cfg, logger: logger}
	d.browser = browser.NewProcess(d.launch)
	return d, nil
}

func (d *Driver) launch() (context.Context, context.CancelFunc, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", !d.cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(1280, 800),
	)
	if d.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if d.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.cfg.ExecPath))
	}
	if d.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(d.cfg.UserAgent))
	}
	ctx, cancel, err := browser.ExecLauncher(opts...)()
	if err != nil {
		return nil, nil, err
	}
	d.logger.Info("forum browser started", zap.Bool("headful", d.cfg.Headful))
	return ctx, cancel, nil
}

// Start launches the browser. A failed launch is retried on next use.
func (d *Driver) Start() error {
	_, err := d.browserContext()
	return err
}

func (d *Driver) browserContext() (context.Context, error) {
	ctx, err := d.browser.Context()
	if err != nil {
		return nil, fmt.Errorf("start forum browser: %w", err)
	}
	return ctx, nil
}

// Close tears down the browser and every open tab.
func (d *Driver) Close() {
	d.browser.Close()
}

// Authenticate signs in through the login form on the main tab.
func (d *Driver) Authenticate(ctx context.Context) error {
	browserCtx, err := d.browserContext()
	if err != nil {
		return err
	}
	runCtx, cancel := bound(ctx, browserCtx, d.cfg.NavigationTimeout)
	defer cancel()

	var loggedIn bool
	err = chromedp.Run(runCtx,
		chromedp.Navigate(d.cfg.BaseURL+"/login"),
		chromedp.WaitVisible("faceplate-text-input", chromedp.ByQuery),
		chromedp.SendKeys(usernameInputJS, d.cfg.Username, chromedp.ByJSPath),
		chromedp.SendKeys(passwordInputJS, d.cfg.Password, chromedp.ByJSPath),
		chromedp.Click(loginButtonJS, chromedp.ByJSPath),
		chromedp.Poll(loggedInJS, &loggedIn, chromedp.WithPollingTimeout(d.cfg.NavigationTimeout)),
	)
	if err != nil {
		return fmt.Errorf("log in as %s: %w", d.cfg.Username, err)
	}
	d.logger.Info("logged in", zap.String("user", d.cfg.Username))
	return nil
}

// Search loads the first page of results on the main tab.
func (d *Driver) Search(ctx context.Context, q sweep.Query) ([]string, error) {
	searchURL, err := SearchURL(d.cfg.BaseURL, q)
	if err != nil {
		return nil, err
	}
	browserCtx, err := d.browserContext()
	if err != nil {
		return nil, err
	}
	runCtx, cancel := bound(ctx, browserCtx, d.cfg.NavigationTimeout)
	defer cancel()

	var html, location string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(searchURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("load search %s: %w", searchURL, err)
	}
	posts, err := ParseSearchResults(html, location)
	if err != nil {
		return nil, err
	}
	d.logger.Info("search results loaded", zap.String("url", searchURL), zap.Int("posts", len(posts)))
	return posts, nil
}

// OpenPost loads postURL in a new tab of the signed-in browser.
func (d *Driver) OpenPost(ctx context.Context, postURL string) (sweep.Post, error) {
	browserCtx, err := d.browserContext()
	if err != nil {
		return nil, err
	}
	tabCtx, closeTab := chromedp.NewContext(browserCtx)
	p := &post{driver: d, tab: tabCtx, closeTab: closeTab, url: postURL}

	runCtx, cancel := bound(ctx, tabCtx, d.cfg.NavigationTimeout)
	defer cancel()
	err = chromedp.Run(runCtx,
		chromedp.Navigate(postURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		closeTab()
		return nil, fmt.Errorf("open post %s: %w", postURL, err)
	}
	return p, nil
}

// bound derives a run context from a chromedp context that also ends when
// ctx does, or after timeout.
func bound(ctx, tab context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(tab, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

type post struct {
	driver   *Driver
	tab      context.Context
	closeTab context.CancelFunc
	url      string
}

// References scans the loaded post for mentions of domain.
func (p *post) References(ctx context.Context, domain string) (bool, error) {
	html, err := p.html(ctx)
	if err != nil {
		return false, err
	}
	return ReferencesDomain(html, domain)
}

// OutboundLink returns the article the post links to.
func (p *post) OutboundLink(ctx context.Context) (string, error) {
	runCtx, cancel := bound(ctx, p.tab, p.driver.cfg.WaitTimeout)
	defer cancel()

	var href string
	var ok bool
	err := chromedp.Run(runCtx,
		chromedp.WaitVisible(outboundSelector, chromedp.ByQuery),
		chromedp.AttributeValue(outboundSelector, "href", &href, &ok, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("find outbound link: %w", err)
	}
	if !ok || strings.TrimSpace(href) == "" {
		return "", errors.New("outbound link has no href")
	}
	return strings.TrimSpace(href), nil
}

// Comment types text into the reply box, submits it and returns the page once
// the form has settled.
func (p *post) Comment(ctx context.Context, text string) (string, error) {
	waitCtx, cancel := bound(ctx, p.tab, p.driver.cfg.WaitTimeout)
	defer cancel()

	var settled bool
	err := chromedp.Run(waitCtx,
		chromedp.WaitVisible(commentBox, chromedp.ByQuery),
		chromedp.Click(commentBox, chromedp.ByQuery),
		chromedp.SendKeys(commentBox, text, chromedp.ByQuery),
		chromedp.Click(commentSubmit, chromedp.ByQuery),
		chromedp.Poll(commentSettledJS, &settled, chromedp.WithPollingTimeout(p.driver.cfg.WaitTimeout)),
	)
	if err != nil {
		return "", fmt.Errorf("submit comment on %s: %w", p.url, err)
	}
	return p.html(ctx)
}

// Close closes the tab.
func (p *post) Close() error {
	p.closeTab()
	return nil
}

func (p *post) html(ctx context.Context) (string, error) {
	runCtx, cancel := bound(ctx, p.tab, p.driver.cfg.WaitTimeout)
	defer cancel()
	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read post page: %w", err)
	}
	return html, nil
}
