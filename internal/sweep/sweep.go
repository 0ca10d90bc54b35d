// Package sweep runs the promotion bot: find forum posts linking to
// paywalled domains, pre-warm their archives and reply with an archive link.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/unbloq/internal/metrics"
	"github.com/JakeFAU/unbloq/internal/normalize"
	"github.com/JakeFAU/unbloq/internal/resolver"
	"github.com/JakeFAU/unbloq/internal/seenset"
)

// ErrNotAuthenticated indicates the forum rejected or lost the bot session.
var ErrNotAuthenticated = errors.New("forum session not authenticated")

// SortMode selects how search results are ordered.
type SortMode string

// Sort modes.
const (
	// SortRecent sweeps the newest posts and repeats forever.
	SortRecent SortMode = "recent"
	// SortTop sweeps the highest scored posts once.
	SortTop SortMode = "top"
)

// DefaultCommentTip follows the archive link in every comment.
const DefaultCommentTip = `tip: put "unbloq.us/" before any link to jump to an archive of it`

// Query describes one forum search.
type Query struct {
	Domains    []string
	Sort       SortMode
	TimeWindow string
}

// Forum is the discussion site the bot promotes on.
type Forum interface {
	Authenticate(ctx context.Context) error
	// Search returns candidate post URLs from the first result page.
	Search(ctx context.Context, q Query) ([]string, error)
	OpenPost(ctx context.Context, postURL string) (Post, error)
}

// Post is an opened forum post.
type Post interface {
	// References reports whether the post already links to domain.
	References(ctx context.Context, domain string) (bool, error)
	OutboundLink(ctx context.Context) (string, error)
	// Comment submits text and returns the resulting page HTML.
	Comment(ctx context.Context, text string) (string, error)
	Close() error
}

// Resolver pre-warms archive links.
type Resolver interface {
	Resolve(ctx context.Context, u normalize.URL) (resolver.Result, error)
}

// Clock suspends the controller between actions.
type Clock interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// Config tunes the controller.
type Config struct {
	Domains           []string
	SortMode          SortMode
	TimeWindow        string
	MaxCandidates     int
	PublicBaseURL     string
	OwnDomain         string
	CommentTip        string
	InterSweepDelay   time.Duration
	CandidateCooldown time.Duration
	BackoffMargin     time.Duration
}

// Outcome classifies what happened to one candidate.
type Outcome string

// Candidate outcomes.
const (
	OutcomeSkipped  Outcome = "skipped"
	OutcomePromoted Outcome = "promoted"
	OutcomeErrored  Outcome = "errored"
)

// Report summarizes one sweep.
type Report struct {
	Candidates int
	Skipped    int
	Promoted   int
	Errored    int
}

func (r *Report) record(o Outcome) {
	switch o {
	case OutcomeSkipped:
		r.Skipped++
	case OutcomePromoted:
		r.Promoted++
	case OutcomeErrored:
		r.Errored++
	}
}

// Controller drives sweeps sequentially; it is not safe for concurrent use.
type Controller struct {
	cfg           Config
	forum         Forum
	seen          seenset.Set
	resolver      Resolver
	clock         Clock
	logger        *zap.Logger
	authenticated bool
}

// New validates cfg and wires a Controller.
func New(cfg Config, forum Forum, seen seenset.Set, res Resolver, clock Clock, logger *zap.Logger) (*Controller, error) {
	switch {
	case forum == nil:
		return nil, errors.New("forum is required")
	case seen == nil:
		return nil, errors.New("seen set is required")
	case res == nil:
		return nil, errors.New("resolver is required")
	case clock == nil:
		return nil, errors.New("clock is required")
	case len(cfg.Domains) == 0:
		return nil, errors.New("at least one domain is required")
	case cfg.PublicBaseURL == "":
		return nil, errors.New("public base url is required")
	}
	switch cfg.SortMode {
	case "":
		cfg.SortMode = SortRecent
	case SortRecent, SortTop:
	default:
		return nil, fmt.Errorf("unknown sort mode %q", cfg.SortMode)
	}
	if cfg.CommentTip == "" {
		cfg.CommentTip = DefaultCommentTip
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		cfg:      cfg,
		forum:    forum,
		seen:     seen,
		resolver: res,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Run sweeps until ctx ends. In top mode it sweeps once and returns.
func (c *Controller) Run(ctx context.Context) error {
	for {
		report, err := c.Sweep(ctx)
		switch {
		case ctx.Err() != nil:
			return fmt.Errorf("sweep stopped: %w", ctx.Err())
		case errors.Is(err, ErrNotAuthenticated):
			return err
		case err != nil && c.cfg.SortMode == SortTop:
			return err
		case err != nil:
			c.logger.Warn("sweep failed", zap.Error(err))
		default:
			c.logger.Info("sweep complete",
				zap.Int("candidates", report.Candidates),
				zap.Int("promoted", report.Promoted),
				zap.Int("skipped", report.Skipped),
				zap.Int("errored", report.Errored),
			)
		}
		if c.cfg.SortMode == SortTop {
			return nil
		}
		if err := c.clock.Sleep(ctx, c.cfg.InterSweepDelay); err != nil {
			return fmt.Errorf("sweep stopped: %w", err)
		}
	}
}

// Sweep performs one discover-and-promote pass.
func (c *Controller) Sweep(ctx context.Context) (Report, error) {
	if err := c.authenticate(ctx); err != nil {
		return Report{}, err
	}

	posts, err := c.forum.Search(ctx, Query{
		Domains:    c.cfg.Domains,
		Sort:       c.cfg.SortMode,
		TimeWindow: c.cfg.TimeWindow,
	})
	if err != nil {
		return Report{}, fmt.Errorf("search forum: %w", err)
	}
	if c.cfg.MaxCandidates > 0 && len(posts) > c.cfg.MaxCandidates {
		posts = posts[:c.cfg.MaxCandidates]
	}

	report := Report{Candidates: len(posts)}
	for _, postURL := range posts {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sweep interrupted: %w", err)
		}
		outcome, html, err := c.process(ctx, postURL)
		report.record(outcome)
		metrics.ObserveSweepCandidate(string(outcome))
		if err != nil {
			c.logger.Warn("candidate failed", zap.String("post", postURL), zap.Error(err))
			continue
		}
		if outcome != OutcomePromoted {
			continue
		}
		wait, limited := c.backoffAfter(html)
		if limited {
			metrics.ObserveSweepBackoff(wait)
			c.logger.Info("rate limited, backing off", zap.Duration("wait", wait))
		}
		if err := c.clock.Sleep(ctx, wait); err != nil {
			return report, fmt.Errorf("sweep interrupted: %w", err)
		}
	}
	return report, nil
}

func (c *Controller) authenticate(ctx context.Context) error {
	if c.authenticated {
		return nil
	}
	if err := c.forum.Authenticate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrNotAuthenticated, err)
	}
	c.authenticated = true
	c.logger.Info("forum session established")
	return nil
}

// process handles one candidate. It returns the comment response page when
// the candidate was promoted.
func (c *Controller) process(ctx context.Context, postURL string) (Outcome, string, error) {
	logger := c.logger.With(zap.String("post", postURL))

	// Claimed before acting: a crash mid-promotion must never lead to a second comment.
	claimed, err := c.seen.AddIfAbsent(ctx, postURL)
	if err != nil {
		return OutcomeErrored, "", fmt.Errorf("mark seen: %w", err)
	}
	if !claimed {
		logger.Debug("already processed")
		return OutcomeSkipped, "", nil
	}

	post, err := c.forum.OpenPost(ctx, postURL)
	if err != nil {
		return OutcomeErrored, "", fmt.Errorf("open post: %w", err)
	}
	defer func() {
		if cerr := post.Close(); cerr != nil {
			logger.Debug("close post", zap.Error(cerr))
		}
	}()

	if c.cfg.OwnDomain != "" {
		mentioned, err := post.References(ctx, c.cfg.OwnDomain)
		if err != nil {
			return OutcomeErrored, "", fmt.Errorf("scan post: %w", err)
		}
		if mentioned {
			logger.Debug("post already references us")
			return OutcomeSkipped, "", nil
		}
	}

	outbound, err := post.OutboundLink(ctx)
	if err != nil {
		return OutcomeErrored, "", fmt.Errorf("find outbound link: %w", err)
	}
	target, err := normalize.Normalize(outbound)
	if err != nil {
		return OutcomeErrored, "", fmt.Errorf("normalize outbound link %q: %w", outbound, err)
	}

	res, err := c.resolver.Resolve(ctx, target)
	if err != nil {
		return OutcomeErrored, "", fmt.Errorf("pre-warm archive: %w", err)
	}
	logger.Debug("archive pre-warmed", zap.Stringer("status", res.Status), zap.String("link", res.Link))

	html, err := post.Comment(ctx, c.Comment(target))
	if err != nil {
		return OutcomeErrored, "", fmt.Errorf("submit comment: %w", err)
	}
	logger.Info("comment posted", zap.String("target", target.String()))
	return OutcomePromoted, html, nil
}

// Comment composes the promotional reply for target.
func (c *Controller) Comment(target normalize.URL) string {
	return c.cfg.PublicBaseURL + "/" + target.String() + "\n\n" + c.cfg.CommentTip
}
