package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/unbloq/internal/normalize"
	"github.com/JakeFAU/unbloq/internal/resolver"
	"github.com/JakeFAU/unbloq/internal/seenset"
)

// --- fakes ---

type fakePost struct {
	url        string
	outbound   string
	references bool
	commentErr error
	response   string
	comments   []string
	closed     bool
}

func (p *fakePost) References(context.Context, string) (bool, error) { return p.references, nil }

func (p *fakePost) OutboundLink(context.Context) (string, error) {
	if p.outbound == "" {
		return "", errors.New("a.outbound not found")
	}
	return p.outbound, nil
}

func (p *fakePost) Comment(_ context.Context, text string) (string, error) {
	if p.commentErr != nil {
		return "", p.commentErr
	}
	p.comments = append(p.comments, text)
	return p.response, nil
}

func (p *fakePost) Close() error {
	p.closed = true
	return nil
}

type fakeForum struct {
	mu        sync.Mutex
	authErr   error
	authCalls int
	results   []string
	searchErr error
	queries   []Query
	posts     map[string]*fakePost
	opened    []string
}

func (f *fakeForum) Authenticate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	return f.authErr
}

func (f *fakeForum) Search(_ context.Context, q Query) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return append([]string(nil), f.results...), nil
}

func (f *fakeForum) OpenPost(_ context.Context, postURL string) (Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, postURL)
	p, ok := f.posts[postURL]
	if !ok {
		return nil, errors.New("navigation timeout")
	}
	return p, nil
}

type fakeResolver struct {
	err  error
	seen []normalize.URL
}

func (r *fakeResolver) Resolve(_ context.Context, u normalize.URL) (resolver.Result, error) {
	r.seen = append(r.seen, u)
	if r.err != nil {
		return resolver.Result{}, r.err
	}
	return resolver.Result{Status: resolver.StatusFound, Link: "https://archive.ph/AbCd"}, nil
}

type fakeClock struct {
	sleeps []time.Duration
	// cancel fires once len(sleeps) reaches stopAfter.
	stopAfter int
	cancel    context.CancelFunc
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	if c.cancel != nil && len(c.sleeps) >= c.stopAfter {
		c.cancel()
	}
	return ctx.Err()
}

type countingSet struct {
	*seenset.Memory
	claims int
}

func (s *countingSet) AddIfAbsent(ctx context.Context, postURL string) (bool, error) {
	added, err := s.Memory.AddIfAbsent(ctx, postURL)
	if added {
		s.claims++
	}
	return added, err
}

const (
	postA = "https://old.reddit.com/r/news/comments/a/"
	postB = "https://old.reddit.com/r/news/comments/b/"
	postC = "https://old.reddit.com/r/news/comments/c/"
)

func testConfig() Config {
	return Config{
		Domains:           []string{"nytimes.com", "wired.com"},
		SortMode:          SortRecent,
		TimeWindow:        "month",
		PublicBaseURL:     "https://unbloq.us/",
		OwnDomain:         "unbloq.us",
		InterSweepDelay:   10 * time.Minute,
		CandidateCooldown: 3 * time.Second,
		BackoffMargin:     5 * time.Second,
	}
}

func newController(t *testing.T, cfg Config, forum Forum, seen seenset.Set, res Resolver, clock Clock) *Controller {
	t.Helper()
	c, err := New(cfg, forum, seen, res, clock, nil)
	require.NoError(t, err)
	return c
}

// --- tests ---

func TestSweep_PromotesCandidate(t *testing.T) {
	t.Parallel()

	post := &fakePost{outbound: "https://www.nytimes.com/2025/06/01/story.html"}
	forum := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{postA: post}}
	res := &fakeResolver{}
	clock := &fakeClock{}
	seen := seenset.NewMemory()

	report, err := newController(t, testConfig(), forum, seen, res, clock).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Candidates: 1, Promoted: 1}, report)

	require.Equal(t, []normalize.URL{"https://www.nytimes.com/2025/06/01/story.html"}, res.seen)
	require.Equal(t, []string{
		"https://unbloq.us/https://www.nytimes.com/2025/06/01/story.html\n\n" + DefaultCommentTip,
	}, post.comments)
	require.True(t, post.closed)
	require.Equal(t, []time.Duration{3 * time.Second}, clock.sleeps)

	ok, err := seen.Contains(context.Background(), postA)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, []Query{{Domains: []string{"nytimes.com", "wired.com"}, Sort: SortRecent, TimeWindow: "month"}}, forum.queries)
}

func TestSweep_SeenCandidateIsNotOpenedOrReAdded(t *testing.T) {
	t.Parallel()

	seen := &countingSet{Memory: seenset.NewMemory()}
	require.NoError(t, seen.Memory.Add(context.Background(), postA))
	forum := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{postA: {outbound: "https://wired.com/x"}}}
	clock := &fakeClock{}

	report, err := newController(t, testConfig(), forum, seen, &fakeResolver{}, clock).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Candidates: 1, Skipped: 1}, report)
	require.Empty(t, forum.opened)
	require.Zero(t, seen.claims)
	require.Equal(t, 1, seen.Len())
	require.Empty(t, clock.sleeps)
}

func TestSweep_SharedSetPromotesOnce(t *testing.T) {
	t.Parallel()

	seen := seenset.NewMemory()
	post := &fakePost{outbound: "https://wired.com/story/x"}
	recent := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{postA: post}}
	top := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{postA: post}}

	topCfg := testConfig()
	topCfg.SortMode = SortTop

	first, err := newController(t, testConfig(), recent, seen, &fakeResolver{}, &fakeClock{}).Sweep(context.Background())
	require.NoError(t, err)
	second, err := newController(t, topCfg, top, seen, &fakeResolver{}, &fakeClock{}).Sweep(context.Background())
	require.NoError(t, err)

	require.Equal(t, Report{Candidates: 1, Promoted: 1}, first)
	require.Equal(t, Report{Candidates: 1, Skipped: 1}, second)
	require.Len(t, post.comments, 1)
	require.Empty(t, top.opened)
}

func TestSweep_MarksSeenBeforeActing(t *testing.T) {
	t.Parallel()

	seen := seenset.NewMemory()
	// postA has no fake page, so opening it fails.
	forum := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{}}

	report, err := newController(t, testConfig(), forum, seen, &fakeResolver{}, &fakeClock{}).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Candidates: 1, Errored: 1}, report)

	ok, err := seen.Contains(context.Background(), postA)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweep_SkipsPostsAlreadyReferencingUs(t *testing.T) {
	t.Parallel()

	post := &fakePost{outbound: "https://wired.com/x", references: true}
	forum := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{postA: post}}
	res := &fakeResolver{}

	report, err := newController(t, testConfig(), forum, seenset.NewMemory(), res, &fakeClock{}).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Candidates: 1, Skipped: 1}, report)
	require.Empty(t, post.comments)
	require.Empty(t, res.seen)
	require.True(t, post.closed)
}

func TestSweep_PreWarmFailureAbortsCandidateOnly(t *testing.T) {
	t.Parallel()

	first := &fakePost{outbound: "https://wired.com/x"}
	second := &fakePost{outbound: "https://wired.com/y"}
	forum := &fakeForum{
		results: []string{postA, postB},
		posts:   map[string]*fakePost{postA: first, postB: second},
	}
	res := &failOnceResolver{}

	report, err := newController(t, testConfig(), forum, seenset.NewMemory(), res, &fakeClock{}).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Candidates: 2, Errored: 1, Promoted: 1}, report)
	require.Empty(t, first.comments)
	require.True(t, first.closed)
	require.Len(t, second.comments, 1)
}

type failOnceResolver struct {
	calls int
}

func (r *failOnceResolver) Resolve(context.Context, normalize.URL) (resolver.Result, error) {
	r.calls++
	if r.calls == 1 {
		return resolver.Result{}, errors.New("resolution api returned 500")
	}
	return resolver.Result{Status: resolver.StatusNotYetArchived, Link: "https://archive.ph/submit/?url=x"}, nil
}

func TestSweep_CandidateFailuresContinue(t *testing.T) {
	t.Parallel()

	broken := &fakePost{outbound: "https://wired.com/x", commentErr: errors.New("textarea not found")}
	noLink := &fakePost{}
	good := &fakePost{outbound: "wired.com/z"}
	forum := &fakeForum{
		results: []string{postA, postB, postC},
		posts:   map[string]*fakePost{postA: broken, postB: noLink, postC: good},
	}
	clock := &fakeClock{}

	report, err := newController(t, testConfig(), forum, seenset.NewMemory(), &fakeResolver{}, clock).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{Candidates: 3, Errored: 2, Promoted: 1}, report)
	require.True(t, broken.closed)
	require.True(t, noLink.closed)
	require.Equal(t, []string{"https://unbloq.us/https://wired.com/z\n\n" + DefaultCommentTip}, good.comments)
	require.Len(t, clock.sleeps, 1)
}

func TestSweep_RateLimitNoticeSetsBackoff(t *testing.T) {
	t.Parallel()

	limited := &fakePost{
		outbound: "https://wired.com/x",
		response: `<div class="error">you are doing that too much. try again in 9 minutes.</div>`,
	}
	fine := &fakePost{outbound: "https://wired.com/y", response: "<html>thanks</html>"}
	forum := &fakeForum{
		results: []string{postA, postB},
		posts:   map[string]*fakePost{postA: limited, postB: fine},
	}
	clock := &fakeClock{}

	_, err := newController(t, testConfig(), forum, seenset.NewMemory(), &fakeResolver{}, clock).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []time.Duration{9*time.Minute + 5*time.Second, 3 * time.Second}, clock.sleeps)
}

func TestSweep_TruncatesToMaxCandidates(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.MaxCandidates = 1
	forum := &fakeForum{
		results: []string{postA, postB},
		posts:   map[string]*fakePost{postA: {outbound: "https://wired.com/x"}, postB: {outbound: "https://wired.com/y"}},
	}

	report, err := newController(t, cfg, forum, seenset.NewMemory(), &fakeResolver{}, &fakeClock{}).Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Candidates)
	require.Equal(t, []string{postA}, forum.opened)
}

func TestSweep_AuthenticatesOnce(t *testing.T) {
	t.Parallel()

	forum := &fakeForum{}
	c := newController(t, testConfig(), forum, seenset.NewMemory(), &fakeResolver{}, &fakeClock{})

	for range 3 {
		_, err := c.Sweep(context.Background())
		require.NoError(t, err)
	}
	require.Equal(t, 1, forum.authCalls)
	require.Len(t, forum.queries, 3)
}

func TestRun_AuthenticationFailureStops(t *testing.T) {
	t.Parallel()

	forum := &fakeForum{authErr: errors.New("bad credentials")}
	err := newController(t, testConfig(), forum, seenset.NewMemory(), &fakeResolver{}, &fakeClock{}).
		Run(context.Background())
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.Empty(t, forum.queries)
}

func TestRun_TopModeRunsOnce(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.SortMode = SortTop
	forum := &fakeForum{results: []string{postA}, posts: map[string]*fakePost{postA: {outbound: "https://wired.com/x"}}}
	clock := &fakeClock{}

	require.NoError(t, newController(t, cfg, forum, seenset.NewMemory(), &fakeResolver{}, clock).Run(context.Background()))
	require.Len(t, forum.queries, 1)
	require.Equal(t, SortTop, forum.queries[0].Sort)
	// Only the post-comment cooldown, no inter-sweep delay.
	require.Equal(t, []time.Duration{3 * time.Second}, clock.sleeps)
}

func TestRun_RecentModeRepeatsAfterDelay(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	forum := &fakeForum{searchErr: errors.New("search timed out")}
	clock := &fakeClock{stopAfter: 3, cancel: cancel}

	err := newController(t, testConfig(), forum, seenset.NewMemory(), &fakeResolver{}, clock).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, forum.queries, 3)
	require.Equal(t, []time.Duration{10 * time.Minute, 10 * time.Minute, 10 * time.Minute}, clock.sleeps)
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	good := testConfig()
	forum, seen, res, clock := &fakeForum{}, seenset.NewMemory(), &fakeResolver{}, &fakeClock{}

	_, err := New(good, nil, seen, res, clock, nil)
	require.Error(t, err)
	_, err = New(good, forum, nil, res, clock, nil)
	require.Error(t, err)
	_, err = New(good, forum, seen, nil, clock, nil)
	require.Error(t, err)
	_, err = New(good, forum, seen, res, nil, nil)
	require.Error(t, err)

	noDomains := good
	noDomains.Domains = nil
	_, err = New(noDomains, forum, seen, res, clock, nil)
	require.Error(t, err)

	badSort := good
	badSort.SortMode = "hot"
	_, err = New(badSort, forum, seen, res, clock, nil)
	require.Error(t, err)

	defaults := good
	defaults.SortMode = ""
	c, err := New(defaults, forum, seen, res, clock, nil)
	require.NoError(t, err)
	require.Equal(t, SortRecent, c.cfg.SortMode)
	require.Equal(t, "https://unbloq.us", c.cfg.PublicBaseURL)
}
