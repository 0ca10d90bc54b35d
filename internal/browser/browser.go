// Package browser owns the lifecycle of one shared Chrome process.
//
// A Process launches lazily, retries a failed launch on the next call, and
// is safe to Close concurrently with callers asking for its context.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("browser closed")

// LaunchFunc starts a browser and returns its root context. cancel must stop
// the browser and release everything launch allocated.
type LaunchFunc func() (ctx context.Context, cancel context.CancelFunc, err error)

// Process is a lazily launched browser shared by many tabs or sessions.
type Process struct {
	launch LaunchFunc

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewProcess wraps launch. Nothing starts until Context is called.
func NewProcess(launch LaunchFunc) *Process {
	return &Process{launch: launch}
}

// Context returns the browser's root context, launching it if needed. A failed
// launch is not remembered; the next call tries again.
func (p *Process) Context() (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.ctx != nil && p.ctx.Err() == nil {
		return p.ctx, nil
	}
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel, err := p.launch()
	if err != nil {
		p.ctx, p.cancel = nil, nil
		return nil, err
	}
	p.ctx, p.cancel = ctx, cancel
	return ctx, nil
}

// Close stops the browser. Later calls to Context return ErrClosed.
func (p *Process) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	p.ctx, p.cancel = nil, nil
}

// ExecLauncher launches a local Chrome with opts and waits for it to answer.
func ExecLauncher(opts ...chromedp.ExecAllocatorOption) LaunchFunc {
	return func() (context.Context, context.CancelFunc, error) {
		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx)
		cancel := func() {
			browserCancel()
			allocCancel()
		}
		if err := chromedp.Run(browserCtx); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("chromedp warmup: %w", err)
		}
		return browserCtx, cancel, nil
	}
}
