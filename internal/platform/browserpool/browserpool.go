// Package browserpool owns the single headless-browser process a host may
// run, backed by a dedicated background goroutine so that synchronous
// callers can submit browser work and block until it completes. This
// collapses the "asynchronous event loop in a thread, synchronous callers
// submit coroutines to it" shape of the source system into Go's native
// goroutine+channel model, per the Design Notes' stated equivalence.
package browserpool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"dentslot/internal/platform/logger"
)

// DefaultTimeout bounds both pool initialization and any single submitted
// job, matching the source's 600-second future.result bound
const DefaultTimeout = 600 * time.Second

// ErrNotReady is returned by Get/Submit when the pool failed to initialize
// or has not finished starting within the timeout
var ErrNotReady = errors.New("browserpool: browser not ready")

type job struct {
	fn   func(ctx context.Context) error
	done chan error
}

// Pool is the process-wide browser singleton. Construct one with New and
// call Init once at service startup; Submit is safe for concurrent use
type Pool struct {
	timeout time.Duration

	mu           sync.Mutex
	started      bool
	ready        chan struct{}
	fatal        error
	allocCancel  context.CancelFunc
	browserCtx   context.Context
	browserDone  context.CancelFunc
	jobs         chan job
	shutdownOnce sync.Once
}

// New constructs a Pool with the given per-job/init timeout. A zero
// timeout uses DefaultTimeout
func New(timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pool{
		timeout: timeout,
		ready:   make(chan struct{}),
		jobs:    make(chan job, 64),
	}
}

// Init launches the single browser process and starts the dedicated
// goroutine that owns it. It is idempotent; only the first call does work
func (p *Pool) Init(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = true
	p.mu.Unlock()

	log := logger.Named("browserpool")

	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		p.fatal = err
		browserCancel()
		allocCancel()
		close(p.ready)
		log.Error().Err(err).Msg("browser pool failed to start")
		return err
	}

	p.allocCancel = allocCancel
	p.browserCtx = browserCtx
	p.browserDone = browserCancel
	close(p.ready)

	go p.loop()

	log.Info().Msg("browser pool started")
	return nil
}

// loop is the dedicated goroutine that owns all browser I/O; every
// submitted job runs here, one at a time, so page operations from
// different callers never race on the same browser handle at the
// allocator level (each job opens its own tab via chromedp.NewContext)
func (p *Pool) loop() {
	for j := range p.jobs {
		j.done <- j.fn(p.browserCtx)
	}
}

// Submit runs fn against the pool's browser context and blocks until it
// completes, the pool's timeout elapses, or ctx is cancelled
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	select {
	case <-p.ready:
	case <-time.After(p.timeout):
		return ErrNotReady
	}
	if p.fatal != nil {
		return p.fatal
	}

	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return ErrNotReady
	}
}

// NewPage returns a fresh per-caller browser context (tab) derived from
// the pool's shared browser, plus its cancel function. Callers must call
// cancel when done to release the tab; the underlying browser process is
// untouched
func (p *Pool) NewPage(ctx context.Context) (context.Context, context.CancelFunc, error) {
	select {
	case <-p.ready:
	case <-time.After(p.timeout):
		return nil, nil, ErrNotReady
	}
	if p.fatal != nil {
		return nil, nil, p.fatal
	}
	pageCtx, cancel := chromedp.NewContext(p.browserCtx)
	return pageCtx, cancel, nil
}

// IsReady reports whether initialization has completed successfully
func (p *Pool) IsReady() bool {
	select {
	case <-p.ready:
		return p.fatal == nil
	default:
		return false
	}
}

// Shutdown tears down the browser and its allocator. Safe to call more
// than once
func (p *Pool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.jobs)
		if p.browserDone != nil {
			p.browserDone()
		}
		if p.allocCancel != nil {
			p.allocCancel()
		}
	})
}
