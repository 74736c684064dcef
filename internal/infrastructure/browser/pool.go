package browser

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/docrender/backend/internal/domain/document"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMinSize               = 1
	defaultMaxSize               = 4
	defaultAcquireTimeout        = 30 * time.Second
	defaultIdleTimeout           = 5 * time.Minute
	defaultMaxRendersPerInstance = 100

	minReapInterval = 30 * time.Second
)

// Options configures the browser pool
type Options struct {
	// MinSize is the number of warm instances the reaper retains
	MinSize int
	// MaxSize caps concurrent leases
	MaxSize int
	// AcquireTimeout bounds the wait for a lease
	AcquireTimeout time.Duration
	// IdleTimeout is the idle age after which the reaper may close an
	// instance; zero disables reaping
	IdleTimeout time.Duration
	// MaxRendersPerInstance forces a recycle after this many renders;
	// zero disables recycling
	MaxRendersPerInstance int
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		MinSize:               defaultMinSize,
		MaxSize:               defaultMaxSize,
		AcquireTimeout:        defaultAcquireTimeout,
		IdleTimeout:           defaultIdleTimeout,
		MaxRendersPerInstance: defaultMaxRendersPerInstance,
	}
}

func (o Options) withDefaults() Options {
	if o.MinSize <= 0 {
		o.MinSize = defaultMinSize
	}
	if o.MaxSize <= 0 {
		o.MaxSize = defaultMaxSize
	}
	if o.AcquireTimeout <= 0 {
		o.AcquireTimeout = defaultAcquireTimeout
	}
	return o
}

// pooledBrowser tracks a browser instance owned by the pool
type pooledBrowser struct {
	browser        *Browser
	renderCount    int
	lastReturnedAt time.Time
}

// Pool is a bounded, self-healing pool of long-lived headless-browser
// processes. Capacity is guarded by a weighted semaphore, one permit per
// outstanding lease; a single mutex guards the idle queue, the tracking map
// and the counters.
type Pool struct {
	opts   Options
	launch LaunchFunc
	logger *zap.Logger

	sem *semaphore.Weighted

	mu       sync.Mutex
	idle     []*pooledBrowser
	tracked  map[*Browser]*pooledBrowser
	active   int
	disposed bool

	reaperCancel context.CancelFunc
	reaperDone   chan struct{}
}

// NewPool creates a pool and starts its idle reaper
func NewPool(opts Options, launch LaunchFunc, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	p := &Pool{
		opts:    opts,
		launch:  launch,
		logger:  logger,
		sem:     semaphore.NewWeighted(int64(opts.MaxSize)),
		tracked: make(map[*Browser]*pooledBrowser),
	}

	if opts.IdleTimeout > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.reaperCancel = cancel
		p.reaperDone = make(chan struct{})
		go p.reapLoop(ctx)
	}

	return p
}

// WarmUp pre-launches MinSize browsers so the first renders avoid a cold
// start. Failures are logged, not fatal.
func (p *Pool) WarmUp(ctx context.Context) {
	for i := 0; i < p.opts.MinSize; i++ {
		b, err := p.launch(ctx)
		if err != nil {
			p.logger.Warn("browser warm-up failed", zap.Error(err))
			return
		}
		pb := &pooledBrowser{browser: b, lastReturnedAt: time.Now()}

		p.mu.Lock()
		if p.disposed {
			p.mu.Unlock()
			b.Close()
			return
		}
		p.tracked[b] = pb
		p.idle = append(p.idle, pb)
		p.mu.Unlock()

		p.watchDisconnect(b)
	}
	p.logger.Info("browser pool warmed up", zap.Int("instances", p.Size()))
}

// Acquire leases a browser, waiting up to AcquireTimeout for capacity.
// Caller cancellation surfaces as CANCELLED, never as a timeout.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	if p.isDisposed() {
		return nil, document.NewError(document.ErrKindPoolDisposed, "browser pool is shut down", nil)
	}

	acqCtx, cancel := context.WithTimeout(ctx, p.opts.AcquireTimeout)
	defer cancel()

	if err := p.sem.Acquire(acqCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, document.NewError(document.ErrKindCancelled, "browser acquire cancelled", ctx.Err())
		}
		return nil, document.NewError(document.ErrKindPoolTimeout,
			fmt.Sprintf("no browser available within %s", p.opts.AcquireTimeout), err)
	}

	pb, err := p.checkout(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}

	return &Lease{pool: p, pb: pb}, nil
}

// checkout takes an idle browser or launches a new one. The caller already
// holds a permit; disconnected idle entries are discarded without touching
// the permit.
func (p *Pool) checkout(ctx context.Context) (*pooledBrowser, error) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return nil, document.NewError(document.ErrKindPoolDisposed, "browser pool is shut down", nil)
	}
	for len(p.idle) > 0 {
		pb := p.idle[0]
		p.idle = p.idle[1:]
		if pb.browser.Disconnected() {
			delete(p.tracked, pb.browser)
			pb.browser.Close()
			p.logger.Warn("discarded disconnected idle browser")
			continue
		}
		p.active++
		p.mu.Unlock()
		return pb, nil
	}
	p.mu.Unlock()

	b, err := p.launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	pb := &pooledBrowser{browser: b, lastReturnedAt: time.Now()}

	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		b.Close()
		return nil, document.NewError(document.ErrKindPoolDisposed, "browser pool is shut down", nil)
	}
	p.tracked[b] = pb
	p.active++
	p.mu.Unlock()

	p.watchDisconnect(b)
	return pb, nil
}

// watchDisconnect removes a browser from tracking when its process dies
func (p *Pool) watchDisconnect(b *Browser) {
	go func() {
		<-b.Done()
		p.mu.Lock()
		if _, ok := p.tracked[b]; ok {
			delete(p.tracked, b)
			p.removeIdleLocked(b)
			p.logger.Warn("browser disconnected, removed from pool")
		}
		p.mu.Unlock()
	}()
}

func (p *Pool) removeIdleLocked(b *Browser) {
	for i, pb := range p.idle {
		if pb.browser == b {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			return
		}
	}
}

// release returns a leased browser to the pool, recycling it when it has
// reached its render budget. The permit is released last.
func (p *Pool) release(pb *pooledBrowser) {
	p.mu.Lock()
	pb.renderCount++
	pb.lastReturnedAt = time.Now()
	p.active--

	_, tracked := p.tracked[pb.browser]
	switch {
	case p.disposed || !tracked || pb.browser.Disconnected():
		delete(p.tracked, pb.browser)
		pb.browser.Close()
	case p.opts.MaxRendersPerInstance > 0 && pb.renderCount >= p.opts.MaxRendersPerInstance:
		delete(p.tracked, pb.browser)
		pb.browser.Close()
		p.logger.Info("recycled browser at render budget",
			zap.Int("renders", pb.renderCount))
	default:
		p.idle = append(p.idle, pb)
	}
	p.mu.Unlock()

	p.sem.Release(1)
}

// invalidate discards a leased browser that was reported unfit
func (p *Pool) invalidate(pb *pooledBrowser) {
	p.mu.Lock()
	p.active--
	delete(p.tracked, pb.browser)
	p.mu.Unlock()

	pb.browser.Close()
	p.sem.Release(1)
	p.logger.Warn("invalidated browser discarded")
}

func (p *Pool) reapLoop(ctx context.Context) {
	defer close(p.reaperDone)

	interval := p.opts.IdleTimeout / 2
	if interval < minReapInterval {
		interval = minReapInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reap(time.Now())
		}
	}
}

// reap closes idle browsers older than IdleTimeout, never shrinking the
// tracked set below MinSize. Survivors are re-enqueued newest-first.
func (p *Pool) reap(now time.Time) {
	cutoff := now.Add(-p.opts.IdleTimeout)

	p.mu.Lock()
	snapshot := p.idle
	p.idle = nil
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].lastReturnedAt.After(snapshot[j].lastReturnedAt)
	})

	reaped := 0
	for len(snapshot) > 0 {
		pb := snapshot[len(snapshot)-1] // oldest remaining
		if !pb.lastReturnedAt.Before(cutoff) {
			break
		}
		if len(p.tracked) <= p.opts.MinSize {
			break
		}
		delete(p.tracked, pb.browser)
		pb.browser.Close()
		snapshot = snapshot[:len(snapshot)-1]
		reaped++
	}
	p.idle = snapshot
	p.mu.Unlock()

	if reaped > 0 {
		p.logger.Info("reaped idle browsers", zap.Int("count", reaped))
	}
}

// Size returns the number of tracked browsers, idle and leased
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracked)
}

// Active returns the number of outstanding leases
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pool) isDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Shutdown stops the reaper and closes every tracked browser. Subsequent
// acquires fail with POOL_DISPOSED.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	for b := range p.tracked {
		b.Close()
		delete(p.tracked, b)
	}
	p.idle = nil
	p.mu.Unlock()

	if p.reaperCancel != nil {
		p.reaperCancel()
		<-p.reaperDone
	}
	p.logger.Info("browser pool shut down")
}
