package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser is a handle to a single long-lived headless-browser process.
// Ownership belongs to the pool; callers only ever see one through a lease.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Context returns the browser-level chromedp context. Ephemeral pages are
// opened as children of this context.
func (b *Browser) Context() context.Context {
	return b.ctx
}

// Disconnected reports whether the underlying process has gone away
func (b *Browser) Disconnected() bool {
	return b.ctx.Err() != nil
}

// Close tears the browser process down
func (b *Browser) Close() {
	b.cancel()
}

// Done is closed when the browser disconnects or is closed
func (b *Browser) Done() <-chan struct{} {
	return b.ctx.Done()
}

// LaunchFunc starts a fresh browser instance
type LaunchFunc func(ctx context.Context) (*Browser, error)

// Allocator owns the shared chromedp exec allocator from which every pooled
// browser is launched. The flags are chosen to survive constrained
// containers: no sandbox, no /dev/shm, no GPU.
type Allocator struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewAllocator creates the shared exec allocator
func NewAllocator(logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("font-render-hinting", "none"),
	)

	ctx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Allocator{ctx: ctx, cancel: cancel, logger: logger}
}

// Launch starts a browser process and waits until it is connected
func (a *Allocator) Launch(ctx context.Context) (*Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, bcancel := chromedp.NewContext(a.ctx,
		chromedp.WithLogf(func(format string, args ...any) {
			a.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	// A blank run forces the process to start and connect
	if err := chromedp.Run(bctx); err != nil {
		bcancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Browser{ctx: bctx, cancel: bcancel}, nil
}

// Close shuts the allocator down, killing any remaining browser processes
func (a *Allocator) Close() {
	a.cancel()
}
