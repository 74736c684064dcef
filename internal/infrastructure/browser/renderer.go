package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/docrender/backend/internal/domain/document"
	"go.uber.org/zap"
)

const (
	// loadTimeout bounds page load and PDF generation
	loadTimeout = 30 * time.Second
	// networkIdleWindow is how long the page must stay at zero in-flight
	// requests before it counts as idle
	networkIdleWindow = 500 * time.Millisecond
)

// Renderer turns rendered HTML into PDF bytes using a pooled browser and a
// per-render ephemeral page.
type Renderer struct {
	pool   *Pool
	logger *zap.Logger
}

// NewRenderer creates a renderer backed by the given pool
func NewRenderer(pool *Pool, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{pool: pool, logger: logger}
}

// RenderPDF loads html into a fresh page on a leased browser and requests
// PDF bytes. Any failure after the lease is acquired invalidates it; the
// page is always closed before the lease is terminated.
func (r *Renderer) RenderPDF(ctx context.Context, html string, opts document.PdfOptions) ([]byte, error) {
	lease, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	healthy := false
	defer func() {
		if healthy {
			lease.Release()
		} else {
			lease.Invalidate()
		}
	}()

	// The tab context is a child of the browser context; cancelling it
	// closes the page without touching the browser.
	tabCtx, closeTab := chromedp.NewContext(lease.Browser().Context())
	defer closeTab()

	runCtx, cancelRun := context.WithTimeout(tabCtx, loadTimeout)
	defer cancelRun()
	stop := cancelWhenDone(ctx, cancelRun)
	defer stop()

	doc := wrapDocument(html)
	idle := newNetworkIdleWatcher(tabCtx)

	err = chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(c context.Context) error {
			tree, err := page.GetFrameTree().Do(c)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(c)
		}),
		chromedp.ActionFunc(idle.wait),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, document.NewError(document.ErrKindCancelled, "render cancelled during page load", ctx.Err())
		}
		return nil, document.NewError(document.ErrKindRenderLoad, "page load failed", err)
	}

	params := buildPrintParams(opts)

	var pdf []byte
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		data, _, err := params.apply(page.PrintToPDF()).Do(c)
		if err != nil {
			return err
		}
		pdf = data
		return nil
	}))
	if err != nil {
		if ctx.Err() != nil {
			return nil, document.NewError(document.ErrKindCancelled, "render cancelled during pdf generation", ctx.Err())
		}
		return nil, document.NewError(document.ErrKindRenderPDF, "pdf generation failed", err)
	}
	if len(pdf) == 0 {
		return nil, document.NewError(document.ErrKindRenderPDF, "generated pdf is empty", nil)
	}

	healthy = true
	r.logger.Debug("pdf rendered", zap.Int("bytes", len(pdf)))
	return pdf, nil
}

// wrapDocument wraps fragment HTML in a complete document; full documents
// pass through untouched.
func wrapDocument(html string) string {
	lower := strings.ToLower(html)
	if strings.Contains(lower, "<!doctype") || strings.Contains(lower, "<html") {
		return html
	}

	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="UTF-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1.0">`)
	b.WriteString(`</head><body>`)
	b.WriteString(html)
	b.WriteString(`</body></html>`)
	return b.String()
}

// cancelWhenDone propagates parent cancellation into cancel until the
// returned stop function is called.
func cancelWhenDone(parent context.Context, cancel context.CancelFunc) func() {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}

// networkIdleWatcher counts in-flight network requests on a page and
// signals when the page has been quiet for networkIdleWindow.
type networkIdleWatcher struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	last     time.Time
}

func newNetworkIdleWatcher(tabCtx context.Context) *networkIdleWatcher {
	w := &networkIdleWatcher{
		inflight: make(map[network.RequestID]struct{}),
		last:     time.Now(),
	}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.mu.Lock()
			w.inflight[e.RequestID] = struct{}{}
			w.last = time.Now()
			w.mu.Unlock()
		case *network.EventLoadingFinished:
			w.finish(e.RequestID)
		case *network.EventLoadingFailed:
			w.finish(e.RequestID)
		}
	})
	return w
}

func (w *networkIdleWatcher) finish(id network.RequestID) {
	w.mu.Lock()
	delete(w.inflight, id)
	w.last = time.Now()
	w.mu.Unlock()
}

// wait blocks until the page is network-idle or the context expires
func (w *networkIdleWatcher) wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.mu.Lock()
			idle := len(w.inflight) == 0 && time.Since(w.last) >= networkIdleWindow
			w.mu.Unlock()
			if idle {
				return nil
			}
		}
	}
}
