package browser

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docrender/backend/internal/domain/document"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeLauncher launches browsers backed by plain cancellable contexts
func newFakeLauncher(launches *int32) LaunchFunc {
	return func(ctx context.Context) (*Browser, error) {
		atomic.AddInt32(launches, 1)
		bctx, cancel := context.WithCancel(context.Background())
		return &Browser{ctx: bctx, cancel: cancel}, nil
	}
}

func newTestPool(t *testing.T, opts Options) (*Pool, *int32) {
	t.Helper()
	var launches int32
	p := NewPool(opts, newFakeLauncher(&launches), nil)
	t.Cleanup(p.Shutdown)
	return p, &launches
}

func TestPool_AcquireRelease(t *testing.T) {
	p, launches := newTestPool(t, Options{MaxSize: 2})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, lease.Browser())

	assert.Equal(t, 1, p.Active())
	assert.Equal(t, 1, p.Size())

	lease.Release()
	assert.Equal(t, 0, p.Active())
	assert.Equal(t, 1, p.Size())
	assert.Equal(t, int32(1), atomic.LoadInt32(launches))
}

func TestPool_ReusesIdleBrowser(t *testing.T) {
	p, launches := newTestPool(t, Options{MaxSize: 2})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := lease.Browser()
	lease.Release()

	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, lease.Browser())
	lease.Release()

	assert.Equal(t, int32(1), atomic.LoadInt32(launches))
}

func TestPool_AcquireTimeout(t *testing.T) {
	p, _ := newTestPool(t, Options{MaxSize: 1, AcquireTimeout: 50 * time.Millisecond})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	start := time.Now()
	_, err = p.Acquire(context.Background())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, document.ErrKindPoolTimeout, document.KindOf(err))
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestPool_AcquireCancelledByCaller(t *testing.T) {
	p, _ := newTestPool(t, Options{MaxSize: 1, AcquireTimeout: 5 * time.Second})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	require.Error(t, err)
	assert.Equal(t, document.ErrKindCancelled, document.KindOf(err))
}

func TestPool_CapacityBound(t *testing.T) {
	p, _ := newTestPool(t, Options{MaxSize: 3, AcquireTimeout: 50 * time.Millisecond})

	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)
		leases = append(leases, lease)
	}
	assert.Equal(t, 3, p.Active())

	_, err := p.Acquire(context.Background())
	assert.Equal(t, document.ErrKindPoolTimeout, document.KindOf(err))

	// permit conservation: every release frees exactly one slot
	for _, l := range leases {
		l.Release()
	}
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)
		defer lease.Release()
	}
}

func TestPool_RecycleAtRenderBudget(t *testing.T) {
	p, launches := newTestPool(t, Options{MaxSize: 1, MaxRendersPerInstance: 3})

	var browsers []*Browser
	for i := 0; i < 4; i++ {
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)
		browsers = append(browsers, lease.Browser())
		lease.Release()
	}

	// renders 1-3 reuse the first browser, which is recycled on the third
	// release; render 4 gets a fresh one
	assert.Same(t, browsers[0], browsers[1])
	assert.Same(t, browsers[0], browsers[2])
	assert.NotSame(t, browsers[0], browsers[3])
	assert.True(t, browsers[0].Disconnected())
	assert.Equal(t, int32(2), atomic.LoadInt32(launches))
}

func TestPool_InvalidateDiscards(t *testing.T) {
	p, launches := newTestPool(t, Options{MaxSize: 1})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b := lease.Browser()
	lease.Invalidate()

	assert.True(t, b.Disconnected())
	assert.Equal(t, 0, p.Active())

	// capacity is back and the next acquire launches fresh
	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, b, lease.Browser())
	lease.Release()
	assert.Equal(t, int32(2), atomic.LoadInt32(launches))
}

func TestPool_LeaseTerminatesOnce(t *testing.T) {
	p, _ := newTestPool(t, Options{MaxSize: 2})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	lease.Invalidate()

	assert.Equal(t, 0, p.Active())
	assert.Equal(t, 1, p.Size())
}

func TestPool_DiscardsDisconnectedIdle(t *testing.T) {
	p, launches := newTestPool(t, Options{MaxSize: 2})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := lease.Browser()
	lease.Release()

	// simulate a crash while idle
	first.Close()

	lease, err = p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, lease.Browser())
	lease.Release()
	assert.Equal(t, int32(2), atomic.LoadInt32(launches))
}

func TestPool_DisconnectObserverRemovesTracking(t *testing.T) {
	p, _ := newTestPool(t, Options{MaxSize: 2})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b := lease.Browser()
	lease.Release()
	require.Equal(t, 1, p.Size())

	b.Close()
	assert.Eventually(t, func() bool { return p.Size() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestPool_Reaper(t *testing.T) {
	p, _ := newTestPool(t, Options{
		MinSize:     1,
		MaxSize:     4,
		IdleTimeout: time.Minute,
	})

	// three idle browsers, all stale
	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(context.Background())
		require.NoError(t, err)
		leases = append(leases, lease)
	}
	for _, l := range leases {
		l.Release()
	}
	require.Equal(t, 3, p.Size())

	p.reap(time.Now().Add(2 * time.Minute))

	// stale entries are reaped down to the MinSize floor
	assert.Equal(t, 1, p.Size())
}

func TestPool_ReaperKeepsFreshEntries(t *testing.T) {
	p, _ := newTestPool(t, Options{
		MinSize:     1,
		MaxSize:     4,
		IdleTimeout: time.Minute,
	})

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()

	p.reap(time.Now())
	assert.Equal(t, 1, p.Size())
}

func TestPool_ShutdownRejectsAcquire(t *testing.T) {
	var launches int32
	p := NewPool(Options{MaxSize: 2}, newFakeLauncher(&launches), nil)

	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b := lease.Browser()
	lease.Release()

	p.Shutdown()

	assert.True(t, b.Disconnected())
	assert.Equal(t, 0, p.Size())

	_, err = p.Acquire(context.Background())
	assert.Equal(t, document.ErrKindPoolDisposed, document.KindOf(err))

	// idempotent
	p.Shutdown()
}

func TestPool_WarmUp(t *testing.T) {
	p, launches := newTestPool(t, Options{MinSize: 2, MaxSize: 4})

	p.WarmUp(context.Background())
	assert.Equal(t, 2, p.Size())
	assert.Equal(t, 0, p.Active())
	assert.Equal(t, int32(2), atomic.LoadInt32(launches))

	// warm instances are used before launching new ones
	lease, err := p.Acquire(context.Background())
	require.NoError(t, err)
	lease.Release()
	assert.Equal(t, int32(2), atomic.LoadInt32(launches))
}
