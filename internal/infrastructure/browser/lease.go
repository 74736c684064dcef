package browser

import "sync"

// Lease is a short-lived exclusive grant of a pooled browser. Exactly one
// of Release or Invalidate must be called; later calls are no-ops. Leases
// must not be shared across goroutines.
type Lease struct {
	pool *Pool
	pb   *pooledBrowser
	once sync.Once
}

// Browser exposes the leased browser handle
func (l *Lease) Browser() *Browser {
	return l.pb.browser
}

// Release returns the browser to the pool
func (l *Lease) Release() {
	l.once.Do(func() { l.pool.release(l.pb) })
}

// Invalidate marks the browser unfit; the pool discards it instead of
// returning it to the idle queue.
func (l *Lease) Invalidate() {
	l.once.Do(func() { l.pool.invalidate(l.pb) })
}
