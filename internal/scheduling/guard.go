package scheduling

import "sync/atomic"

// Guard is a single-flight flag: at most one TryRun body executes at a time.
type Guard struct {
	running atomic.Bool
}

// TryRun runs fn unless another call is in flight. It reports whether fn ran.
func (g *Guard) TryRun(fn func()) bool {
	if !g.running.CompareAndSwap(false, true) {
		return false
	}
	defer g.running.Store(false)
	fn()
	return true
}

// Running reports whether a TryRun body is executing.
func (g *Guard) Running() bool {
	return g.running.Load()
}
