package core

import "sync"

// runLoop serializes the state transitions of one coordinator. Engine
// callbacks arrive on unspecified threads; enqueueing them here guarantees
// run-to-completion semantics without a dedicated goroutine. A task enqueued
// while another is draining is picked up by the draining caller, so Do never
// re-enters user code on two goroutines at once.
type runLoop struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

func newRunLoop() *runLoop {
	return &runLoop{}
}

// Do runs fn on the loop. If the loop is idle the calling goroutine drains
// the queue; otherwise fn runs later on whichever goroutine currently drains.
func (l *runLoop) Do(fn func()) {
	if l == nil || fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	if l.draining {
		l.mu.Unlock()
		return
	}
	l.draining = true
	for len(l.queue) > 0 {
		next := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()
		next()
		l.mu.Lock()
	}
	l.draining = false
	l.mu.Unlock()
}
