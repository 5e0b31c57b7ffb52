package service

import (
	"context"
	"sync"
)

// RunGuard tracks in-flight runs by key. A key holds at most one run: a
// second TryLock fails until the first is released.
type RunGuard struct {
	mu   sync.Mutex
	runs map[string]chan struct{} // closed on Unlock
}

func (g *RunGuard) TryLock(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.runs[key]; busy {
		return false
	}
	if g.runs == nil {
		g.runs = make(map[string]chan struct{})
	}
	g.runs[key] = make(chan struct{})
	return true
}

// Unlock releases key. Releasing a free key does nothing.
func (g *RunGuard) Unlock(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if done, ok := g.runs[key]; ok {
		close(done)
		delete(g.runs, key)
	}
}

func (g *RunGuard) Running(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.runs[key]
	return busy
}

// WaitAll returns once every run in flight at call time has been released,
// or when ctx is done.
func (g *RunGuard) WaitAll(ctx context.Context) {
	g.mu.Lock()
	pending := make([]chan struct{}, 0, len(g.runs))
	for _, done := range g.runs {
		pending = append(pending, done)
	}
	g.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
}
