// Package standard implements the queued-delivery mode: batch submission,
// readiness polling, and concurrent result fetching.
package standard

import (
	"sync"

	"github.com/rankscope/rankscope/internal/serp"
)

// pendingSet tracks TaskHandles awaiting a terminal result. It only shrinks
// after construction; add/remove are atomic so a handle is never counted
// twice across concurrent fetch completions.
type pendingSet struct {
	mu      sync.Mutex
	handles map[string]serp.TaskHandle
}

func newPendingSet(handles []serp.TaskHandle) *pendingSet {
	p := &pendingSet{handles: make(map[string]serp.TaskHandle, len(handles))}
	for _, h := range handles {
		p.handles[h.ID] = h
	}
	return p
}

func (p *pendingSet) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.handles, id)
}

func (p *pendingSet) get(id string) (serp.TaskHandle, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, ok := p.handles[id]
	return h, ok
}

func (p *pendingSet) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

// intersect returns the subset of ids still pending, preserving order and
// dropping duplicates. Defensive against unrelated ready ids reported by the
// remote.
func (p *pendingSet) intersect(ids []string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := p.handles[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// sample returns up to n pending ids in arbitrary order.
func (p *pendingSet) sample(n int) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, n)
	for id := range p.handles {
		if len(out) >= n {
			break
		}
		out = append(out, id)
	}
	return out
}

// drain removes and returns every remaining handle.
func (p *pendingSet) drain() []serp.TaskHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]serp.TaskHandle, 0, len(p.handles))
	for _, h := range p.handles {
		out = append(out, h)
	}
	p.handles = make(map[string]serp.TaskHandle)
	return out
}
