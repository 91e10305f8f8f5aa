// Package dedup keeps a bounded, insertion-ordered record of message ids that
// have already been handled, so redelivery and resync never double-process.
package dedup

import "sync"

const defaultCap = 1000

// Window is a size-bounded set of message identifiers. When an insert pushes
// the set past capacity, the oldest half is evicted in one sweep.
type Window struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]struct{}
}

func New(capacity int) *Window {
	if capacity <= 0 {
		capacity = defaultCap
	}
	return &Window{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// Seen reports whether id was already marked.
func (w *Window) Seen(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.seen[id]
	return ok
}

// Mark records id as processed. Call before generating a reply: a crash
// mid-processing then drops the message instead of replying twice.
func (w *Window) Mark(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)

	if len(w.order) > w.cap {
		drop := len(w.order) / 2
		for _, old := range w.order[:drop] {
			delete(w.seen, old)
		}
		w.order = append(w.order[:0], w.order[drop:]...)
	}
}

// Len returns the current number of remembered ids.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
