package engine

import (
	"sync"

	"github.com/drgolem/gapless/pkg/types"
)

// PendingQueue is the mutex-guarded FIFO of decoders awaiting activation.
// It is intentionally simple: a slice and a mutex, never held across a
// blocking call, favoring a plain sync.Mutex over anything fancier for
// infrequent control-plane operations.
type PendingQueue struct {
	mu    sync.Mutex
	items []types.AudioDecoder
}

// NewPendingQueue returns an empty PendingQueue.
func NewPendingQueue() *PendingQueue {
	return &PendingQueue{}
}

// Push appends a decoder to the tail of the queue.
func (q *PendingQueue) Push(d types.AudioDecoder) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, d)
}

// Pop removes and returns the head decoder, or ok=false if the queue is
// empty.
func (q *PendingQueue) Pop() (d types.AudioDecoder, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	d = q.items[0]
	q.items = q.items[1:]
	return d, true
}

// Clear empties the queue and returns the discarded decoders so the caller
// can close them.
func (q *PendingQueue) Clear() []types.AudioDecoder {
	q.mu.Lock()
	defer q.mu.Unlock()
	discarded := q.items
	q.items = nil
	return discarded
}

// Len returns the number of queued decoders.
func (q *PendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Empty reports whether the queue has no pending decoders.
func (q *PendingQueue) Empty() bool {
	return q.Len() == 0
}
