package session

import (
	"sync"

	"github.com/mbenhadjer/miniagent/internal/wire"
)

// pendingQueue buffers frames composed before authentication (or whose send
// failed) for in-order replay after the next hello_ack. Cancellations never
// enter this queue.
type pendingQueue struct {
	mu       sync.Mutex
	messages []*wire.Envelope
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

// Push appends a frame to the tail.
func (q *pendingQueue) Push(env *wire.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, env)
}

// Pop removes and returns the head frame.
func (q *pendingQueue) Pop() (*wire.Envelope, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.messages) == 0 {
		return nil, false
	}
	env := q.messages[0]
	q.messages = q.messages[1:]
	return env, true
}

// PushFront puts a frame back at the head after a failed flush so order is
// preserved on the next attempt.
func (q *pendingQueue) PushFront(env *wire.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append([]*wire.Envelope{env}, q.messages...)
}

// Remove drops the exact frame (by identity) if it is still queued and
// reports whether it was found. Used by the ack-waiting send path so a retry
// never leaves a duplicate behind.
func (q *pendingQueue) Remove(env *wire.Envelope) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m == env {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of buffered frames.
func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
