package session

import "time"

// backoff tracks the reconnect delay: starts at the floor, doubles after
// every failed cycle, never exceeds the ceiling, and drops back to the floor
// after a successful authentication.
type backoff struct {
	floor   time.Duration
	ceiling time.Duration
	next    time.Duration
}

func newBackoff(floor, ceiling time.Duration) *backoff {
	if floor <= 0 {
		floor = 500 * time.Millisecond
	}
	if ceiling < floor {
		ceiling = floor
	}
	return &backoff{floor: floor, ceiling: ceiling, next: floor}
}

// Current returns the delay to respect before the next attempt.
func (b *backoff) Current() time.Duration {
	return b.next
}

// Advance doubles the delay up to the ceiling.
func (b *backoff) Advance() {
	b.next *= 2
	if b.next > b.ceiling {
		b.next = b.ceiling
	}
}

// Reset drops the delay back to the floor.
func (b *backoff) Reset() {
	b.next = b.floor
}
