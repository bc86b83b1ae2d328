package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbenhadjer/miniagent/internal/wire"
)

func TestPendingQueue(t *testing.T) {
	frame := func(typ string) *wire.Envelope {
		return &wire.Envelope{Type: typ}
	}

	t.Run("FIFO order", func(t *testing.T) {
		q := newPendingQueue()
		q.Push(frame("a"))
		q.Push(frame("b"))
		q.Push(frame("c"))
		require.Equal(t, 3, q.Len())

		var order []string
		for {
			env, ok := q.Pop()
			if !ok {
				break
			}
			order = append(order, env.Type)
		}
		assert.Equal(t, []string{"a", "b", "c"}, order)
	})

	t.Run("PushFront restores the head", func(t *testing.T) {
		q := newPendingQueue()
		q.Push(frame("a"))
		q.Push(frame("b"))

		head, ok := q.Pop()
		require.True(t, ok)
		q.PushFront(head)

		again, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, "a", again.Type)
	})

	t.Run("Remove drops by identity only", func(t *testing.T) {
		q := newPendingQueue()
		target := frame("support_request")
		twin := frame("support_request")
		q.Push(frame("a"))
		q.Push(target)
		q.Push(frame("b"))

		assert.False(t, q.Remove(twin), "an equal but distinct frame must not match")
		assert.True(t, q.Remove(target))
		assert.False(t, q.Remove(target), "second removal finds nothing")
		assert.Equal(t, 2, q.Len())
	})

	t.Run("Pop on empty", func(t *testing.T) {
		q := newPendingQueue()
		_, ok := q.Pop()
		assert.False(t, ok)
	})
}
