package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("doubles up to the ceiling", func(t *testing.T) {
		b := newBackoff(500*time.Millisecond, 8*time.Second)

		var got []time.Duration
		for i := 0; i < 6; i++ {
			got = append(got, b.Current())
			b.Advance()
		}
		assert.Equal(t, []time.Duration{
			500 * time.Millisecond,
			time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
			8 * time.Second,
		}, got)
	})

	t.Run("reset drops back to the floor", func(t *testing.T) {
		b := newBackoff(500*time.Millisecond, 8*time.Second)
		for i := 0; i < 10; i++ {
			b.Advance()
		}
		assert.Equal(t, 8*time.Second, b.Current())
		b.Reset()
		assert.Equal(t, 500*time.Millisecond, b.Current())
	})

	t.Run("guards degenerate bounds", func(t *testing.T) {
		b := newBackoff(0, 0)
		assert.Equal(t, 500*time.Millisecond, b.Current())
		b.Advance()
		assert.Equal(t, 500*time.Millisecond, b.Current())
	})
}
