package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedClock_DefaultStart(t *testing.T) {
	c := NewFixedClock(time.Time{})
	assert.Equal(t, DefaultTestTime, c.Now())
}

func TestFixedClock_Frozen(t *testing.T) {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	c := NewFixedClock(start)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start, c.Now(), "clock must not move on its own")
}

func TestFixedClock_AdvanceAndSet(t *testing.T) {
	c := NewFixedClock(time.Time{})

	c.Advance(90 * time.Second)
	assert.Equal(t, DefaultTestTime.Add(90*time.Second), c.Now())

	target := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	assert.Equal(t, target, c.Now())
}

func TestFixedClock_ThreadSafe(t *testing.T) {
	c := NewFixedClock(time.Time{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Advance(time.Second)
				_ = c.Now()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultTestTime.Add(1000*time.Second), c.Now())
}

func TestFixedRunIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedRunIDGenerator("run-123")

	assert.Equal(t, "run-123", gen.Generate())
	assert.Equal(t, "run-123", gen.Generate())
}

func TestFixedRunIDGenerator_EmptyIDDefault(t *testing.T) {
	gen := NewFixedRunIDGenerator("")
	assert.Equal(t, "test-run-default", gen.Generate())
}
