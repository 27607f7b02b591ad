package table

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerRunsLastCall(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var got atomic.Value
	var runs atomic.Int32
	for _, term := range []string{"p", "pa", "pan"} {
		term := term
		d.Call(func() {
			runs.Add(1)
			got.Store(term)
		})
	}

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "pan", got.Load())
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	ran := false
	d.Call(func() { ran = true })
	assert.True(t, d.Pending())

	assert.True(t, d.Flush())
	assert.True(t, ran)
	assert.False(t, d.Flush())
}

func TestDebouncerStop(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	var runs atomic.Int32
	d.Call(func() { runs.Add(1) })

	assert.True(t, d.Stop())
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
	assert.False(t, d.Stop())
}

func TestNewDebouncerDefaultDelay(t *testing.T) {
	assert.Equal(t, DefaultDebounceDelay, NewDebouncer(0).delay)
}
