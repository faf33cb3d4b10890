package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(context.Background(), 20*time.Millisecond, func() { calls.Add(1) })

	for i := 0; i < 10; i++ {
		d.Trigger()
	}
	assert.True(t, d.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerFlush(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(context.Background(), time.Hour, func() { calls.Add(1) })

	d.Flush()
	assert.Equal(t, int32(0), calls.Load(), "nothing pending")

	d.Trigger()
	d.Flush()
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, d.Pending())
}

func TestDebouncerCancel(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(context.Background(), 10*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	d.Cancel()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
}

func TestDebouncerContextCancel(t *testing.T) {
	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	d := NewDebouncer(ctx, 10*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	cancel()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())

	d.Trigger()
	assert.False(t, d.Pending())
	d.Flush()
	assert.Equal(t, int32(0), calls.Load())
}
