package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventsDeliveredInOrder(t *testing.T) {
	l := NewLoop()

	var got []int
	l.Handle("n", func(p interface{}) {
		got = append(got, p.(int))
	})

	for i := 0; i < 10; i++ {
		l.Signal("n", i)
	}
	l.Terminate()

	require.NoError(t, l.Enter(nil))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestTickRunsBetweenEvents(t *testing.T) {
	l := NewLoop()

	var trace []string
	l.Handle("e", func(p interface{}) {
		trace = append(trace, "event")
	})

	l.Signal("e", nil)
	l.Signal("e", nil)
	l.Terminate()

	require.NoError(t, l.Enter(func() {
		trace = append(trace, "tick")
	}))

	// One tick at entry, then one after each event.
	assert.Equal(t, []string{"tick", "event", "tick", "event", "tick"}, trace)
}

func TestHandlerMayEnqueueFurtherEvents(t *testing.T) {
	l := NewLoop()

	var got []string
	l.Handle("first", func(p interface{}) {
		got = append(got, "first")
		l.Signal("second", nil)
	})
	l.Handle("second", func(p interface{}) {
		got = append(got, "second")
	})

	l.Signal("first", nil)
	l.Terminate()

	require.NoError(t, l.Enter(nil))
	assert.Equal(t, []string{"first", "second"}, got)
}

func TestTerminateDrainsQueueBeforeExit(t *testing.T) {
	l := NewLoop()

	processed := 0
	l.Handle("e", func(p interface{}) { processed++ })

	for i := 0; i < 5; i++ {
		l.Signal("e", nil)
	}
	l.Terminate()
	l.Terminate() // idempotent

	require.NoError(t, l.Enter(nil))
	assert.Equal(t, 5, processed)
	assert.Equal(t, 0, l.Pending())
}

func TestTerminateWakesBlockedLoop(t *testing.T) {
	l := NewLoop()

	done := make(chan error, 1)
	go func() {
		done <- l.Enter(nil)
	}()

	// Give the loop time to block on an empty queue.
	time.Sleep(20 * time.Millisecond)
	l.Terminate()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after terminate")
	}
}

func TestSignalFromAnotherGoroutine(t *testing.T) {
	l := NewLoop()

	got := make(chan int, 1)
	l.Handle("n", func(p interface{}) {
		got <- p.(int)
		l.Terminate()
	})

	go l.Signal("n", 42)

	require.NoError(t, l.Enter(nil))
	assert.Equal(t, 42, <-got)
}

func TestHandlerPanicDoesNotKillLoop(t *testing.T) {
	l := NewLoop()

	survived := false
	l.Handle("boom", func(p interface{}) { panic("boom") })
	l.Handle("ok", func(p interface{}) { survived = true })

	l.Signal("boom", nil)
	l.Signal("ok", nil)
	l.Terminate()

	require.NoError(t, l.Enter(nil))
	assert.True(t, survived)
}

func TestEnterTwiceFails(t *testing.T) {
	l := NewLoop()
	l.Terminate()
	require.NoError(t, l.Enter(nil))
	assert.Error(t, l.Enter(nil))
}
