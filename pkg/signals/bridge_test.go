package signals

import (
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fosstrack/fosched/pkg/agent"
	"github.com/fosstrack/fosched/pkg/event"
)

// waitPending blocks until the loop has at least n queued events. Most
// tests never run the loop; counting queued events is enough to see
// what the bridge emitted.
func waitPending(t *testing.T, loop *event.Loop, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for loop.Pending() < n {
		if time.Now().After(deadline) {
			t.Fatalf("loop never reached %d pending events (have %d)", n, loop.Pending())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTranslateTerminationSignals(t *testing.T) {
	for _, sig := range []syscall.Signal{syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT} {
		loop := event.NewLoop()
		b := NewBridge(loop, time.Hour)
		b.translate(sig)
		assert.Equal(t, 1, loop.Pending(), "signal %s must enqueue exactly one close event", sig)
	}
}

func TestTranslateHangup(t *testing.T) {
	loop := event.NewLoop()
	b := NewBridge(loop, time.Hour)
	b.translate(syscall.SIGHUP)
	assert.Equal(t, 1, loop.Pending())
}

func TestTranslateAlarmForcesBothChecks(t *testing.T) {
	loop := event.NewLoop()
	b := NewBridge(loop, time.Hour)
	b.translate(syscall.SIGALRM)
	assert.Equal(t, 2, loop.Pending())
}

func TestChildDeathsAreReapedAndDelivered(t *testing.T) {
	loop := event.NewLoop()
	b := NewBridge(loop, time.Hour)

	// Two real children that exit immediately. However SIGCHLD
	// translation slices the reaping into batches, every death must
	// arrive exactly once.
	want := make(map[int]bool)
	for i := 0; i < 2; i++ {
		cmd := exec.Command("true")
		require.NoError(t, cmd.Start())
		want[cmd.Process.Pid] = true
	}

	got := make(chan int, 4)
	loop.Handle(event.KindAgentDeath, func(p interface{}) {
		for _, d := range p.([]agent.Death) {
			got <- d.PID
		}
	})
	done := make(chan struct{})
	go func() {
		loop.Enter(func() {})
		close(done)
	}()
	defer func() { loop.Terminate(); <-done }()

	deadline := time.Now().Add(10 * time.Second)
	for len(want) > 0 {
		b.translate(syscall.SIGCHLD)
		select {
		case pid := <-got:
			assert.True(t, want[pid], "unexpected pid %d reaped", pid)
			delete(want, pid)
		case <-time.After(10 * time.Millisecond):
			if time.Now().After(deadline) {
				t.Fatalf("children %v were never reaped", want)
			}
		}
	}
}

func TestSIGCHLDWithNothingDeadIsSilent(t *testing.T) {
	loop := event.NewLoop()
	b := NewBridge(loop, time.Hour)
	b.translate(syscall.SIGCHLD)
	assert.Zero(t, loop.Pending())
}

func TestTickerEmitsPeriodicChecks(t *testing.T) {
	loop := event.NewLoop()
	b := NewBridge(loop, 20*time.Millisecond)
	b.Start()
	defer b.Stop()

	// One tick produces an agent check and a database check.
	waitPending(t, loop, 2)
}

func TestRealSignalDelivery(t *testing.T) {
	loop := event.NewLoop()
	b := NewBridge(loop, time.Hour)
	b.Start()
	defer b.Stop()

	// SIGHUP to ourselves must surface as a reload event. Notify has the
	// signal captured, so the process survives.
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	waitPending(t, loop, 1)
}
