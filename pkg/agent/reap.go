package agent

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Death describes one reaped child process.
type Death struct {
	PID      int
	ExitCode int
	Signaled bool
	Signal   unix.Signal
}

func (d Death) String() string {
	if d.Signaled {
		return fmt.Sprintf("killed by signal %s", d.Signal)
	}
	return fmt.Sprintf("exited with status %d", d.ExitCode)
}

// ReapBatch collects every currently-dead child with non-blocking
// waitpid calls. It is called from the signal bridge on SIGCHLD, off
// the loop thread: it touches no supervisor state, only the wait
// syscall. The resulting batch is delivered to HandleDeaths through a
// single agent.death event.
func ReapBatch() []Death {
	var batch []Death
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return batch
		}
		if !ws.Exited() && !ws.Signaled() {
			// Stopped or continued, not dead.
			continue
		}
		batch = append(batch, Death{
			PID:      pid,
			ExitCode: ws.ExitStatus(),
			Signaled: ws.Signaled(),
			Signal:   ws.Signal(),
		})
	}
}
