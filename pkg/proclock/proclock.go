package proclock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// DefaultDir is where the lock object lives. Linux backs POSIX shared
// memory with a tmpfs mounted here, so the lock disappears on reboot
// along with any stale pid.
const DefaultDir = "/dev/shm"

// pidWidth is the fixed, zero-padded width of the stored pid, so a
// partial read is never mistaken for a valid owner.
const pidWidth = 9

// Lock is a singleton lock keyed by process name.
type Lock struct {
	name string
	dir  string
}

// New creates a lock handle for the given process name in DefaultDir.
func New(name string) *Lock {
	return NewAt(DefaultDir, name)
}

// NewAt creates a lock handle rooted at dir. Tests use a temp dir.
func NewAt(dir, name string) *Lock {
	return &Lock{name: name, dir: dir}
}

func (l *Lock) path() string {
	return filepath.Join(l.dir, l.name)
}

// Owner returns the pid currently holding the lock, or 0 when the lock
// is absent or stale. A stale lock (unparsable contents or a dead pid)
// is unlinked on the way out.
func (l *Lock) Owner() (int, error) {
	data, err := os.ReadFile(l.path())
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read lock %s: %w", l.path(), err)
	}

	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil || pid < 2 {
		if err := os.Remove(l.path()); err != nil {
			return 0, fmt.Errorf("failed to remove invalid lock: %w", err)
		}
		return 0, nil
	}

	if pidAlive(pid) {
		return pid, nil
	}

	if err := os.Remove(l.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	return 0, nil
}

// Acquire attempts to take the lock for the current process. The two
// outcomes are distinct: acquired=true means this process is now the
// owner; acquired=false with otherPID set means a live owner exists.
func (l *Lock) Acquire() (acquired bool, otherPID int, err error) {
	if pid, err := l.Owner(); err != nil {
		return false, 0, err
	} else if pid != 0 {
		return false, pid, nil
	}

	f, err := os.OpenFile(l.path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		// Lost the race to another starting instance.
		pid, oerr := l.Owner()
		if oerr != nil {
			return false, 0, oerr
		}
		return false, pid, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to create lock %s: %w", l.path(), err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%0*d", pidWidth, os.Getpid()); err != nil {
		os.Remove(l.path())
		return false, 0, fmt.Errorf("failed to write pid to lock: %w", err)
	}
	return true, 0, nil
}

// Release unlinks the lock. Only the owner calls this, on exit.
func (l *Lock) Release() error {
	err := os.Remove(l.path())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// KillRunning sends the given signal to the locked instance, if any.
// It does not unlink the lock; the owner does that on exit. Returns
// the signalled pid, or 0 when no instance was running.
func (l *Lock) KillRunning(sig syscall.Signal) (int, error) {
	pid, err := l.Owner()
	if err != nil {
		return 0, err
	}
	if pid == 0 {
		return 0, nil
	}
	if err := syscall.Kill(pid, sig); err != nil {
		return 0, fmt.Errorf("unable to signal pid %d: %w", pid, err)
	}
	return pid, nil
}

// pidAlive probes a pid with signal 0. EPERM still means the process
// exists, just under another uid.
func pidAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
