package main

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// daemonEnv marks the re-executed child so it does not fork again.
const daemonEnv = "FOSCHED_DAEMONIZED"

// daemonize detaches the scheduler from the controlling terminal by
// re-executing itself in a new session with stdio on /dev/null.
// Returns true in the parent, which should exit, and false in the
// detached child, which carries on with startup.
func daemonize() (bool, error) {
	if os.Getenv(daemonEnv) == "1" {
		return false, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("cannot resolve own executable: %w", err)
	}

	devnull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return false, err
	}
	defer devnull.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = devnull
	cmd.Stdout = devnull
	cmd.Stderr = devnull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("failed to start daemon child: %w", err)
	}
	fmt.Printf("%s daemonized as pid %d\n", processName, cmd.Process.Pid)
	return true, nil
}
