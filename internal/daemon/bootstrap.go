package daemon

import (
	"os"
	"os/exec"
	"syscall"
)

func processPID() int {
	return os.Getpid()
}

// StartMonitor spawns the background monitor as a detached process.
// Self-exec with the hidden "daemon" command: khushood daemon
func StartMonitor() error {
	executable, err := os.Executable()
	if err != nil {
		return err
	}

	cmd := exec.Command(executable, "daemon")

	// New session, detached from the terminal
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true,
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	return cmd.Start()
}
