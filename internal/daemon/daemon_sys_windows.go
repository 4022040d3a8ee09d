//go:build windows

package daemon

import (
	"os"
	"os/exec"
)

func setDaemonSysProcAttr(cmd *exec.Cmd) {
	// Windows has no sessions to detach from; the background process just
	// runs with stdio redirected to the log file.
}

func processExists(pid int) bool {
	// No signal-0 probe on Windows. Treat any recorded pid as live; a
	// stale one surfaces as connection refused on the next client call.
	return pid > 0
}

func signalTerm(proc *os.Process) error {
	// SIGTERM is not deliverable on Windows; Kill is the portable stop.
	return proc.Kill()
}
