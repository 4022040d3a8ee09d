package daemon

import (
	"path/filepath"
)

// stateDir holds the daemon's runtime files (pid, lock, addr, log) plus
// the audit database, under the sweteam home.
func stateDir(home string) string {
	return filepath.Join(home, "state")
}

func pidPath(home string) string {
	return filepath.Join(stateDir(home), "sweteam.pid")
}

func lockPath(home string) string {
	return filepath.Join(stateDir(home), "sweteam.lock")
}

func addrPath(home string) string {
	return filepath.Join(stateDir(home), "sweteam.addr")
}
