package daemon

// StartOptions configures the daemon (home, port, pass interval, runtime).
type StartOptions struct {
	Home        string
	Port        int
	IntervalSec float64
	Dev         bool
	PprofAddr   string
	Runtime     string // "stub" or "http"
	APIBase     string // reasoning-service base URL for runtime=http
	Model       string // default model when an agent names none
	EnableOtel  bool
	// Once makes the scheduler stop after the first pass instead of looping.
	Once bool
}

// StatusInfo is the result of Status (running or not, PID, listen addr).
type StatusInfo struct {
	Running bool
	PID     int
	Addr    string
}
