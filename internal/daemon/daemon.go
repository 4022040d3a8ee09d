// Package daemon runs the engine as a long-lived process: HTTP API, event
// hub, and the orchestration scheduler, with pidfile-based start, stop, and
// status for background mode.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/AlanyTan/sweteam/internal/agent"
	"github.com/AlanyTan/sweteam/internal/agent/runtime"
	"github.com/AlanyTan/sweteam/internal/config"
	"github.com/AlanyTan/sweteam/internal/dirplan"
	"github.com/AlanyTan/sweteam/internal/events"
	execpkg "github.com/AlanyTan/sweteam/internal/exec"
	"github.com/AlanyTan/sweteam/internal/httpapi"
	"github.com/AlanyTan/sweteam/internal/issue"
	"github.com/AlanyTan/sweteam/internal/orchestrator"
	"github.com/AlanyTan/sweteam/internal/otel"
	"github.com/AlanyTan/sweteam/internal/store"
	"github.com/AlanyTan/sweteam/pkg/models"
)

func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	if opts.Port == 0 {
		opts.Port = 3548
	}

	// Ensure dirs exist.
	if err := os.MkdirAll(stateDir(opts.Home), 0o755); err != nil {
		return err
	}

	// Acquire singleton lock (released on exit).
	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	// Optional pprof.
	startPprof(opts.PprofAddr)

	settings, err := config.Load(opts.Home)
	if err != nil {
		return err
	}
	if opts.Runtime != "" {
		settings.Runtime = opts.Runtime
	}
	if opts.APIBase != "" {
		settings.APIBase = opts.APIBase
	}
	if opts.Model != "" {
		settings.Model = opts.Model
	}

	// Write PID + addr files.
	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	addr := fmt.Sprintf("0.0.0.0:%d", opts.Port)
	_ = os.WriteFile(addrPath(opts.Home), []byte(addr+"\n"), 0o644)
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
	}()

	// Early port check for clearer error.
	if err := checkPortAvailable(opts.Port); err != nil {
		return err
	}

	ledger, err := issue.NewLedger(settings.IssueBoardDir)
	if err != nil {
		return err
	}
	plan := dirplan.New(settings.PlanFile, settings.ProjectDir)
	if err := os.MkdirAll(settings.ProjectDir, 0o755); err != nil {
		return err
	}

	agentsDir := filepath.Join(opts.Home, "agents")
	if err := agent.WriteDefaults(agentsDir); err != nil {
		return err
	}
	roster, err := agent.LoadRoster(agentsDir)
	if err != nil {
		return err
	}

	audit, err := store.Open(opts.Home)
	if err != nil {
		return err
	}
	defer func() { _ = audit.Close() }()

	svc, err := buildService(settings)
	if err != nil {
		return err
	}

	executor := execpkg.New(settings.ProjectDir)
	defer executor.Shutdown()

	hub := events.NewHub()
	orch := &orchestrator.Orchestrator{
		Settings: settings,
		Roster:   roster,
		Ledger:   ledger,
		Plan:     plan,
		Executor: executor,
		Service:  svc,
		Hub:      hub,
		Audit:    audit,
	}

	srvOpts := httpapi.ServerOptions{
		Home:   opts.Home,
		Addr:   addr,
		Dev:    opts.Dev,
		APIKey: os.Getenv("SWETEAM_API_KEY"),
		Ledger: ledger,
		Plan:   plan,
		Roster: roster,
		Store:  audit,
		Hub:    hub,
	}
	if opts.EnableOtel {
		metricsHandler, err := otel.InitMeterProvider(ctx, "sweteam")
		if err != nil {
			slog.Warn("otel init failed, using legacy metrics", "err", err)
		} else {
			srvOpts.MetricsHandler = metricsHandler
			srvOpts.UseOtelHTTP = true
		}
		_ = otel.InitMetricsWithIssueCount(ctx, func() (open, inProgress, completed int64) {
			sums, err := ledger.ListAll("", nil, "")
			if err != nil {
				return 0, 0, 0
			}
			for _, s := range sums {
				switch s.Status {
				case models.IssueStatusNew:
					open++
				case models.IssueStatusInProgress:
					inProgress++
				case models.IssueStatusCompleted:
					completed++
				}
			}
			return open, inProgress, completed
		})
	}
	app, err := httpapi.NewApp(srvOpts)
	if err != nil {
		return err
	}

	slog.Info("daemon starting", "addr", addr, "home", opts.Home, "runtime", svc.Name())
	errCh := make(chan error, 1)
	go func() {
		// Scheduler runs alongside the HTTP server and publishes SSE events.
		go runScheduler(ctx, opts, orch)
		errCh <- app.Server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildService picks the reasoning-service backend from settings.
func buildService(settings config.Settings) (runtime.Service, error) {
	switch settings.Runtime {
	case "", "stub":
		return runtime.NewStub(), nil
	case "http":
		if settings.APIBase == "" {
			return nil, errors.New("runtime=http requires api_base (or SWETEAM_API_BASE)")
		}
		return runtime.NewHTTPService(settings.APIBase, settings.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q (want stub or http)", settings.Runtime)
	}
}

func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	// Ensure dirs exist before starting.
	if err := os.MkdirAll(stateDir(opts.Home), 0o755); err != nil {
		return 0, err
	}

	// Best-effort: refuse to start if already running.
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("sweteam already running (pid %d)", st.PID)
	}

	logFile := filepath.Join(stateDir(opts.Home), "sweteam.log")
	stderr, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	args := []string{
		"daemon",
		"--home", opts.Home,
		"--port", strconv.Itoa(opts.Port),
		"--interval", fmt.Sprintf("%g", opts.IntervalSec),
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.Runtime != "" {
		args = append(args, "--runtime", opts.Runtime)
	}
	if opts.APIBase != "" {
		args = append(args, "--api-base", opts.APIBase)
	}

	cmd := exec.Command(exe, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait briefly for pid file to appear or process to die.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Fallback to started pid even if status isn't ready yet.
	return cmd.Process.Pid, nil
}

func Stop(ctx context.Context, home string) (bool, error) {
	st, err := Status(ctx, home)
	if err != nil {
		return false, err
	}
	if !st.Running {
		return false, nil
	}

	proc, err := os.FindProcess(st.PID)
	if err != nil {
		// On unix FindProcess always succeeds; keep this for completeness.
		return false, errors.New("sweteam is not running")
	}
	if err := signalTerm(proc); err != nil {
		return false, err
	}

	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		if st2, _ := Status(ctx, home); !st2.Running {
			return true, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	_ = proc.Kill()
	return true, nil
}

func Status(ctx context.Context, home string) (StatusInfo, error) {
	pb, err := os.ReadFile(pidPath(home))
	if err != nil {
		return StatusInfo{Running: false}, nil
	}
	pidStr := strings.TrimSpace(string(pb))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}

	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}

	addr := ""
	if ab, err := os.ReadFile(addrPath(home)); err == nil {
		addr = strings.TrimSpace(string(ab))
	}
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr}, nil
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}
