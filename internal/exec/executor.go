// Package exec runs modules and external commands on the agents' behalf.
// Synchronous calls are capture-everything with a hard timeout; asynchronous
// calls return a handle immediately and can be polled later.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AlanyTan/sweteam/pkg/models"
)

// DefaultTimeout bounds synchronous executions.
const DefaultTimeout = 120 * time.Second

// Result is the captured outcome of a synchronous execution.
type Result struct {
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
	ExitCode int    `json:"exit_code"`
}

// Executor runs subprocesses rooted at WorkDir. Background processes started
// with asynchronous=true are tracked until polled or the executor shuts down.
type Executor struct {
	WorkDir     string
	Interpreter string // defaults to "python3"
	Timeout     time.Duration

	mu         sync.Mutex
	background map[int]*backgroundProc
}

type backgroundProc struct {
	cmd    *exec.Cmd
	out    *bytes.Buffer
	errOut *bytes.Buffer
	done   chan struct{}
	err    error
}

// New returns an Executor rooted at workDir.
func New(workDir string) *Executor {
	return &Executor{
		WorkDir:     workDir,
		Interpreter: "python3",
		Timeout:     DefaultTimeout,
		background:  make(map[int]*backgroundProc),
	}
}

func (e *Executor) timeout() time.Duration {
	if e.Timeout > 0 {
		return e.Timeout
	}
	return DefaultTimeout
}

// RunModule executes a module with the configured interpreter: `-m module`
// when no method is given, otherwise a one-liner that calls the method with
// the given arguments and prints its JSON-encoded return value.
func (e *Executor) RunModule(ctx context.Context, module, method string, args []string, kwargs map[string]any) (Result, error) {
	if strings.TrimSpace(module) == "" {
		return Result{}, fmt.Errorf("%w: module_name is required", models.ErrValidation)
	}
	var argv []string
	if method == "" {
		argv = append([]string{"-m", module}, args...)
	} else {
		call, err := buildCall(module, method, args, kwargs)
		if err != nil {
			return Result{}, err
		}
		argv = []string{"-c", call}
	}
	return e.runSync(ctx, e.Interpreter, argv)
}

// RunCommand executes an external command. With asynchronous set the process
// is started and a pid message returned immediately; otherwise the call
// blocks until exit or timeout.
func (e *Executor) RunCommand(ctx context.Context, command string, args []string, asynchronous bool) (Result, error) {
	if strings.TrimSpace(command) == "" {
		return Result{}, fmt.Errorf("%w: command is required", models.ErrValidation)
	}
	if Blocked(command, args) {
		return Result{}, fmt.Errorf("%w: command %q is blocked", models.ErrValidation, command)
	}
	if !asynchronous {
		return e.runSync(ctx, command, args)
	}

	cmd := exec.Command(command, args...)
	cmd.Dir = e.WorkDir
	bp := &backgroundProc{cmd: cmd, out: &bytes.Buffer{}, errOut: &bytes.Buffer{}, done: make(chan struct{})}
	cmd.Stdout = bp.out
	cmd.Stderr = bp.errOut
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("%w: start %s: %v", models.ErrExecution, command, err)
	}
	pid := cmd.Process.Pid
	e.mu.Lock()
	e.background[pid] = bp
	e.mu.Unlock()
	go func() {
		bp.err = cmd.Wait()
		close(bp.done)
	}()
	slog.Info("started background command", "command", command, "pid", pid)
	return Result{Output: fmt.Sprintf("started %s in a parallel process: %d", command, pid)}, nil
}

// Poll reports on a background process without blocking. Finished processes
// are removed from tracking on first poll.
func (e *Executor) Poll(pid int) (Result, bool, error) {
	e.mu.Lock()
	bp, ok := e.background[pid]
	e.mu.Unlock()
	if !ok {
		return Result{}, false, fmt.Errorf("%w: no background process %d", models.ErrNotFound, pid)
	}
	select {
	case <-bp.done:
		e.mu.Lock()
		delete(e.background, pid)
		e.mu.Unlock()
		res := Result{Output: bp.out.String(), Error: bp.errOut.String(), ExitCode: bp.cmd.ProcessState.ExitCode()}
		return res, true, nil
	default:
		return Result{Output: fmt.Sprintf("process %d still running", pid)}, false, nil
	}
}

// Shutdown kills any still-running background processes.
func (e *Executor) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for pid, bp := range e.background {
		select {
		case <-bp.done:
		default:
			if bp.cmd.Process != nil {
				_ = bp.cmd.Process.Kill()
			}
			slog.Warn("killed background command on shutdown", "pid", pid)
		}
		delete(e.background, pid)
	}
}

func (e *Executor) runSync(ctx context.Context, command string, args []string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.WorkDir
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	err := cmd.Run()
	res := Result{Output: out.String(), Error: errOut.String()}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return res, fmt.Errorf("%w: %s timed out after %s", models.ErrExecution, command, e.timeout())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, fmt.Errorf("%w: %s exited %d: %s", models.ErrExecution, command, res.ExitCode, strings.TrimSpace(errOut.String()))
		}
		return res, fmt.Errorf("%w: run %s: %v", models.ErrExecution, command, err)
	}
	return res, nil
}

// buildCall renders the interpreter one-liner for a method invocation. The
// argument values travel as JSON literals so quoting stays unambiguous.
func buildCall(module, method string, args []string, kwargs map[string]any) (string, error) {
	pyArgs := make([]string, 0, len(args))
	for _, a := range args {
		lit, err := json.Marshal(a)
		if err != nil {
			return "", fmt.Errorf("%w: encode argument %q", models.ErrValidation, a)
		}
		pyArgs = append(pyArgs, string(lit))
	}
	kw := "{}"
	if len(kwargs) > 0 {
		enc, err := json.Marshal(kwargs)
		if err != nil {
			return "", fmt.Errorf("%w: encode kwargs", models.ErrValidation)
		}
		kw = string(enc)
	}
	if !identifierLike(module) || !identifierLike(method) {
		return "", fmt.Errorf("%w: module and method must be dotted identifiers", models.ErrValidation)
	}
	return fmt.Sprintf(
		"import json, %s; print(json.dumps({'output': getattr(%s, %s)(*[%s], **json.loads(%s))}))",
		module, module, strconv.Quote(method), strings.Join(pyArgs, ", "), strconv.Quote(kw),
	), nil
}

func identifierLike(s string) bool {
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if seg == "" {
			return false
		}
		for i, r := range seg {
			switch {
			case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
			case r >= '0' && r <= '9':
				if i == 0 {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}
