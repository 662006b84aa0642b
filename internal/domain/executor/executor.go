package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/shared/apperr"
	"github.com/opsdeck/appman/internal/shared/id"
)

const (
	// DefaultCaptureBytes bounds the combined stdout+stderr capture.
	// Oldest bytes drop first past this bound.
	DefaultCaptureBytes = 2 * 1024 * 1024

	// DefaultGracePeriod is how long a SIGTERM'd process group gets before
	// SIGKILL.
	DefaultGracePeriod = 5 * time.Second

	// TimeoutExitCode is the sentinel exit code reported when an action hit
	// its timeout. No real wait status produces it together with TimedOut.
	TimeoutExitCode = -1
)

// Result is the outcome of one action execution. Immutable; consumed once
// by the caller and never persisted here.
type Result struct {
	ExecutionID id.ExecutionID `json:"execution_id"`
	ExitCode    int            `json:"exit_code"`
	Output      string         `json:"output"`
	Truncated   bool           `json:"truncated"`
	Duration    time.Duration  `json:"duration"`
	TimedOut    bool           `json:"timed_out"`
}

// Success reports whether the action completed normally with exit 0.
// Script exit-code conventions beyond zero/non-zero are left to deployments.
func (r *Result) Success() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// Executor runs lifecycle actions as supervised child processes.
type Executor struct {
	grace        time.Duration
	captureBytes int
	logger       *zap.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithGracePeriod overrides the SIGTERM-to-SIGKILL grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.grace = d
		}
	}
}

// WithCaptureBytes overrides the output capture bound.
func WithCaptureBytes(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.captureBytes = n
		}
	}
}

// New creates an executor.
func New(logger *zap.Logger, opts ...Option) *Executor {
	e := &Executor{
		grace:        DefaultGracePeriod,
		captureBytes: DefaultCaptureBytes,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the control script for one lifecycle action with the app
// root as working directory. It blocks until the child exits or the timeout
// escalation completes; the child is reaped on every path.
func (e *Executor) Run(ctx context.Context, app *registry.AppConfig, action registry.Action, timeout time.Duration) (*Result, error) {
	script := app.ScriptPath()
	if err := checkScript(script); err != nil {
		return nil, err
	}

	return e.RunArgv(ctx, app.Path, []string{script, app.Command(action)}, timeout)
}

// RunArgv runs an arbitrary argv under the same supervision engine. Used
// for non-script invocations such as the update operation's git pull.
func (e *Executor) RunArgv(ctx context.Context, dir string, argv []string, timeout time.Duration) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", apperr.ErrSpawnFailed)
	}

	execID := id.NewExecutionID()
	buf := newCaptureBuffer(e.captureBytes)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = buf
	cmd.Stderr = buf
	// Own process group so the timeout escalation reaches every descendant,
	// not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	e.logger.Info("Executing command",
		zap.String("execution_id", string(execID)),
		zap.Strings("argv", argv),
		zap.String("dir", dir),
		zap.Duration("timeout", timeout),
	)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", apperr.ErrSpawnFailed, argv[0], err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var timedOut bool
	select {
	case <-done:
	case <-timer.C:
		timedOut = true
		e.terminate(cmd, done)
	case <-ctx.Done():
		timedOut = true
		e.terminate(cmd, done)
	}

	result := &Result{
		ExecutionID: execID,
		Output:      string(buf.Bytes()),
		Truncated:   buf.Truncated(),
		Duration:    time.Since(start),
		TimedOut:    timedOut,
	}
	if timedOut {
		result.ExitCode = TimeoutExitCode
	} else {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	e.logger.Info("Command completed",
		zap.String("execution_id", string(execID)),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("duration", result.Duration),
	)

	return result, nil
}

// terminate escalates SIGTERM, grace period, SIGKILL against the child's
// process group, then waits out the reap. Mandatory for every exit path
// including cancellation: the child is never abandoned.
func (e *Executor) terminate(cmd *exec.Cmd, done chan error) {
	pgid := cmd.Process.Pid // Setpgid with Pgid 0 makes the child lead its own group

	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		e.logger.Warn("SIGTERM failed", zap.Int("pgid", pgid), zap.Error(err))
	}

	grace := time.NewTimer(e.grace)
	defer grace.Stop()

	select {
	case <-done:
		return
	case <-grace.C:
	}

	e.logger.Warn("Grace period expired, killing process group", zap.Int("pgid", pgid))
	if err := syscall.Kill(-pgid, syscall.SIGKILL); err != nil {
		e.logger.Warn("SIGKILL failed", zap.Int("pgid", pgid), zap.Error(err))
	}
	<-done
}

// checkScript fails fast when the control script is missing or not
// executable, before any process spawns.
func checkScript(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s", apperr.ErrScriptNotFound, path)
	}
	if info.IsDir() || info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("%w: %s is not executable", apperr.ErrScriptNotFound, path)
	}
	return nil
}
