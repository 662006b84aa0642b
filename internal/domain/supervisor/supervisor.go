package supervisor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/executor"
	"github.com/opsdeck/appman/internal/domain/lock"
	"github.com/opsdeck/appman/internal/domain/logtail"
	"github.com/opsdeck/appman/internal/domain/probe"
	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/infrastructure/monitoring"
	"github.com/opsdeck/appman/internal/infrastructure/notify"
	"github.com/opsdeck/appman/internal/shared/apperr"
)

// Options tunes the supervisor.
type Options struct {
	ActionTimeout time.Duration
	UpdateTimeout time.Duration
	LockWait      time.Duration
	DefaultLines  int
	MaxLines      int
	Noise         []string
}

// Supervisor is the long-lived orchestrator. It owns the registry, the lock
// table, the executor, the probe, and the log filter; request handlers hold
// a reference to it and nothing else. The lock table lives here rather than
// as package state so its lifetime is exactly the supervisor's.
type Supervisor struct {
	registry *registry.Registry
	locks    *lock.Table
	exec     *executor.Executor
	probe    *probe.Probe
	filter   logtail.Filter
	notifier *notify.Notifier
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	opts     Options
}

// New wires a supervisor. notifier and metrics may be nil.
func New(
	reg *registry.Registry,
	exec *executor.Executor,
	prb *probe.Probe,
	notifier *notify.Notifier,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
	opts Options,
) *Supervisor {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 60 * time.Second
	}
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 2 * opts.ActionTimeout
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 30 * time.Second
	}
	if opts.DefaultLines <= 0 {
		opts.DefaultLines = 50
	}
	if opts.MaxLines < opts.DefaultLines {
		opts.MaxLines = opts.DefaultLines
	}

	return &Supervisor{
		registry: reg,
		locks:    lock.NewTable(),
		exec:     exec,
		probe:    prb,
		filter:   logtail.NoiseFilter(opts.Noise),
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// Registry exposes the app registry to the dispatch layer.
func (s *Supervisor) Registry() *registry.Registry {
	return s.registry
}

// Do runs one script-driven lifecycle action for the named app (empty name
// means the default app). The per-app lock serializes it against every
// other operation on the same name; the lock releases on every exit path.
func (s *Supervisor) Do(ctx context.Context, appName string, action registry.Action) (*executor.Result, error) {
	if !action.Valid() || action == registry.ActionLogs {
		return nil, fmt.Errorf("action %q cannot be executed", action)
	}

	app, err := s.registry.Resolve(appName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	result, err := s.exec.Run(ctx, app, action, s.opts.ActionTimeout)
	if err != nil {
		s.record(app.Name, string(action), "error", time.Since(start))
		return nil, err
	}

	// Belt and suspenders: the script's stop can miss stale processes
	// after a crash, the signature scan does not.
	if action == registry.ActionStop {
		s.reapStale(app)
	}

	s.finish(app.Name, string(action), result)
	return result, nil
}

// Status reports liveness for the named app. Runs under the same per-app
// lock so a status probe cannot race the middle of a restart.
func (s *Supervisor) Status(ctx context.Context, appName string) (probe.LiveProcessInfo, error) {
	app, err := s.registry.Resolve(appName)
	if err != nil {
		return probe.LiveProcessInfo{}, err
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return probe.LiveProcessInfo{}, err
	}
	defer release()

	info, err := s.probe.IsRunning(app)
	if err != nil {
		return probe.LiveProcessInfo{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordStatus(app.Name, info.Running())
	}
	return info, nil
}

// Logs tails the named app's log file for a channel. lines <= 0 uses the
// configured default; requests above the maximum are clamped.
func (s *Supervisor) Logs(ctx context.Context, appName string, channel registry.Channel, lines int) ([]string, error) {
	app, err := s.registry.Resolve(appName)
	if err != nil {
		return nil, err
	}
	if channel == "" {
		channel = registry.ChannelBackend
	}
	if !channel.Valid() {
		return nil, fmt.Errorf("unknown log channel %q", channel)
	}

	path, err := s.LogPath(app, channel)
	if err != nil {
		return nil, err
	}

	if lines <= 0 {
		lines = s.opts.DefaultLines
	}
	if lines > s.opts.MaxLines {
		lines = s.opts.MaxLines
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	out, err := logtail.Tail(path, lines, s.filter)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordLogRead(app.Name, string(channel))
	}
	return out, nil
}

// LogPath resolves the concrete log file for a channel, expanding globs to
// the newest match.
func (s *Supervisor) LogPath(app *registry.AppConfig, channel registry.Channel) (string, error) {
	pattern := app.LogPath(channel)
	if pattern == "" {
		return "", fmt.Errorf("%w: app %q has no %s log configured", apperr.ErrLogNotFound, app.Name, channel)
	}
	return logtail.ResolvePath(pattern)
}

// StopAll terminates every process matching the app's signature, bypassing
// the control script. Used by stop as cleanup; exposed for the dispatch
// layer's force-stop. Zero matches is success.
func (s *Supervisor) StopAll(ctx context.Context, appName string) (int, error) {
	app, err := s.registry.Resolve(appName)
	if err != nil {
		return 0, err
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return 0, err
	}
	defer release()

	return s.probe.StopAll(app)
}

// Update pulls the app's repository and restarts it, all under one lock
// hold so no other action can slip between pull and restart. The combined
// output of both steps comes back in one result.
func (s *Supervisor) Update(ctx context.Context, appName string) (*executor.Result, error) {
	app, err := s.registry.Resolve(appName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	pull, err := s.exec.RunArgv(ctx, app.Path, []string{"git", "pull"}, s.opts.UpdateTimeout)
	if err != nil {
		return nil, err
	}
	if !pull.Success() {
		s.finish(app.Name, "update", pull)
		return pull, nil
	}

	restart, err := s.exec.Run(ctx, app, registry.ActionRestart, s.opts.ActionTimeout)
	if err != nil {
		return nil, err
	}

	combined := combine(pull, restart)
	s.finish(app.Name, "update", combined)
	return combined, nil
}

// Branch fetches remote branches and checks out the named one. The app is
// not restarted: switching alone changes nothing until the next restart or
// build, same as editing the working tree would.
func (s *Supervisor) Branch(ctx context.Context, appName, branch string) (*executor.Result, error) {
	if branch == "" {
		return nil, fmt.Errorf("empty branch name")
	}

	app, err := s.registry.Resolve(appName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	fetch, err := s.exec.RunArgv(ctx, app.Path, []string{"git", "fetch"}, s.opts.UpdateTimeout)
	if err != nil {
		return nil, err
	}
	if !fetch.Success() {
		s.finish(app.Name, "branch", fetch)
		return fetch, nil
	}

	checkout, err := s.exec.RunArgv(ctx, app.Path, []string{"git", "checkout", branch}, s.opts.ActionTimeout)
	if err != nil {
		return nil, err
	}

	combined := combine(fetch, checkout)
	s.finish(app.Name, "branch", combined)
	return combined, nil
}

// Rollback discards the last commits (git reset --hard HEAD~n) and restarts
// the app, all under one lock hold. A failed reset skips the restart: the
// working tree is unchanged, so restarting would only mask the failure.
func (s *Supervisor) Rollback(ctx context.Context, appName string, commits int) (*executor.Result, error) {
	if commits < 1 {
		return nil, fmt.Errorf("rollback needs a positive commit count, got %d", commits)
	}

	app, err := s.registry.Resolve(appName)
	if err != nil {
		return nil, err
	}

	release, err := s.acquire(app.Name)
	if err != nil {
		return nil, err
	}
	defer release()

	target := fmt.Sprintf("HEAD~%d", commits)
	reset, err := s.exec.RunArgv(ctx, app.Path, []string{"git", "reset", "--hard", target}, s.opts.ActionTimeout)
	if err != nil {
		return nil, err
	}
	if !reset.Success() {
		s.finish(app.Name, "rollback", reset)
		return reset, nil
	}

	restart, err := s.exec.Run(ctx, app, registry.ActionRestart, s.opts.ActionTimeout)
	if err != nil {
		return nil, err
	}

	combined := combine(reset, restart)
	s.finish(app.Name, "rollback", combined)
	return combined, nil
}

// acquire takes the per-app lock with the configured wait bound.
func (s *Supervisor) acquire(name string) (func(), error) {
	release, err := s.locks.TryAcquire(name, s.opts.LockWait)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordBusy(name)
		}
		return nil, err
	}
	return release, nil
}

// reapStale kills processes the script's own stop missed. Best effort:
// failures are logged, the script's result stands.
func (s *Supervisor) reapStale(app *registry.AppConfig) {
	count, err := s.probe.StopAll(app)
	if err != nil {
		s.logger.Warn("Stale process cleanup failed",
			zap.String("app", app.Name), zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("Stopped lingering processes",
			zap.String("app", app.Name), zap.Int("count", count))
	}
}

func (s *Supervisor) record(app, action, outcome string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordAction(app, action, outcome, d)
	}
}

// finish records metrics and publishes the webhook event for a completed
// operation. Every outcome notifies, failures included.
func (s *Supervisor) finish(app, action string, result *executor.Result) {
	s.record(app, action, outcome(result), result.Duration)
	s.notifier.Publish(notify.Event{
		App:      app,
		Action:   action,
		Outcome:  outcome(result),
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
		Duration: result.Duration.String(),
	})
}

// combine merges a preparatory step and the main step into one result.
// Output concatenates in execution order; the verdict is the second step's.
func combine(first, second *executor.Result) *executor.Result {
	return &executor.Result{
		ExecutionID: second.ExecutionID,
		ExitCode:    second.ExitCode,
		Output:      first.Output + second.Output,
		Truncated:   first.Truncated || second.Truncated,
		Duration:    first.Duration + second.Duration,
		TimedOut:    second.TimedOut,
	}
}

func outcome(r *executor.Result) string {
	switch {
	case r.TimedOut:
		return "timeout"
	case r.ExitCode == 0:
		return "success"
	default:
		return "failure"
	}
}
