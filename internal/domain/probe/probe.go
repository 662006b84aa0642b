package probe

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/registry"
)

// LiveProcessInfo holds the process identifiers matched for an application.
// Recomputed on every query, never cached: a cache would diverge from the
// OS process table.
type LiveProcessInfo struct {
	PIDs []int32 `json:"pids"`
}

// Running reports whether any matching process exists.
func (i LiveProcessInfo) Running() bool {
	return len(i.PIDs) > 0
}

// Probe determines application liveness from the live process table.
//
// Matching is done on command-line signatures rather than PID files: a PID
// file can point at a recycled identifier or be absent while the real
// process survives, while the live table has neither failure mode.
type Probe struct {
	grace  time.Duration
	logger *zap.Logger
	self   int32
}

// New creates a probe. grace is the SIGTERM-to-SIGKILL window used by
// StopAll, matching the executor's escalation policy.
func New(logger *zap.Logger, grace time.Duration) *Probe {
	return &Probe{
		grace:  grace,
		logger: logger,
		self:   int32(os.Getpid()),
	}
}

// IsRunning scans the process table for command lines containing the app's
// liveness signature and returns every match. An empty set means not
// running. The manager's own process and its ancestors are excluded.
func (p *Probe) IsRunning(app *registry.AppConfig) (LiveProcessInfo, error) {
	pids, err := p.match(app.LivenessSignature())
	if err != nil {
		return LiveProcessInfo{}, err
	}
	return LiveProcessInfo{PIDs: pids}, nil
}

// StopAll sends graceful-then-forced termination to every process matching
// the app's signature and returns how many were signalled. Zero matches is
// success, not an error: stop is idempotent.
func (p *Probe) StopAll(app *registry.AppConfig) (int, error) {
	signature := app.LivenessSignature()
	pids, err := p.match(signature)
	if err != nil {
		return 0, err
	}
	if len(pids) == 0 {
		return 0, nil
	}

	p.logger.Info("Stopping matched processes",
		zap.String("app", app.Name),
		zap.Int32s("pids", pids),
	)

	procs := make([]*process.Process, 0, len(pids))
	for _, pid := range pids {
		proc, err := process.NewProcess(pid)
		if err != nil {
			continue // already gone
		}
		if err := proc.Terminate(); err != nil {
			p.logger.Warn("SIGTERM failed", zap.Int32("pid", pid), zap.Error(err))
		}
		procs = append(procs, proc)
	}

	deadline := time.Now().Add(p.grace)
	for time.Now().Before(deadline) {
		if !anyAlive(procs) {
			return len(pids), nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, proc := range procs {
		if alive, _ := proc.IsRunning(); alive {
			p.logger.Warn("Grace period expired, killing", zap.Int32("pid", proc.Pid))
			if err := proc.Kill(); err != nil {
				p.logger.Warn("SIGKILL failed", zap.Int32("pid", proc.Pid), zap.Error(err))
			}
		}
	}

	return len(pids), nil
}

// match returns the PIDs whose command line contains signature.
func (p *Probe) match(signature string) ([]int32, error) {
	if signature == "" {
		return nil, fmt.Errorf("empty liveness signature")
	}

	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate process table: %w", err)
	}

	excluded := p.excluded()
	var pids []int32
	for _, proc := range procs {
		if _, skip := excluded[proc.Pid]; skip {
			continue
		}
		cmdline, err := proc.Cmdline()
		if err != nil || cmdline == "" {
			continue // kernel thread or exited mid-scan
		}
		if strings.Contains(cmdline, signature) {
			pids = append(pids, proc.Pid)
		}
	}
	return pids, nil
}

// excluded returns the manager's own PID plus its ancestor chain. A shell
// or service manager that launched us can carry an app's path on its
// command line without being the app. Recomputed per scan since
// reparenting changes the chain.
func (p *Probe) excluded() map[int32]struct{} {
	out := map[int32]struct{}{p.self: {}}

	pid := p.self
	for depth := 0; depth < 16; depth++ {
		proc, err := process.NewProcess(pid)
		if err != nil {
			break
		}
		ppid, err := proc.Ppid()
		if err != nil || ppid <= 0 {
			break
		}
		out[ppid] = struct{}{}
		if ppid == 1 {
			break
		}
		pid = ppid
	}
	return out
}

func anyAlive(procs []*process.Process) bool {
	for _, proc := range procs {
		if alive, _ := proc.IsRunning(); alive {
			return true
		}
	}
	return false
}
