// Package testutil provides fixture builders for integration tests: apps
// backed by real control scripts in temp directories.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/executor"
	"github.com/opsdeck/appman/internal/domain/probe"
	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/domain/supervisor"
)

// WriteScript writes an executable shell script into dir and returns its path.
func WriteScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

const ctlScript = `#!/bin/sh
dir="$(cd "$(dirname "$0")" && pwd)"
case "$1" in
  start)
    nohup "$dir/run.sh" >>"$dir/app.log" 2>&1 &
    echo "started"
    ;;
  stop)
    pkill -f "$dir/run.sh" >/dev/null 2>&1 || true
    echo "stopped"
    ;;
  restart)
    "$0" stop
    "$0" start
    ;;
  build)
    echo "built"
    ;;
  *)
    echo "unknown action: $1" >&2
    exit 64
    ;;
esac
`

const runScript = `#!/bin/sh
echo "worker up $$"
while :; do sleep 1; done
`

// SleeperApp builds an app whose start action spawns a long-running worker
// process. The worker's command line contains the temp-dir path, so the
// liveness signature is unique per test.
func SleeperApp(t *testing.T, name string) *registry.AppConfig {
	t.Helper()
	dir := t.TempDir()

	WriteScript(t, dir, "ctl.sh", ctlScript)
	runPath := WriteScript(t, dir, "run.sh", runScript)

	return &registry.AppConfig{
		Name:      name,
		Path:      dir,
		Script:    "ctl.sh",
		Signature: runPath,
		LogPaths: map[registry.Channel]string{
			registry.ChannelBackend: filepath.Join(dir, "app.log"),
		},
	}
}

// NewSupervisor wires a supervisor over the given apps with short timeouts
// suited to tests. The first app is the default.
func NewSupervisor(t *testing.T, apps ...*registry.AppConfig) *supervisor.Supervisor {
	t.Helper()
	require.NotEmpty(t, apps)

	reg, err := registry.New(apps, apps[0].Name)
	require.NoError(t, err)

	logger := zap.NewNop()
	return supervisor.New(
		reg,
		executor.New(logger, executor.WithGracePeriod(time.Second)),
		probe.New(logger, time.Second),
		nil,
		nil,
		logger,
		supervisor.Options{
			ActionTimeout: 15 * time.Second,
			LockWait:      5 * time.Second,
		},
	)
}

// Eventually polls cond until it returns true or the deadline passes.
func Eventually(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return cond()
}
