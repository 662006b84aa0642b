package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/opsdeck/appman/internal/domain/executor"
	"github.com/opsdeck/appman/internal/domain/probe"
	"github.com/opsdeck/appman/internal/domain/registry"
	"github.com/opsdeck/appman/internal/infrastructure/notify"
	"github.com/opsdeck/appman/internal/shared/apperr"
)

// newTestSupervisor builds a supervisor over one app whose control script
// has the given body. Returns the supervisor and the app root.
func newTestSupervisor(t *testing.T, body string, opts Options) (*Supervisor, string) {
	t.Helper()

	dir := t.TempDir()
	script := filepath.Join(dir, "ctl.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}

	reg, err := registry.New([]*registry.AppConfig{
		{Name: "demo", Path: dir, Script: "ctl.sh"},
	}, "demo")
	if err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	exec := executor.New(logger, executor.WithGracePeriod(200*time.Millisecond))
	prb := probe.New(logger, 200*time.Millisecond)

	if opts.ActionTimeout == 0 {
		opts.ActionTimeout = 10 * time.Second
	}
	if opts.LockWait == 0 {
		opts.LockWait = 5 * time.Second
	}

	return New(reg, exec, prb, nil, nil, logger, opts), dir
}

func TestDo(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo "got $1"`, Options{})

	result, err := s.Do(context.Background(), "demo", registry.ActionStart)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Expected success, got exit %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "got start") {
		t.Errorf("Unexpected output: %q", result.Output)
	}
}

func TestDoDefaultApp(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	if _, err := s.Do(context.Background(), "", registry.ActionStatus); err != nil {
		t.Fatalf("Empty name should resolve the default app: %v", err)
	}
}

func TestDoUnknownApp(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	_, err := s.Do(context.Background(), "ghost", registry.ActionStart)
	if !errors.Is(err, apperr.ErrUnknownApp) {
		t.Errorf("Expected ErrUnknownApp, got %v", err)
	}
}

func TestDoRejectsLogsAction(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	if _, err := s.Do(context.Background(), "demo", registry.ActionLogs); err == nil {
		t.Error("Logs must go through Logs(), not Do()")
	}
	if _, err := s.Do(context.Background(), "demo", registry.Action("reboot")); err == nil {
		t.Error("Unknown actions must be rejected")
	}
}

func TestSameAppSerializes(t *testing.T) {
	// The script records entry and exit stamps; overlap would interleave
	// an E before the previous X.
	s, dir := newTestSupervisor(t, `echo "E $$" >> trace.txt
sleep 0.2
echo "X $$" >> trace.txt`, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Do(context.Background(), "demo", registry.ActionBuild); err != nil {
				t.Errorf("Do failed: %v", err)
			}
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "trace.txt"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 8 {
		t.Fatalf("Expected 8 trace lines, got %d", len(lines))
	}
	for i, line := range lines {
		wantPrefix := "E"
		if i%2 == 1 {
			wantPrefix = "X"
		}
		if !strings.HasPrefix(line, wantPrefix) {
			t.Fatalf("Executions interleaved at line %d: %v", i, lines)
		}
	}
}

func TestDifferentAppsRunConcurrently(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	for _, dir := range []string{dirA, dirB} {
		script := filepath.Join(dir, "ctl.sh")
		if err := os.WriteFile(script, []byte("#!/bin/sh\nsleep 0.3\n"), 0755); err != nil {
			t.Fatal(err)
		}
	}

	reg, err := registry.New([]*registry.AppConfig{
		{Name: "a", Path: dirA, Script: "ctl.sh"},
		{Name: "b", Path: dirB, Script: "ctl.sh"},
	}, "")
	if err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	s := New(reg, executor.New(logger), probe.New(logger, time.Second), nil, nil, logger,
		Options{ActionTimeout: 10 * time.Second, LockWait: 5 * time.Second})

	start := time.Now()
	var wg sync.WaitGroup
	for _, name := range []string{"a", "b"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := s.Do(context.Background(), name, registry.ActionStart); err != nil {
				t.Errorf("Do %s failed: %v", name, err)
			}
		}(name)
	}
	wg.Wait()

	// Serialized they would need 600ms; concurrent stays well under
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Different apps appear serialized: %v", elapsed)
	}
}

func TestBusy(t *testing.T) {
	s, _ := newTestSupervisor(t, "sleep 2", Options{LockWait: 50 * time.Millisecond})

	started := make(chan struct{})
	go func() {
		close(started)
		s.Do(context.Background(), "demo", registry.ActionStart)
	}()
	<-started
	time.Sleep(100 * time.Millisecond) // let the first action take the lock

	_, err := s.Do(context.Background(), "demo", registry.ActionStop)
	if !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}
}

func TestStatusNotRunning(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	info, err := s.Status(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if info.Running() {
		t.Errorf("Nothing was started, got PIDs %v", info.PIDs)
	}
}

func TestStopAllIdempotent(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	count, err := s.StopAll(context.Background(), "demo")
	if err != nil {
		t.Fatalf("StopAll on a stopped app should succeed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected zero stopped, got %d", count)
	}
}

func TestLogs(t *testing.T) {
	s, dir := newTestSupervisor(t, `echo ok`, Options{Noise: []string{"ping"}})

	logPath := filepath.Join(dir, "backend.log")
	content := "one\nping noise\ntwo\nthree\n"
	if err := os.WriteFile(logPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	app, _ := s.Registry().Resolve("demo")
	app.LogPaths = map[registry.Channel]string{registry.ChannelBackend: logPath}

	lines, err := s.Logs(context.Background(), "demo", registry.ChannelBackend, 10)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	want := []string{"one", "two", "three"}
	if len(lines) != len(want) {
		t.Fatalf("Expected %v, got %v", want, lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("Line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestLogsUnconfiguredChannel(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	_, err := s.Logs(context.Background(), "demo", registry.ChannelFrontend, 5)
	if !errors.Is(err, apperr.ErrLogNotFound) {
		t.Errorf("Expected ErrLogNotFound, got %v", err)
	}
}

func TestUpdateRunsPullThenRestart(t *testing.T) {
	// A fake git on PATH records the pull; the script records the restart.
	s, dir := newTestSupervisor(t, `echo "script $1" >> trace.txt`, Options{})
	installFakeGit(t, dir, 0)

	result, err := s.Update(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Expected success, exit %d", result.ExitCode)
	}

	data, err := os.ReadFile(filepath.Join(dir, "trace.txt"))
	if err != nil {
		t.Fatal(err)
	}
	trace := string(data)
	pullIdx := strings.Index(trace, "git pull")
	restartIdx := strings.Index(trace, "script restart")
	if pullIdx < 0 || restartIdx < 0 || pullIdx > restartIdx {
		t.Errorf("Expected pull before restart, trace:\n%s", trace)
	}
}

// installFakeGit puts a git stand-in on PATH that appends its arguments to
// dir/trace.txt and exits with the given code.
func installFakeGit(t *testing.T, dir string, exitCode int) {
	t.Helper()
	binDir := filepath.Join(dir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}
	body := fmt.Sprintf("#!/bin/sh\necho \"git $*\" >> %s/trace.txt\nexit %d\n", dir, exitCode)
	if err := os.WriteFile(filepath.Join(binDir, "git"), []byte(body), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestBranchFetchesThenChecksOut(t *testing.T) {
	s, dir := newTestSupervisor(t, `echo "script $1" >> trace.txt`, Options{})
	installFakeGit(t, dir, 0)

	result, err := s.Branch(context.Background(), "demo", "develop")
	if err != nil {
		t.Fatalf("Branch failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Expected success, exit %d", result.ExitCode)
	}

	data, err := os.ReadFile(filepath.Join(dir, "trace.txt"))
	if err != nil {
		t.Fatal(err)
	}
	trace := string(data)
	fetchIdx := strings.Index(trace, "git fetch")
	checkoutIdx := strings.Index(trace, "git checkout develop")
	if fetchIdx < 0 || checkoutIdx < 0 || fetchIdx > checkoutIdx {
		t.Errorf("Expected fetch before checkout, trace:\n%s", trace)
	}
	// Switching branches does not restart the app
	if strings.Contains(trace, "script") {
		t.Errorf("Branch must not touch the control script, trace:\n%s", trace)
	}
}

func TestBranchRejectsEmptyName(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	if _, err := s.Branch(context.Background(), "demo", ""); err == nil {
		t.Error("Expected error for empty branch name")
	}
}

func TestRollbackResetsThenRestarts(t *testing.T) {
	s, dir := newTestSupervisor(t, `echo "script $1" >> trace.txt`, Options{})
	installFakeGit(t, dir, 0)

	result, err := s.Rollback(context.Background(), "demo", 2)
	if err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if !result.Success() {
		t.Errorf("Expected success, exit %d", result.ExitCode)
	}

	data, err := os.ReadFile(filepath.Join(dir, "trace.txt"))
	if err != nil {
		t.Fatal(err)
	}
	trace := string(data)
	resetIdx := strings.Index(trace, "git reset --hard HEAD~2")
	restartIdx := strings.Index(trace, "script restart")
	if resetIdx < 0 || restartIdx < 0 || resetIdx > restartIdx {
		t.Errorf("Expected reset before restart, trace:\n%s", trace)
	}
}

func TestRollbackFailedResetSkipsRestart(t *testing.T) {
	s, dir := newTestSupervisor(t, `echo "script $1" >> trace.txt`, Options{})
	installFakeGit(t, dir, 1)

	result, err := s.Rollback(context.Background(), "demo", 1)
	if err != nil {
		t.Fatalf("A failed reset is a result, not an error: %v", err)
	}
	if result.Success() {
		t.Error("Expected failure result")
	}

	data, err := os.ReadFile(filepath.Join(dir, "trace.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "script restart") {
		t.Errorf("Restart must not run after a failed reset, trace:\n%s", data)
	}
}

func TestRollbackRejectsBadCount(t *testing.T) {
	s, _ := newTestSupervisor(t, `echo ok`, Options{})

	for _, commits := range []int{0, -1} {
		if _, err := s.Rollback(context.Background(), "demo", commits); err == nil {
			t.Errorf("Expected error for commit count %d", commits)
		}
	}
}

func TestUpdateFailedPullStillNotifies(t *testing.T) {
	received := make(chan string, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- string(body)
	}))
	defer hook.Close()

	dir := t.TempDir()
	script := filepath.Join(dir, "ctl.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho ok\n"), 0755); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New([]*registry.AppConfig{
		{Name: "demo", Path: dir, Script: "ctl.sh"},
	}, "demo")
	if err != nil {
		t.Fatal(err)
	}

	logger := zap.NewNop()
	notifier := notify.New(hook.URL, 5*time.Second, logger)
	s := New(reg, executor.New(logger), probe.New(logger, time.Second), notifier, nil, logger,
		Options{ActionTimeout: 10 * time.Second, LockWait: 5 * time.Second})

	installFakeGit(t, dir, 1)

	result, err := s.Update(context.Background(), "demo")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if result.Success() {
		t.Error("Expected the failed pull to surface in the result")
	}

	select {
	case body := <-received:
		if !strings.Contains(body, `"update"`) || !strings.Contains(body, `"failure"`) {
			t.Errorf("Expected an update failure event, got %s", body)
		}
	case <-time.After(5 * time.Second):
		t.Error("Failed pull never reached the webhook")
	}
}

func TestTimeoutIsNotAnError(t *testing.T) {
	s, _ := newTestSupervisor(t, "echo partial\nsleep 60", Options{ActionTimeout: 300 * time.Millisecond})

	result, err := s.Do(context.Background(), "demo", registry.ActionBuild)
	if err != nil {
		t.Fatalf("Timeout must come back as a result, not an error: %v", err)
	}
	if !result.TimedOut {
		t.Error("Expected TimedOut")
	}
	if !strings.Contains(result.Output, "partial") {
		t.Errorf("Partial output lost: %q", result.Output)
	}
}
