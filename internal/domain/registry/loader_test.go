package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/opsdeck/appman/internal/shared/apperr"
)

const sampleYAML = `
default_app: demo
apps:
  - name: demo
    path: /srv/demo
    script: scripts/ctl.sh
    description: Demo application
    commands:
      start: up
      stop: down
    logs:
      backend: /var/log/demo/backend.log
      frontend: /var/log/demo/frontend.log
  - name: other
    path: /srv/other
    signature: "other-daemon"
`

func TestLoad(t *testing.T) {
	r, err := Load([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if r.Len() != 2 {
		t.Fatalf("Expected 2 apps, got %d", r.Len())
	}
	if r.Default() != "demo" {
		t.Errorf("Expected default 'demo', got %q", r.Default())
	}

	demo, err := r.Resolve("demo")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if demo.Command(ActionStart) != "up" {
		t.Errorf("Command override lost: %q", demo.Command(ActionStart))
	}
	if demo.LogPath(ChannelBackend) != "/var/log/demo/backend.log" {
		t.Errorf("Log path lost: %q", demo.LogPath(ChannelBackend))
	}

	other, _ := r.Resolve("other")
	if other.Script != DefaultScript {
		t.Errorf("Expected default script, got %q", other.Script)
	}
	if other.LivenessSignature() != "other-daemon" {
		t.Errorf("Signature override lost: %q", other.LivenessSignature())
	}

	if _, err := r.Resolve("nope"); !errors.Is(err, apperr.ErrUnknownApp) {
		t.Errorf("Expected ErrUnknownApp, got %v", err)
	}
}

func TestLoadRejectsUnknownAction(t *testing.T) {
	bad := `
apps:
  - name: demo
    path: /srv/demo
    commands:
      reboot: now
`
	_, err := Load([]byte(bad))
	if err == nil {
		t.Fatal("Expected error for unknown action")
	}
	// The message names the accepted verbs so a config typo is self-explaining
	if !strings.Contains(err.Error(), "valid:") {
		t.Errorf("Expected the valid action list in %q", err.Error())
	}
}

func TestLoadRejectsUnknownChannel(t *testing.T) {
	bad := `
apps:
  - name: demo
    path: /srv/demo
    logs:
      syslog: /var/log/syslog
`
	if _, err := Load([]byte(bad)); err == nil {
		t.Error("Expected error for unknown log channel")
	}
}

func TestLoadEmpty(t *testing.T) {
	if _, err := Load([]byte("apps: []")); err == nil {
		t.Error("Expected error for empty registry")
	}
}
