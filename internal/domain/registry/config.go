package registry

import (
	"path/filepath"
)

// Action is one of the fixed lifecycle operations.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
	ActionStatus  Action = "status"
	ActionLogs    Action = "logs"
	ActionBuild   Action = "build"
)

// Actions lists every lifecycle action in a fixed order.
func Actions() []Action {
	return []Action{ActionStart, ActionStop, ActionRestart, ActionStatus, ActionLogs, ActionBuild}
}

// Valid reports whether a is a known lifecycle action.
func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionStop, ActionRestart, ActionStatus, ActionLogs, ActionBuild:
		return true
	}
	return false
}

// Channel selects which of an application's log files to read.
type Channel string

const (
	ChannelBackend  Channel = "backend"
	ChannelFrontend Channel = "frontend"
)

// Valid reports whether c is a known log channel.
func (c Channel) Valid() bool {
	return c == ChannelBackend || c == ChannelFrontend
}

// DefaultScript is the control script path used when an app omits one,
// relative to the app root.
const DefaultScript = "scripts/dev.sh"

// AppConfig describes one managed application. It is built at registry load
// time and never mutated afterwards; every accessor is read-only.
type AppConfig struct {
	// Name is the unique identifier, used as the lock and lookup key.
	Name string `json:"name" yaml:"name"`

	// Path is the filesystem root the control script executes relative to.
	Path string `json:"path" yaml:"path"`

	// Script is the control script path, relative to Path unless absolute.
	// Existence is checked at invocation time, not at load time.
	Script string `json:"script" yaml:"script"`

	// Description is free-form text for listings.
	Description string `json:"description,omitempty" yaml:"description"`

	// Commands overrides the literal argument passed to the script per
	// action. Unset actions default to the action's own name.
	Commands map[Action]string `json:"commands,omitempty" yaml:"commands"`

	// LogPaths maps log channels to file paths or glob patterns.
	LogPaths map[Channel]string `json:"logs,omitempty" yaml:"logs"`

	// Signature overrides the command-line pattern used to recognize the
	// app's process in the process table. Defaults to the script path.
	Signature string `json:"signature,omitempty" yaml:"signature"`
}

// ScriptPath returns the absolute path of the control script.
func (a *AppConfig) ScriptPath() string {
	if filepath.IsAbs(a.Script) {
		return a.Script
	}
	return filepath.Join(a.Path, a.Script)
}

// Command returns the literal script argument for an action.
func (a *AppConfig) Command(action Action) string {
	if cmd, ok := a.Commands[action]; ok && cmd != "" {
		return cmd
	}
	return string(action)
}

// LogPath returns the configured path for a log channel, or "" when the
// channel has no log file.
func (a *AppConfig) LogPath(channel Channel) string {
	return a.LogPaths[channel]
}

// LivenessSignature returns the command-line pattern that identifies the
// app's running process.
func (a *AppConfig) LivenessSignature() string {
	if a.Signature != "" {
		return a.Signature
	}
	return a.ScriptPath()
}
