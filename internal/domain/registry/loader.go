package registry

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// registryFile is the on-disk schema of the apps file.
type registryFile struct {
	DefaultApp string     `yaml:"default_app"`
	Apps       []appEntry `yaml:"apps"`
}

type appEntry struct {
	Name        string            `yaml:"name"`
	Path        string            `yaml:"path"`
	Script      string            `yaml:"script"`
	Description string            `yaml:"description"`
	Commands    map[string]string `yaml:"commands"`
	Logs        map[string]string `yaml:"logs"`
	Signature   string            `yaml:"signature"`
}

// LoadFile reads an apps YAML file and builds a validated registry.
// A bad registry is fatal at startup; none of these errors are reachable
// per-request.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read apps file %s: %w", path, err)
	}
	return Load(data)
}

// Load builds a registry from raw YAML.
func Load(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse apps file: %w", err)
	}

	apps := make([]*AppConfig, 0, len(file.Apps))
	for _, entry := range file.Apps {
		app := &AppConfig{
			Name:        entry.Name,
			Path:        entry.Path,
			Script:      entry.Script,
			Description: entry.Description,
			Signature:   entry.Signature,
		}

		if len(entry.Commands) > 0 {
			app.Commands = make(map[Action]string, len(entry.Commands))
			for key, value := range entry.Commands {
				action := Action(key)
				if !action.Valid() {
					return nil, fmt.Errorf("app %q: unknown action %q in commands (valid: %v)", entry.Name, key, Actions())
				}
				app.Commands[action] = value
			}
		}

		if len(entry.Logs) > 0 {
			app.LogPaths = make(map[Channel]string, len(entry.Logs))
			for key, value := range entry.Logs {
				channel := Channel(key)
				if !channel.Valid() {
					return nil, fmt.Errorf("app %q: unknown log channel %q", entry.Name, key)
				}
				app.LogPaths[channel] = value
			}
		}

		apps = append(apps, app)
	}

	return New(apps, file.DefaultApp)
}
