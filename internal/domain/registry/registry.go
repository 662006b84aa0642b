package registry

import (
	"fmt"

	"github.com/opsdeck/appman/internal/shared/apperr"
)

// Registry holds the configured applications. It is immutable after New:
// resolution is a pure function of registry state and never touches the
// filesystem or the process table.
type Registry struct {
	apps        []*AppConfig
	byName      map[string]*AppConfig
	defaultName string
}

// New builds a registry from an ordered list of app configs. The load-time
// invariants live here: at least one app, unique non-empty names, non-empty
// paths, and a default that references an existing entry. When defaultName
// is empty the first configured app becomes the default.
func New(apps []*AppConfig, defaultName string) (*Registry, error) {
	if len(apps) == 0 {
		return nil, fmt.Errorf("no applications configured")
	}

	byName := make(map[string]*AppConfig, len(apps))
	for _, app := range apps {
		if app.Name == "" {
			return nil, fmt.Errorf("application with empty name")
		}
		if app.Path == "" {
			return nil, fmt.Errorf("application %q has empty path", app.Name)
		}
		if _, exists := byName[app.Name]; exists {
			return nil, fmt.Errorf("duplicate application name %q", app.Name)
		}
		if app.Script == "" {
			app.Script = DefaultScript
		}
		byName[app.Name] = app
	}

	if defaultName == "" {
		defaultName = apps[0].Name
	} else if _, ok := byName[defaultName]; !ok {
		return nil, fmt.Errorf("default application %q is not configured", defaultName)
	}

	return &Registry{
		apps:        apps,
		byName:      byName,
		defaultName: defaultName,
	}, nil
}

// Resolve returns the config for name, substituting the default when name is
// empty. Lookup is case-sensitive and exact-match.
func (r *Registry) Resolve(name string) (*AppConfig, error) {
	if name == "" {
		name = r.defaultName
	}
	app, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownApp, name)
	}
	return app, nil
}

// List returns the applications in configured order.
func (r *Registry) List() []*AppConfig {
	out := make([]*AppConfig, len(r.apps))
	copy(out, r.apps)
	return out
}

// Names returns the application names in configured order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.apps))
	for i, app := range r.apps {
		names[i] = app.Name
	}
	return names
}

// Default returns the default application name.
func (r *Registry) Default() string {
	return r.defaultName
}

// Len returns the number of configured applications.
func (r *Registry) Len() int {
	return len(r.apps)
}
