// Package registry holds the declarative set of managed applications.
//
// An AppConfig describes one application: its name, filesystem root,
// control script, per-action command overrides, and log file locations.
// The Registry resolves names (or the default) to configs and lists entries
// in configured order.
//
// The registry is immutable after load. Resolution is a pure lookup: it
// never touches the filesystem or the process table, so script existence is
// checked by the executor at invocation time instead.
package registry
