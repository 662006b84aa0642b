// Package executor runs lifecycle actions as supervised child processes.
//
// Each Run spawns the application's control script in its own process group
// with the app root as working directory, captures stdout and stderr
// interleaved into a bounded circular buffer, and waits for exit or the
// timeout. On timeout the whole group gets SIGTERM, a grace period, then
// SIGKILL; the child is reaped on every path, so no zombie or orphan ever
// survives a call.
//
// A timed out action is not an error: partial output is still meaningful,
// so the result carries TimedOut with whatever was captured.
package executor
