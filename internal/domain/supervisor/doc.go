// Package supervisor orchestrates lifecycle requests end to end.
//
// Every request follows the same shape: resolve the name against the
// registry, take the per-app lock (bounded wait, Busy past it), perform the
// work under a timeout, release on every exit path. Actions on different
// apps never contend; actions on the same app serialize in lock-acquisition
// order. One misbehaving script affects only its own application.
package supervisor
