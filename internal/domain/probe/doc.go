// Package probe derives application liveness from the live process table.
//
// An application counts as running when any process's command line contains
// its liveness signature (the control script path unless overridden). The
// probe never reads PID files and never caches results; every query is a
// fresh scan so the answer cannot drift from reality.
package probe
