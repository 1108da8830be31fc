// Package main hosts the postflow operator CLI.
//
// The Cobra command tree covers configuration scaffolding, daemon process
// control, manual sweeps and workflow starts, workflow inspection and retry,
// schedule previews, and content seeding. Commands that mutate workflows open
// the SQLite store directly through daemonrun.Build, so they work whether or
// not the daemon is running.
package main
