// Package preflight provides readiness checks for external services
// and filesystem paths that postflow depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "postflow status" command renders the same results as a table.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
