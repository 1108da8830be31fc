// Package logs tails the daemon log file for the CLI.
//
// Tail reads the last N lines or resumes from a byte offset, optionally
// waiting for new lines so `postflow logs --follow` can poll without holding
// the file open. Filter narrows output to one workflow record, a component,
// or a minimum level, and understands both the console and JSON log formats.
package logs
