// Package logging builds the slog loggers used by postflow and the daemon.
//
// Console output leads with the component and workflow subject, for example
// "[captions] Workflow #12 (carz, captions) - submitted", followed by any
// remaining key=value pairs. JSON output carries the same keys. Helpers such
// as WorkflowID, Brand, and Status keep field names consistent, and
// WithContext copies the workflow scope set by services.WithWorkflow onto a
// logger.
package logging
