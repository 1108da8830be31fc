// Package api defines wire-format types and converters for the HTTP API and
// the CLI's JSON output. It translates internal queue models into
// transport-friendly DTOs so consumers never couple to internal types.
//
// # Key Types
//
// Workflow: transport representation of a workflow record with its schedule
// decisions and dispatch history.
//
// WorkflowStatus: record counts per status and stage readiness.
//
// SweepResponse and StartResponse: results of the cron-triggered operations.
//
// # Converters
//
// FromItem: queue.Item -> Workflow.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// FromSweepSummary: workflow.SweepSummary -> SweepResponse.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Statuses are exposed as their lowercase
// strings. Timestamps use RFC3339 with milliseconds.
package api
