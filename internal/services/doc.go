// Package services defines shared utilities consumed by the workflow stage
// handlers and the external provider clients.
//
// Key responsibilities:
//   - Context helpers that stamp workflow IDs, stage names, brands, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper. Stage code tags every
//     failure with one marker so the workflow manager can decide between
//     failing the record (validation) and leaving it for the monitor
//     (transient).
//   - The provider-neutral JobStatus returned by synthesis and caption clients.
//
// Provider clients live in subpackages (heygen, submagic, late, youtube) and
// share the retrying HTTP client in httpx.
package services
