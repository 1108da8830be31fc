// Package daemon coordinates the long-running postflow process and its HTTP
// surface.
//
// It wires configuration, the record store, the workflow manager, the stuck
// monitor, and the content selector into a single lifecycle with flock-based
// locking to prevent multiple instances. The HTTP server hosts provider
// webhooks, the cron-triggered sweep and start endpoints, a read-only
// workflow API, Prometheus metrics, and a liveness probe. Optional in-process
// tickers run the sweep and the start trigger for deployments without an
// external scheduler.
//
// Keep orchestration logic here: individual workflow steps live in their
// respective packages while the daemon focuses on startup, shutdown, request
// handling, and high level coordination.
package daemon
