// Package synthesis drives records through avatar video generation.
//
// Queued records are submitted once; the stored job id is the idempotency
// key, so a record that already carries one is only transitioned, never
// resubmitted. Completion arrives through OnCallback or, when the callback is
// lost, through the stuck sweep polling the provider.
package synthesis
