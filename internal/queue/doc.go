// Package queue persists workflow records and the content seeds they are
// built from in SQLite, and exposes the conditional writes that drive the
// video lifecycle.
//
// Every status change is a compare-and-swap (Transition), so concurrent cron
// invocations, webhooks, and the stuck sweep can race on one record and only
// the first writer wins; the others see ErrStaleTransition and do nothing.
// status_changed_at moves only when the status does. Annotate writes job ids
// and URLs without touching it, so stuck detection stays honest.
//
// The same database holds the shared coordination tables: slot claims keyed
// by (brand, day, hour), content locks, presenter rotation cursors, named
// leases, webhook delivery keys, and failed webhook deliveries.
//
// Schema changes are appended to the migrations in schema.go and applied on
// Open. A database from a newer build is refused.
package queue
