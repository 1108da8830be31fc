// Package workflow drives workflow records through their stage handlers.
//
// The Manager maps each active status to the stage.Handler that owns it and
// advances a record until it stops moving: a submit that now waits on a
// provider callback, a terminal status, or an error. Errors are routed by
// class. Permanent failures fail the record, while transient ones are written
// to last_error and left for the Monitor.
//
// The Monitor is the periodic sweep. It takes a store lease so overlapping
// cron ticks skip, re-checks records that exceeded their status threshold,
// steps records whose provider job vanished one status back, counts stuck
// handlings against the retry cap, and performs housekeeping (orphaned content
// locks, staging files, old webhook deliveries and failures, slot claims,
// expired leases).
//
// Neither type holds state between calls. Every step re-reads the record, so
// any number of daemon processes or CLI invocations may run concurrently.
package workflow
