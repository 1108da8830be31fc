// Package publishing dispatches committed schedule decisions to the social
// scheduling API and to direct platform uploads.
//
// Each decision produces at most one scheduling API call (all of its
// scheduler-routed platforms together) plus one upload per direct platform.
// Results are recorded per decision as dispatches; a decision or channel that
// already succeeded is skipped when a record is dispatched again, which keeps
// re-dispatch after a partial failure from double posting.
package publishing
