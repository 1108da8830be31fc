// Package notifications delivers workflow events to ntfy.
//
// Publish formats one of the enumerated events (completion, partial publish,
// failure, sweep attention) and posts it to the configured topic URL. A blank
// topic yields a no-op service, and each event class can be muted through the
// [notifications] config section.
package notifications
