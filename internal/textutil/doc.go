// Package textutil prepares user-facing text for external providers.
//
// The primary use cases are:
//   - Cleaning feed titles (HTML entities, unicode normalization, length caps)
//   - Building platform captions with brand hashtags
//   - Sanitizing tokens used in object storage keys
//
// Provider limits are counted in runes, never bytes, so multi-byte titles are
// never cut mid-character.
package textutil
