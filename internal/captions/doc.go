// Package captions styles synthesized videos through the caption provider.
//
// The provider project id is stored with a guarded write that only succeeds
// while the record has none, so concurrent advances submit at most one
// project that the record will ever track. Results arrive by webhook or by the
// sweep polling FetchResult; the styled URL they carry expires within hours,
// which is why relocation follows immediately.
package captions
