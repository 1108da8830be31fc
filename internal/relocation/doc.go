// Package relocation copies styled assets from the caption provider's
// short-lived URL to durable public storage before a record is scheduled.
//
// Object keys are derived from the styled URL, so re-running a relocation for
// the same asset overwrites the same object instead of leaving copies behind.
package relocation
