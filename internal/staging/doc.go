// Package staging manages the local spool directory used while styled assets
// move from the caption provider to durable storage. Spool files are named
// after the workflow record so a crashed relocation leaves evidence of which
// record it belonged to; the sweep removes files older than a cutoff.
package staging
