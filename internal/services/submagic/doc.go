// Package submagic submits captioning projects to Submagic and reads back the
// styled download URL. Completed projects without a URL need an explicit
// export; Fetch triggers it and reports the job as still pending.
package submagic
