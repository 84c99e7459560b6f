// Package result defines the shared batch-outcome type produced by
// BatchAccumulator and consumed by AppState/DownloadManager.
package result

// Batch is the outcome of flushing one batch: every URL from the
// input batch appears in exactly one of the two lists, one entry per
// occurrence (duplicates in the input are tracked per occurrence, not
// deduplicated).
type Batch struct {
	FailedUrls    []string
	SucceededUrls []string
}
