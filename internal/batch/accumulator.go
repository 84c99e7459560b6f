package batch

import (
	"os"
	"path/filepath"

	"github.com/go-imagenet/imagenetdl/internal/namer"
	"github.com/go-imagenet/imagenetdl/internal/result"
)

type pendingPair struct {
	categoryID string
	url        string
}

// AccumulatorConfig configures a fresh Accumulator for one
// StatefulDownloader run.
type AccumulatorConfig struct {
	Destination       string
	Namer             *namer.Namer
	Worker            Worker
	BatchSize         int
	MaxImages         int // remaining images needed this run, not the lifetime total
	ImagesPerCategory int
	StartingCounts    map[string]int
}

// Accumulator buffers (category, url) pairs up to BatchSize, enforces
// the per-category quota before any network I/O happens, and flushes
// a buffered batch through a Worker. Grounded on the original's
// image_net/batch_download.py BatchDownload, with one deliberate
// correction: see Flush.
type Accumulator struct {
	destination       string
	namer             *namer.Namer
	worker            Worker
	batchSize         int
	maxImages         int
	imagesPerCategory int

	counts          map[string]int
	pending         []pendingPair
	totalDownloaded int

	// OnFetched and OnComplete mirror the original's callback hooks;
	// nil by default.
	OnFetched  func(failed, succeeded []string)
	OnComplete func()
}

// NewAccumulator constructs an Accumulator from cfg, copying
// StartingCounts so later mutation by the caller is safe.
func NewAccumulator(cfg AccumulatorConfig) *Accumulator {
	counts := make(map[string]int, len(cfg.StartingCounts))
	for k, v := range cfg.StartingCounts {
		counts[k] = v
	}
	return &Accumulator{
		destination:       cfg.Destination,
		namer:             cfg.Namer,
		worker:            cfg.Worker,
		batchSize:         cfg.BatchSize,
		maxImages:         cfg.MaxImages,
		imagesPerCategory: cfg.ImagesPerCategory,
		counts:            counts,
	}
}

// Add buffers (categoryID, url) if categoryID's quota, checked against
// counts already committed by a prior flush (not against what's merely
// pending), isn't already met. Over-quota pairs are dropped silently.
func (a *Accumulator) Add(categoryID, url string) {
	if a.counts[categoryID] < a.imagesPerCategory {
		a.pending = append(a.pending, pendingPair{categoryID, url})
	}
}

// Ready reports whether enough pairs are buffered to flush.
func (a *Accumulator) Ready() bool { return len(a.pending) >= a.batchSize }

// Complete reports whether this run has downloaded its target number
// of images (relative to MaxImages, the remaining count computed at
// the start of this run — not AppState's lifetime total).
func (a *Accumulator) Complete() bool { return a.totalDownloaded >= a.maxImages }

// Empty reports whether there is nothing buffered to flush.
func (a *Accumulator) Empty() bool { return len(a.pending) == 0 }

// FileIndex returns the namer's next index, persisted as AppState's file_index.
func (a *Accumulator) FileIndex() int { return a.namer.FileIndex() }

// CategoryCounts returns a copy of the committed per-category counts.
func (a *Accumulator) CategoryCounts() map[string]int {
	out := make(map[string]int, len(a.counts))
	for k, v := range a.counts {
		out[k] = v
	}
	return out
}

func (a *Accumulator) categoryDir(categoryID string) string {
	dir := filepath.Join(a.destination, categoryID)
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// Flush downloads every buffered pair and returns the batch outcome,
// clearing the buffer.
//
// Category attribution: the original implementation tried to avoid
// re-fetching a URL shared by two categories by inverting the pending
// list into a url->categories map, but the inversion was keyed
// incorrectly and silently dropped most of the credit a success was
// due (see image_net/batch_download.py's _update_category_counts). This
// implementation sidesteps the bug rather than reproducing it: because
// the Duplicate-URL policy already fetches each (category, url)
// pairing independently with its own destination file, attribution is
// simply "this pairing's own category gets credited when its own
// occurrence succeeds" — no inversion needed, and no bug possible.
func (a *Accumulator) Flush() result.Batch {
	pending := a.pending
	a.pending = nil
	if len(pending) == 0 {
		return result.Batch{}
	}

	var preFailed []string
	var urls, destPaths, cats []string
	for _, p := range pending {
		name, err := a.namer.Convert(p.url)
		if err != nil {
			preFailed = append(preFailed, p.url)
			continue
		}
		urls = append(urls, p.url)
		destPaths = append(destPaths, filepath.Join(a.categoryDir(p.categoryID), name))
		cats = append(cats, p.categoryID)
	}

	outcomes := a.worker.RunIndexed(urls, destPaths)

	var workerFailed, workerSucceeded []string
	for i, ok := range outcomes {
		if ok {
			workerSucceeded = append(workerSucceeded, urls[i])
			a.counts[cats[i]]++
		} else {
			workerFailed = append(workerFailed, urls[i])
		}
	}

	a.totalDownloaded += len(workerSucceeded)

	r := result.Batch{
		FailedUrls:    append(preFailed, workerFailed...),
		SucceededUrls: workerSucceeded,
	}

	if a.OnFetched != nil {
		a.OnFetched(r.FailedUrls, r.SucceededUrls)
	}
	if a.Complete() && a.OnComplete != nil {
		a.OnComplete()
	}

	return r
}
