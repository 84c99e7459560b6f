// Package downloader implements the resumable pull-stream download
// loop (StatefulDownloader) and the background-goroutine driver
// (DownloadManager) that sits on top of it.
package downloader

import (
	"context"

	"github.com/go-imagenet/imagenetdl/internal/appdata"
	"github.com/go-imagenet/imagenetdl/internal/batch"
	"github.com/go-imagenet/imagenetdl/internal/catalog"
	"github.com/go-imagenet/imagenetdl/internal/downloaderr"
	"github.com/go-imagenet/imagenetdl/internal/namer"
	"github.com/go-imagenet/imagenetdl/internal/result"
)

// StatefulDownloader drives the catalog Iterator into a batch
// Accumulator, persisting AppState after each flushed batch so a run
// can be killed and resumed without loss or duplication beyond the
// Duplicate-URL policy's own allowances. Grounded on the original's
// image_net/stateful_downloader.py StatefulDownloader.
type StatefulDownloader struct {
	state  *appdata.AppState
	store  catalog.Store
	worker batch.Worker

	iter *catalog.Iterator
	acc  *batch.Accumulator
}

// New constructs a StatefulDownloader for one run, seeding its
// Iterator and Accumulator from state's persisted configuration and
// resumption position. Returns ErrNotConfigured if state has not been
// configured yet.
func New(ctx context.Context, state *appdata.AppState, store catalog.Store, worker batch.Worker) (*StatefulDownloader, error) {
	conf, progress, internal, configured := state.Snapshot()
	if !configured {
		return nil, downloaderr.ErrNotConfigured
	}

	startAfter, err := state.Cursor()
	if err != nil {
		return nil, err
	}

	imagesLeft := conf.NumberOfImages - progress.TotalDownloaded

	acc := batch.NewAccumulator(batch.AccumulatorConfig{
		Destination:       conf.Destination,
		Namer:             namer.New(internal.FileIndex),
		Worker:            worker,
		BatchSize:         max1(conf.BatchSize),
		MaxImages:         imagesLeft,
		ImagesPerCategory: conf.ImagesPerCategory,
		StartingCounts:    internal.CategoryCounts,
	})

	return &StatefulDownloader{
		state:  state,
		store:  store,
		worker: worker,
		iter:   catalog.NewIterator(ctx, store, startAfter),
		acc:    acc,
	}, nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Next advances the catalog until a batch fills up, flushing and
// persisting it, then returns that batch's outcome. ok is false once
// the run has nothing further to yield: the target was reached, or the
// catalog was exhausted (with a final partial flush first, if
// anything was buffered). A non-nil error is always fatal and leaves
// state unpersisted for the item that triggered it.
func (d *StatefulDownloader) Next() (result.Batch, bool, error) {
	for {
		if d.acc.Complete() {
			d.state.MarkFinished()
			return result.Batch{}, false, nil
		}

		item, ok, err := d.iter.Next()
		if err != nil {
			return result.Batch{}, false, err
		}
		if !ok {
			break
		}

		d.acc.Add(item.CategoryID, item.URL)
		d.state.SetCursor(item.Cursor)
		d.state.SetCategoryCounts(d.acc.CategoryCounts())

		if d.acc.Ready() {
			return d.flush(), true, nil
		}
	}

	d.state.MarkFinished()
	if d.acc.Empty() {
		return result.Batch{}, false, nil
	}
	return d.flush(), true, nil
}

func (d *StatefulDownloader) flush() result.Batch {
	r := d.acc.Flush()

	d.state.UpdateProgress(r)
	d.state.SetFileIndex(d.acc.FileIndex())
	d.state.SetCategoryCounts(d.acc.CategoryCounts())
	if d.acc.Complete() {
		d.state.MarkFinished()
	}
	_ = d.state.AppendFailures(r.FailedUrls)
	_ = d.state.Save()

	return r
}
