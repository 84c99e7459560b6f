package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-imagenet/imagenetdl/internal/namer"
)

// fakeWorker returns canned per-index outcomes, or succeeds for every
// url not present in fail.
type fakeWorker struct {
	fail map[string]bool
	last struct {
		urls, destPaths []string
	}
}

func (f *fakeWorker) RunIndexed(urls, destPaths []string) []bool {
	f.last.urls = urls
	f.last.destPaths = destPaths
	out := make([]bool, len(urls))
	for i, u := range urls {
		out[i] = !f.fail[u]
	}
	return out
}

func newTestAccumulator(t *testing.T, w Worker, batchSize, maxImages, perCategory int) *Accumulator {
	t.Helper()
	return NewAccumulator(AccumulatorConfig{
		Destination:       t.TempDir(),
		Namer:             namer.New(1),
		Worker:            w,
		BatchSize:         batchSize,
		MaxImages:         maxImages,
		ImagesPerCategory: perCategory,
	})
}

func TestAccumulatorReadyAtBatchSize(t *testing.T) {
	a := newTestAccumulator(t, &fakeWorker{}, 2, 100, 100)
	a.Add("n01", "http://x/1.jpg")
	assert.False(t, a.Ready(), "expected not ready after one item with batch size 2")
	a.Add("n01", "http://x/2.jpg")
	assert.True(t, a.Ready(), "expected ready after two items with batch size 2")
}

func TestAccumulatorDropsOverQuotaPairs(t *testing.T) {
	a := newTestAccumulator(t, &fakeWorker{}, 10, 100, 1)
	a.counts["n01"] = 1 // quota already met
	a.Add("n01", "http://x/1.jpg")
	assert.True(t, a.Empty(), "expected over-quota pair to be dropped, not buffered")
}

func TestFlushAttributesSuccessToOwnCategoryPerOccurrence(t *testing.T) {
	w := &fakeWorker{fail: map[string]bool{"http://x/dup.jpg": false}}
	a := newTestAccumulator(t, w, 10, 100, 100)

	// The same URL appears under two categories; the Duplicate-URL
	// policy fetches each occurrence independently, so both should be
	// able to succeed and credit their own category.
	a.Add("n01", "http://x/dup.jpg")
	a.Add("n02", "http://x/dup.jpg")

	r := a.Flush()

	require.Len(t, r.SucceededUrls, 2)
	assert.Equal(t, 1, a.counts["n01"])
	assert.Equal(t, 1, a.counts["n02"])
}

func TestFlushReportsFailuresWithoutCreditingCount(t *testing.T) {
	w := &fakeWorker{fail: map[string]bool{"http://x/bad.jpg": true}}
	a := newTestAccumulator(t, w, 10, 100, 100)
	a.Add("n01", "http://x/bad.jpg")
	a.Add("n01", "http://x/good.jpg")

	r := a.Flush()

	require.Equal(t, []string{"http://x/bad.jpg"}, r.FailedUrls)
	require.Equal(t, []string{"http://x/good.jpg"}, r.SucceededUrls)
	assert.Equal(t, 1, a.counts["n01"])
}

func TestFlushTreatsMalformedUrlAsPreFailureWithoutCallingWorker(t *testing.T) {
	w := &fakeWorker{}
	a := newTestAccumulator(t, w, 10, 100, 100)
	a.Add("n01", "http://x/bad.jpg\n")
	a.Add("n01", "http://x/good.jpg")

	r := a.Flush()

	require.Equal(t, []string{"http://x/bad.jpg\n"}, r.FailedUrls)
	assert.Len(t, w.last.urls, 1, "expected worker only invoked for the well-formed url")
}

func TestFlushCreatesCategoryDirectory(t *testing.T) {
	a := newTestAccumulator(t, &fakeWorker{}, 10, 100, 100)
	a.Add("n01", "http://x/1.jpg")
	a.Flush()

	_, err := os.Stat(filepath.Join(a.destination, "n01"))
	require.NoError(t, err, "expected category directory to be created")
}

func TestCompleteReflectsMaxImagesNotLifetimeCounts(t *testing.T) {
	a := newTestAccumulator(t, &fakeWorker{}, 10, 2, 100)
	a.Add("n01", "http://x/1.jpg")
	a.Add("n01", "http://x/2.jpg")
	a.Flush()
	assert.True(t, a.Complete(), "expected Complete() once totalDownloaded reaches maxImages")
}

func TestFlushOnEmptyIsNoop(t *testing.T) {
	a := newTestAccumulator(t, &fakeWorker{}, 10, 100, 100)
	r := a.Flush()
	assert.Empty(t, r.FailedUrls)
	assert.Empty(t, r.SucceededUrls)
}

func TestCategoryCountsReturnsCopy(t *testing.T) {
	a := newTestAccumulator(t, &fakeWorker{}, 10, 100, 100)
	a.Add("n01", "http://x/1.jpg")
	a.Flush()

	counts := a.CategoryCounts()
	counts["n01"] = 999
	assert.NotEqual(t, 999, a.counts["n01"], "expected CategoryCounts to return an independent copy")
}
