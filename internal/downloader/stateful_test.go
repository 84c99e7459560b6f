package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-imagenet/imagenetdl/internal/appdata"
	"github.com/go-imagenet/imagenetdl/internal/downloaderr"
)

// memStore serves an in-memory category index and per-category URL
// lists without touching the network or disk.
type memStore struct {
	dir        string
	categories []string
	urls       map[string][]string
}

func newMemStore(t *testing.T, categories []string, urls map[string][]string) *memStore {
	t.Helper()
	return &memStore{dir: t.TempDir(), categories: categories, urls: urls}
}

func (m *memStore) FetchCategoryIndex(ctx context.Context) (string, error) {
	path := filepath.Join(m.dir, "word_net_ids.txt")
	if err := writeLines(path, m.categories); err != nil {
		return "", err
	}
	return path, nil
}

func (m *memStore) FetchCategoryUrls(ctx context.Context, categoryID string) (string, error) {
	urls, ok := m.urls[categoryID]
	if !ok {
		return "", fmt.Errorf("no urls for %s", categoryID)
	}
	path := filepath.Join(m.dir, "synset_"+categoryID+".txt")
	if err := writeLines(path, urls); err != nil {
		return "", err
	}
	return path, nil
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, l := range lines {
		if _, err := fmt.Fprintln(f, l); err != nil {
			return err
		}
	}
	return nil
}

// allSucceedWorker reports success for every input.
type allSucceedWorker struct{}

func (allSucceedWorker) RunIndexed(urls, destPaths []string) []bool {
	out := make([]bool, len(urls))
	for i := range out {
		out[i] = true
	}
	return out
}

func configuredState(t *testing.T, numberOfImages, batchSize, perCategory int) *appdata.AppState {
	t.Helper()
	s := appdata.New(t.TempDir())
	s.SetConfiguration(appdata.DownloadConfiguration{
		Destination:       t.TempDir(),
		NumberOfImages:    numberOfImages,
		ImagesPerCategory: perCategory,
		BatchSize:         batchSize,
	})
	return s
}

func TestNewRejectsUnconfiguredState(t *testing.T) {
	s := appdata.New(t.TempDir())
	store := newMemStore(t, nil, nil)
	_, err := New(context.Background(), s, store, allSucceedWorker{})
	if err != downloaderr.ErrNotConfigured {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNextYieldsOneBatchPerBatchSize(t *testing.T) {
	store := newMemStore(t, []string{"n01"}, map[string][]string{
		"n01": {"http://x/1.jpg", "http://x/2.jpg", "http://x/3.jpg", "http://x/4.jpg"},
	})
	s := configuredState(t, 100, 2, 100)

	d, err := New(context.Background(), s, store, allSucceedWorker{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("first Next: ok=%v err=%v", ok, err)
	}
	if len(r.SucceededUrls) != 2 {
		t.Fatalf("expected a batch of 2, got %v", r.SucceededUrls)
	}

	r2, ok2, err2 := d.Next()
	if err2 != nil || !ok2 {
		t.Fatalf("second Next: ok=%v err=%v", ok2, err2)
	}
	if len(r2.SucceededUrls) != 2 {
		t.Fatalf("expected second batch of 2, got %v", r2.SucceededUrls)
	}

	_, ok3, err3 := d.Next()
	if err3 != nil || ok3 {
		t.Fatalf("expected exhaustion, got ok=%v err=%v", ok3, err3)
	}
}

func TestNextFlushesFinalPartialBatchOnExhaustion(t *testing.T) {
	store := newMemStore(t, []string{"n01"}, map[string][]string{
		"n01": {"http://x/1.jpg", "http://x/2.jpg", "http://x/3.jpg"},
	})
	s := configuredState(t, 100, 10, 100)

	d, err := New(context.Background(), s, store, allSucceedWorker{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if len(r.SucceededUrls) != 3 {
		t.Fatalf("expected final partial batch of 3, got %v", r.SucceededUrls)
	}

	_, ok2, _ := d.Next()
	if ok2 {
		t.Fatal("expected no further batches")
	}
}

func TestNextStopsAtNumberOfImages(t *testing.T) {
	store := newMemStore(t, []string{"n01"}, map[string][]string{
		"n01": {"http://x/1.jpg", "http://x/2.jpg", "http://x/3.jpg", "http://x/4.jpg"},
	})
	s := configuredState(t, 2, 2, 100)

	d, err := New(context.Background(), s, store, allSucceedWorker{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	r, ok, err := d.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if len(r.SucceededUrls) != 2 {
		t.Fatalf("expected exactly the target count, got %v", r.SucceededUrls)
	}

	_, ok2, _ := d.Next()
	if ok2 {
		t.Fatal("expected Next to stop once the target was reached")
	}
	_, progress, _, _ := s.Snapshot()
	if !progress.Finished {
		t.Fatal("expected progress to be marked finished")
	}
}

func TestResumeSeedsFromPersistedCursorAndCounts(t *testing.T) {
	store := newMemStore(t, []string{"n01"}, map[string][]string{
		"n01": {"http://x/1.jpg", "http://x/2.jpg", "http://x/3.jpg"},
	})
	s := configuredState(t, 100, 1, 100)

	d1, err := New(context.Background(), s, store, allSucceedWorker{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := d1.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}

	d2, err := New(context.Background(), s, store, allSucceedWorker{})
	if err != nil {
		t.Fatalf("second New: %v", err)
	}
	r, ok, err := d2.Next()
	if err != nil || !ok {
		t.Fatalf("resumed Next: ok=%v err=%v", ok, err)
	}
	if len(r.SucceededUrls) != 1 || r.SucceededUrls[0] != "http://x/2.jpg" {
		t.Fatalf("expected resume to pick up at the second url, got %v", r.SucceededUrls)
	}
}
