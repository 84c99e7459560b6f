// Package catalog fetches and iterates the two-level category/URL
// catalog: a master category index, and one URL list per category.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/vfaronov/httpheader"

	"github.com/go-imagenet/imagenetdl/internal/downloaderr"
	"github.com/go-imagenet/imagenetdl/internal/telemetry"
)

// Store is the capability CatalogIterator pulls from: fetch the
// master category index, and fetch one category's URL list, each
// returning a local file path once available. Fetching is
// fetch-if-missing — a file already present on disk is reused as is.
type Store interface {
	FetchCategoryIndex(ctx context.Context) (string, error)
	FetchCategoryUrls(ctx context.Context, categoryID string) (string, error)
}

// HTTPStore fetches both documents over HTTP, streaming each response
// body straight to disk (never buffered into memory as text) and
// guarding every destination file with an advisory lock so two
// processes sharing a data directory never race on the same cache
// file. Grounded on the original's image_net/iterators.py
// _download_list, which streams via shutil.copyfileobj.
type HTTPStore struct {
	Client           *http.Client
	DataDir          string
	IndexURL         string
	URLListURLFormat string // e.g. ".../geturls?wnid=%s"
	IndexTimeout     time.Duration
	CategoryTimeout  time.Duration
}

// FetchCategoryIndex returns the path to the master category list,
// downloading it first if it isn't already cached locally.
func (s *HTTPStore) FetchCategoryIndex(ctx context.Context) (string, error) {
	dest := filepath.Join(s.DataDir, "word_net_ids.txt")
	if err := s.fetchIfMissing(ctx, s.IndexURL, dest, s.indexTimeout()); err != nil {
		return "", fmt.Errorf("%w: %v", downloaderr.ErrCatalogUnavailable, err)
	}
	return dest, nil
}

// FetchCategoryUrls returns the path to one category's URL list,
// downloading it first if it isn't already cached locally.
func (s *HTTPStore) FetchCategoryUrls(ctx context.Context, categoryID string) (string, error) {
	dest := filepath.Join(s.DataDir, fmt.Sprintf("synset_urls_%s.txt", categoryID))
	url := fmt.Sprintf(s.URLListURLFormat, categoryID)
	if err := s.fetchIfMissing(ctx, url, dest, s.categoryTimeout()); err != nil {
		return "", fmt.Errorf("%w: %v", downloaderr.ErrCategoryUrlsUnavailable, err)
	}
	return dest, nil
}

func (s *HTTPStore) indexTimeout() time.Duration {
	if s.IndexTimeout > 0 {
		return s.IndexTimeout
	}
	return 120 * time.Second
}

func (s *HTTPStore) categoryTimeout() time.Duration {
	if s.CategoryTimeout > 0 {
		return s.CategoryTimeout
	}
	return 120 * time.Second
}

func (s *HTTPStore) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return http.DefaultClient
}

func (s *HTTPStore) fetchIfMissing(ctx context.Context, url, dest string, timeout time.Duration) error {
	if fileExists(dest) {
		return nil
	}

	lock := flock.New(dest + ".lock")
	if err := lock.Lock(); err != nil {
		return err
	}
	defer lock.Unlock()

	// Re-check: another process may have finished the download while
	// we were waiting for the lock.
	if fileExists(dest) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status fetching %s: %d", url, resp.StatusCode)
	}

	if cr := httpheader.ContentRange(resp.Header); cr.Complete {
		telemetry.Debug("catalog fetch %s: total size %d", url, cr.Size)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	f.Close()
	return os.Rename(tmp, dest)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
