// Package fetch implements the Fetcher and Validator capabilities:
// downloading one URL to one destination file, and checking whether
// the result is a genuine image.
package fetch

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vfaronov/httpheader"

	"github.com/go-imagenet/imagenetdl/internal/telemetry"
)

// Fetcher downloads url to destPath, reporting success as a bool
// rather than an error: per spec §4.5, any failure (network, status,
// partial write) is just "false", with no distinction the caller acts
// on differently.
type Fetcher interface {
	Fetch(ctx context.Context, url, destPath string) bool
}

// HTTPFetcher is the real implementation: a per-fetch timeout, a
// streamed copy to a temp file, and a rename into place only on full
// success. The destination is opened only after a 200 response is
// seen, and any temp file is removed on failure.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destPath string) bool {
	ctx, cancel := context.WithTimeout(ctx, f.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := f.client().Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	if mediaType, _ := httpheader.ContentType(resp.Header); mediaType != "" {
		telemetry.Debug("fetch %s: content-type=%s", url, mediaType)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return false
	}

	tmp := destPath + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return false
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return false
	}
	out.Close()

	if err := os.Rename(tmp, destPath); err != nil {
		os.Remove(tmp)
		return false
	}
	return true
}

func (f *HTTPFetcher) client() *http.Client {
	if f.Client != nil {
		return f.Client
	}
	return http.DefaultClient
}

func (f *HTTPFetcher) timeout() time.Duration {
	if f.Timeout > 0 {
		return f.Timeout
	}
	return 30 * time.Second
}

// StubFetcher writes a fixed literal and always reports success. Used
// by tests that exercise the pipeline without a real server.
type StubFetcher struct{}

// Fetch implements Fetcher.
func (StubFetcher) Fetch(_ context.Context, _, destPath string) bool {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return false
	}
	return os.WriteFile(destPath, []byte("stub image data"), 0o644) == nil
}

// AlwaysFailFetcher reports failure for every URL, for testing the
// all-failed batch path.
type AlwaysFailFetcher struct{}

// Fetch implements Fetcher.
func (AlwaysFailFetcher) Fetch(context.Context, string, string) bool { return false }
