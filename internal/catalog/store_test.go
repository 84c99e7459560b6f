package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-imagenet/imagenetdl/internal/downloaderr"
)

func TestFetchCategoryIndexDownloadsOnce(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("n001\nn002\n"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	store := &HTTPStore{DataDir: dir, IndexURL: ts.URL}

	path, err := store.FetchCategoryIndex(context.Background())
	if err != nil {
		t.Fatalf("FetchCategoryIndex failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fetched file: %v", err)
	}
	if string(data) != "n001\nn002\n" {
		t.Fatalf("unexpected contents: %q", data)
	}

	if _, err := store.FetchCategoryIndex(context.Background()); err != nil {
		t.Fatalf("second FetchCategoryIndex failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one HTTP call, got %d", calls)
	}
}

func TestFetchCategoryIndexFailureWrapsCatalogUnavailable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	store := &HTTPStore{DataDir: t.TempDir(), IndexURL: ts.URL}
	_, err := store.FetchCategoryIndex(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, downloaderr.ErrCatalogUnavailable) {
		t.Fatalf("expected error wrapping ErrCatalogUnavailable, got %v", err)
	}
}

func TestFetchCategoryUrlsUsesPerCategoryFile(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("http://example.com/a.jpg\n"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	store := &HTTPStore{DataDir: dir, URLListURLFormat: ts.URL + "/%s"}

	path, err := store.FetchCategoryUrls(context.Background(), "n001")
	if err != nil {
		t.Fatalf("FetchCategoryUrls failed: %v", err)
	}
	if filepath.Base(path) != "synset_urls_n001.txt" {
		t.Fatalf("unexpected destination file name: %s", path)
	}
}

func TestFetchCategoryUrlsReusesPreExistingFile(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte("http://example.com/a.jpg\n"))
	}))
	defer ts.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "synset_urls_n001.txt")
	if err := os.WriteFile(dest, []byte("http://example.com/cached.jpg\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	store := &HTTPStore{DataDir: dir, URLListURLFormat: ts.URL + "/%s"}
	path, err := store.FetchCategoryUrls(context.Background(), "n001")
	if err != nil {
		t.Fatalf("FetchCategoryUrls failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "http://example.com/cached.jpg\n" {
		t.Fatalf("expected cached contents to be preserved, got %q", data)
	}
	if calls != 0 {
		t.Fatalf("expected no HTTP calls for an already-cached file, got %d", calls)
	}
}
