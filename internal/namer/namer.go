// Package namer assigns sequential destination file names to fetched
// URLs, grounded on the original's image_net/util.py Url2FileName.
package namer

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/go-imagenet/imagenetdl/internal/downloaderr"
)

// Namer hands out "<index><ext>" file names from a monotonically
// increasing counter, persisted across runs as AppState's file_index.
type Namer struct {
	mu    sync.Mutex
	index int
}

// New constructs a Namer starting at startingIndex (clamped to at
// least 1, matching the original's default).
func New(startingIndex int) *Namer {
	if startingIndex < 1 {
		startingIndex = 1
	}
	return &Namer{index: startingIndex}
}

// Convert derives the next destination file name for rawURL, or
// ErrMalformedUrl if rawURL carries trailing whitespace or a newline
// (the original's rstrip check) — such a URL never reaches the
// fetcher and is treated as a failure by the caller.
func (n *Namer) Convert(rawURL string) (string, error) {
	if strings.TrimRight(rawURL, "\r\n\t ") != rawURL {
		return "", fmt.Errorf("%w: %q has trailing whitespace", downloaderr.ErrMalformedUrl, rawURL)
	}

	ext := extensionOf(rawURL)

	n.mu.Lock()
	defer n.mu.Unlock()
	name := fmt.Sprintf("%d%s", n.index, ext)
	n.index++
	return name, nil
}

// FileIndex returns the next index that will be assigned, the value
// persisted as AppState's internal_state.file_index.
func (n *Namer) FileIndex() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

func extensionOf(rawURL string) string {
	base := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		base = u.Path
	}
	return path.Ext(path.Base(base))
}
