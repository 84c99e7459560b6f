package catalog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-imagenet/imagenetdl/internal/cursor"
	"github.com/go-imagenet/imagenetdl/internal/downloaderr"
)

// Item is one emitted (category, url) pair together with the cursor
// position it corresponds to.
type Item struct {
	CategoryID string
	URL        string
	Cursor     cursor.Cursor
}

// Iterator is a lazy pull-stream over the catalog: Next() fetches
// categories and URL lists on demand, emitting only items strictly
// after startAfter. A category whose URL list cannot be fetched is
// skipped (non-fatal); a master index fetch failure is fatal and
// returned as an error. Restarting a new Iterator with the same
// startAfter against an unchanged catalog snapshot reproduces exactly
// the same remaining sequence (determinism, spec P1).
//
// Grounded on the original's image_net/iterators.py ImageNetUrls.__iter__.
type Iterator struct {
	ctx        context.Context
	store      Store
	startAfter cursor.Cursor

	categories []string
	catPos     int

	urls        []string
	urlPos      int
	curCatID    string
	curCatIndex int

	initialized bool
}

// NewIterator constructs an Iterator that will emit items strictly
// after startAfter. Nothing is fetched until the first Next() call.
func NewIterator(ctx context.Context, store Store, startAfter cursor.Cursor) *Iterator {
	return &Iterator{ctx: ctx, store: store, startAfter: startAfter}
}

// Next returns the next (category, url, cursor) triple, or ok=false
// once the catalog is exhausted. A non-nil error is always fatal
// (ErrCatalogUnavailable); category-level fetch failures are absorbed
// internally and never surface here.
func (it *Iterator) Next() (Item, bool, error) {
	if !it.initialized {
		if err := it.init(); err != nil {
			return Item{}, false, err
		}
		it.initialized = true
	}

	for {
		if it.urlPos >= len(it.urls) {
			if !it.advanceCategory() {
				return Item{}, false, nil
			}
			continue
		}

		url := it.urls[it.urlPos]
		pos := cursor.Cursor{CategoryIndex: it.curCatIndex, URLIndex: it.urlPos}
		it.urlPos++

		if !it.startAfter.Less(pos) {
			continue
		}
		return Item{CategoryID: it.curCatID, URL: url, Cursor: pos}, true, nil
	}
}

func (it *Iterator) init() error {
	path, err := it.store.FetchCategoryIndex(it.ctx)
	if err != nil {
		return err
	}
	lines, err := readNonEmptyLines(path)
	if err != nil {
		return fmt.Errorf("%w: %v", downloaderr.ErrCatalogUnavailable, err)
	}
	it.categories = lines
	return nil
}

// advanceCategory loads the next category's URL list, skipping any
// category whose fetch fails, and reports whether one was found.
func (it *Iterator) advanceCategory() bool {
	for it.catPos < len(it.categories) {
		catID := it.categories[it.catPos]
		idx := it.catPos
		it.catPos++

		path, err := it.store.FetchCategoryUrls(it.ctx, catID)
		if err != nil {
			continue
		}
		lines, err := readNonEmptyLines(path)
		if err != nil {
			continue
		}

		it.urls = lines
		it.urlPos = 0
		it.curCatID = catID
		it.curCatIndex = idx
		return true
	}
	return false
}

func readNonEmptyLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}
