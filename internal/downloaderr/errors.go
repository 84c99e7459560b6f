// Package downloaderr holds the sentinel errors shared across the
// catalog/fetch/download pipeline, wrapped at call sites with
// fmt.Errorf("...: %w", ...) and checked with errors.Is.
package downloaderr

import "errors"

var (
	// ErrCatalogUnavailable means the top-level category index could
	// not be fetched. Fatal: terminates the whole iteration.
	ErrCatalogUnavailable = errors.New("catalog index unavailable")

	// ErrCategoryUrlsUnavailable means one category's URL list could
	// not be fetched. Non-fatal: the iterator skips the category.
	ErrCategoryUrlsUnavailable = errors.New("category url list unavailable")

	// ErrMalformedUrl means a URL could not be converted to a
	// destination file name (trailing whitespace or newline). The URL
	// never reaches the fetcher and is treated as failed.
	ErrMalformedUrl = errors.New("malformed url")

	// ErrNotConfigured means StatefulDownloader was iterated before
	// AppState.Configured was set.
	ErrNotConfigured = errors.New("downloader not configured")

	// ErrConfigurationInvalid means a configure request failed
	// validation; details are attached to AppState.Errors.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)
