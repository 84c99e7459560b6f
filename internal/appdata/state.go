package appdata

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"

	"github.com/go-imagenet/imagenetdl/internal/cursor"
	"github.com/go-imagenet/imagenetdl/internal/result"
)

// DownloadConfiguration is the user-supplied run configuration,
// persisted as app_state.json's download_configuration key.
type DownloadConfiguration struct {
	Destination       string `json:"download_destination"`
	NumberOfImages    int    `json:"number_of_images"`
	ImagesPerCategory int    `json:"images_per_category"`
	BatchSize         int    `json:"batch_size"`
}

// ProgressInfo is the cumulative, persisted run progress: app_state.json's
// progress_info key, with the last batch result flattened in (no nested
// object), matching the original's ProgressInfo.as_dict.
type ProgressInfo struct {
	TotalDownloaded int      `json:"total_downloaded"`
	TotalFailed     int      `json:"total_failed"`
	Finished        bool     `json:"finished"`
	FailedUrls      []string `json:"failed_urls"`
	SucceededUrls   []string `json:"succeeded_urls"`
}

// LastResult reconstructs the most recent batch outcome.
func (p ProgressInfo) LastResult() result.Batch {
	return result.Batch{FailedUrls: p.FailedUrls, SucceededUrls: p.SucceededUrls}
}

func (p *ProgressInfo) setLastResult(r result.Batch) {
	p.FailedUrls = r.FailedUrls
	p.SucceededUrls = r.SucceededUrls
}

// InternalState is the resumption state invisible to the user:
// app_state.json's internal_state key.
type InternalState struct {
	CursorJSON     string         `json:"iterator_position_json"`
	CategoryCounts map[string]int `json:"category_counts"`
	FileIndex      int            `json:"file_index"`
}

// AppState is the single persisted aggregate document described in
// spec §6: download_configuration, progress_info, internal_state,
// configured, errors. Single-writer-at-a-time by convention (only one
// of StateMachine/DownloadManager mutates it at once); the mutex below
// is defensive, not a concurrency feature.
type AppState struct {
	mu sync.Mutex

	Configuration DownloadConfiguration `json:"download_configuration"`
	Progress      ProgressInfo          `json:"progress_info"`
	Internal      InternalState         `json:"internal_state"`
	Configured    bool                  `json:"configured"`
	Errors        []string              `json:"errors"`

	path            string
	failuresLogPath string
	avg             *runningAverage
}

// New constructs an AppState rooted at dataDir, attempting to load a
// previously persisted document. A missing, corrupt, or incomplete
// document is swallowed and defaults are kept, per spec §7.
func New(dataDir string) *AppState {
	s := &AppState{
		path: filepath.Join(dataDir, "app_state.json"),
		avg:  newRunningAverage(5),
	}
	s.reset()
	// Set after the initial reset so that constructing an AppState keeps
	// the failures.log of a run being resumed.
	s.failuresLogPath = filepath.Join(dataDir, "failures.log")
	_ = s.Load()
	return s
}

func (s *AppState) reset() {
	s.Configuration = DownloadConfiguration{
		Destination:       "",
		NumberOfImages:    100,
		ImagesPerCategory: 90,
		BatchSize:         100,
	}
	s.Progress = ProgressInfo{}
	encoded, _ := cursor.Null.Encode()
	s.Internal = InternalState{
		CursorJSON:     encoded,
		CategoryCounts: map[string]int{},
		FileIndex:      1,
	}
	s.Configured = false
	s.Errors = nil
	s.avg.Reset()
	if s.failuresLogPath != "" {
		_ = os.Remove(s.failuresLogPath)
	}
}

// Reset restores default, unconfigured state.
func (s *AppState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// SetConfiguration resets and applies a validated configuration, then
// marks the state as configured. Callers validate beforehand via
// ValidateConfiguration.
func (s *AppState) SetConfiguration(conf DownloadConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.Configuration = conf
	s.Configured = true
}

// AddError appends a human-readable message to the persisted errors list.
func (s *AppState) AddError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors = append(s.Errors, msg)
}

// UpdateProgress folds one batch result into the cumulative progress
// and feeds the throughput estimator.
func (s *AppState) UpdateProgress(r result.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress.TotalFailed += len(r.FailedUrls)
	s.Progress.TotalDownloaded += len(r.SucceededUrls)
	s.Progress.setLastResult(r)
	s.avg.Update(len(r.SucceededUrls))
}

// MarkFinished sets progress_info.finished.
func (s *AppState) MarkFinished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Progress.Finished = true
}

// Cursor decodes the persisted iterator position.
func (s *AppState) Cursor() (cursor.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cursor.Decode(s.Internal.CursorJSON)
}

// SetCursor updates the in-memory iterator position. Persistence
// happens on the next Save, not immediately.
func (s *AppState) SetCursor(c cursor.Cursor) {
	encoded, _ := c.Encode()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Internal.CursorJSON = encoded
}

// SetCategoryCounts replaces the persisted per-category counters.
func (s *AppState) SetCategoryCounts(counts map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Internal.CategoryCounts = counts
}

// SetFileIndex replaces the persisted file naming counter.
func (s *AppState) SetFileIndex(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Internal.FileIndex = i
}

// Snapshot returns copies of the fields needed to start or resume a
// run, avoiding lock-holding across the caller's own work.
func (s *AppState) Snapshot() (conf DownloadConfiguration, progress ProgressInfo, internal InternalState, configured bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int, len(s.Internal.CategoryCounts))
	for k, v := range s.Internal.CategoryCounts {
		counts[k] = v
	}
	internal = s.Internal
	internal.CategoryCounts = counts
	return s.Configuration, s.Progress, internal, s.Configured
}

// InProgress reports whether any work has happened this configuration.
func (s *AppState) InProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Progress.TotalDownloaded > 0 || s.Progress.TotalFailed > 0
}

// ProgressFraction is downloaded/target, in [0, 1+].
func (s *AppState) ProgressFraction() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Configuration.NumberOfImages == 0 {
		return 0
	}
	return float64(s.Progress.TotalDownloaded) / float64(s.Configuration.NumberOfImages)
}

// TimeRemaining renders an estimate from the sliding-window average,
// or "Eternity" when there is no rate yet.
func (s *AppState) TimeRemaining() string {
	s.mu.Lock()
	rate := s.avg.UnitsPerSecond()
	imagesLeft := s.Configuration.NumberOfImages - s.Progress.TotalDownloaded
	s.mu.Unlock()

	if rate <= 0 {
		return "Eternity"
	}
	if imagesLeft <= 0 {
		return formatDuration(0)
	}
	seconds := int(math.Round(float64(imagesLeft) / rate))
	return formatDuration(seconds)
}

func formatDuration(seconds int) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%d hours", seconds/3600)
	default:
		return fmt.Sprintf("%d days", seconds/86400)
	}
}

// ToJSON renders the contractual external view from spec §6: downloadPath,
// numberOfImages, imagesPerCategory, timeLeft, imagesLoaded, failures,
// failedUrls, succeededUrls, errors, progress.
func (s *AppState) ToJSON() ([]byte, error) {
	s.mu.Lock()
	doc := map[string]any{
		"downloadPath":      s.Configuration.Destination,
		"numberOfImages":    s.Configuration.NumberOfImages,
		"imagesPerCategory": s.Configuration.ImagesPerCategory,
		"imagesLoaded":      s.Progress.TotalDownloaded,
		"failures":          s.Progress.TotalFailed,
		"failedUrls":        s.Progress.FailedUrls,
		"succeededUrls":     s.Progress.SucceededUrls,
		"errors":            s.Errors,
	}
	s.mu.Unlock()

	doc["timeLeft"] = s.TimeRemaining()
	doc["progress"] = s.ProgressFraction()
	return json.Marshal(doc)
}

// AppendFailures appends one URL per line to failures.log.
func (s *AppState) AppendFailures(urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	f, err := os.OpenFile(s.failuresLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, u := range urls {
		if _, err := fmt.Fprintln(f, u); err != nil {
			return err
		}
	}
	return nil
}

// Save atomically persists the document: write to a temp file in the
// same directory, then rename into place, guarded by an advisory file
// lock so two processes sharing a data directory serialize their
// writes. Grounded on the teacher's config.SaveSettings.
func (s *AppState) Save() error {
	s.mu.Lock()
	dir := filepath.Dir(s.path)
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking app state: %w", err)
	}
	defer lock.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads and applies a previously persisted document. Any error —
// missing file, malformed JSON, missing required fields — is returned
// to the caller but deliberately swallowed by New, leaving defaults in
// place.
func (s *AppState) Load() error {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking app state: %w", err)
	}
	defer lock.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var loaded AppState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	if loaded.Internal.CategoryCounts == nil || loaded.Internal.CursorJSON == "" {
		return fmt.Errorf("app state document missing required internal_state fields")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Configuration = loaded.Configuration
	s.Progress = loaded.Progress
	s.Internal = loaded.Internal
	s.Configured = loaded.Configured
	s.Errors = loaded.Errors
	return nil
}

// ValidateConfiguration checks a prospective configuration and returns
// every failed check's human-readable message, in this fixed order:
// missing destination, nonexistent path, non-positive image count,
// non-positive per-category count. Grounded on the original's
// DownloadConfiguration.errors property.
func ValidateConfiguration(destination string, numberOfImages, imagesPerCategory int) []string {
	var errs []string

	trimmed := strings.TrimSpace(destination)
	if trimmed == "" {
		errs = append(errs, "Destination folder was not specified")
	} else if path := ParseDestination(destination); !pathExists(path) {
		errs = append(errs, fmt.Sprintf("Path %q does not exist", path))
	}

	if numberOfImages <= 0 {
		errs = append(errs, "Number of images must be greater than 0")
	}
	if imagesPerCategory <= 0 {
		errs = append(errs, "Images per category must be greater than 0")
	}
	return errs
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
