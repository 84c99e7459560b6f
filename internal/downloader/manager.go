package downloader

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/go-imagenet/imagenetdl/internal/telemetry"
)

// Manager runs a StatefulDownloader on a background goroutine,
// translating each yielded batch into Events and honoring cooperative
// Pause/Resume between batches. Grounded on the original's
// util/download_manager.py DownloadManager (a QThread there; a plain
// goroutine plus mutex/condvar here, since Go has no GUI event loop to
// marshal signals onto).
type Manager struct {
	downloader *StatefulDownloader
	events     chan Event
	runID      string

	mu     sync.Mutex
	cond   *sync.Cond
	paused bool
}

// NewManager constructs a Manager around an already-seeded
// StatefulDownloader, stamping a fresh run ID onto every Event it
// emits.
func NewManager(d *StatefulDownloader) *Manager {
	m := &Manager{
		downloader: d,
		events:     make(chan Event, 8),
		runID:      uuid.NewString(),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Events returns the channel of emitted events. It is closed once the
// run finishes, errors out, or ctx given to Start is canceled.
func (m *Manager) Events() <-chan Event { return m.events }

// RunID identifies this Manager's run, stable across its lifetime.
func (m *Manager) RunID() string { return m.runID }

// Start launches the driving goroutine. It returns immediately; the
// caller reads progress from Events().
func (m *Manager) Start(ctx context.Context) {
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.events)

	for {
		select {
		case <-ctx.Done():
			telemetry.Debug("download run %s canceled", m.runID)
			return
		default:
		}

		r, ok, err := m.downloader.Next()
		if err != nil {
			m.emit(Event{Kind: KindError, Err: err})
			return
		}
		if !ok {
			break
		}

		telemetry.Event("batch_flushed", map[string]any{
			"id":        m.runID,
			"succeeded": len(r.SucceededUrls),
			"failed":    len(r.FailedUrls),
		})

		if len(r.SucceededUrls) > 0 {
			m.emit(Event{Kind: KindBatchLoaded, Succeeded: r.SucceededUrls})
		}
		if len(r.FailedUrls) > 0 {
			m.emit(Event{Kind: KindBatchFailed, Failed: r.FailedUrls})
		}

		m.waitIfPaused()
	}

	m.emit(Event{Kind: KindAllDone})
}

func (m *Manager) emit(e Event) {
	e.RunID = m.runID
	m.events <- e
}

func (m *Manager) waitIfPaused() {
	m.mu.Lock()
	if !m.paused {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.emit(Event{Kind: KindPaused})

	m.mu.Lock()
	for m.paused {
		m.cond.Wait()
	}
	m.mu.Unlock()
}

// Pause requests that the run stop dispatching new batches once the
// in-flight one finishes. It is cooperative: a batch already in
// flight always completes.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume wakes a paused run and emits KindResumed.
func (m *Manager) Resume() {
	m.mu.Lock()
	wasPaused := m.paused
	m.paused = false
	m.mu.Unlock()
	m.cond.Broadcast()
	if wasPaused {
		m.emit(Event{Kind: KindResumed})
	}
}
