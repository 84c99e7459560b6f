// Package statemachine mediates external control signals (configure,
// start, pause, resume, reset) into DownloadManager control and
// AppState mutations, rejecting illegal transitions. Grounded on
// spec.md's StateMachine transition table; the original PyQt5 program
// has no analogous explicit state machine — its states are implicit
// in which QThread signals are connected where — so this package's
// shape is new, built in the surrounding packages' idiom (explicit
// mutex-guarded struct, event channel, no GUI framework underneath).
package statemachine

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-imagenet/imagenetdl/internal/appdata"
	"github.com/go-imagenet/imagenetdl/internal/downloader"
	"github.com/go-imagenet/imagenetdl/internal/telemetry"
)

// State is one of the six states in spec.md §4.12.
type State string

const (
	StateInitial  State = "initial"
	StateReady    State = "ready"
	StateRunning  State = "running"
	StatePausing  State = "pausing"
	StatePaused   State = "paused"
	StateFinished State = "finished"
)

// ManagerFactory builds the Manager (and the StatefulDownloader
// underneath it) for one run, seeded from state's current
// configuration and resumption position. Injected so StateMachine
// never constructs a catalog.Store or batch.Pool itself.
type ManagerFactory func(ctx context.Context, state *appdata.AppState) (*downloader.Manager, error)

// StateMachine is the single authority over State, serializing every
// transition through mu. It owns an AppState and, per run, a
// downloader.Manager — the two respect a single-writer-at-a-time rule
// (StateMachine writes only between runs; the Manager writes only
// between batches) so neither needs to synchronize with the other
// directly on AppState.
type StateMachine struct {
	mu      sync.Mutex
	state   State
	appData *appdata.AppState
	factory ManagerFactory
	manager *downloader.Manager

	events chan Event
}

// New constructs a StateMachine in StateInitial, or StateReady if
// appData was already configured from a previous process (e.g. a
// resumed run).
func New(appData *appdata.AppState, factory ManagerFactory) *StateMachine {
	s := &StateMachine{
		appData: appData,
		factory: factory,
		events:  make(chan Event, 16),
		state:   StateInitial,
	}
	if _, _, _, configured := appData.Snapshot(); configured {
		s.state = StateReady
	}
	return s
}

// Events returns the channel of emitted StateMachine events. Never closed.
func (s *StateMachine) Events() <-chan Event { return s.events }

// Current reports the current state.
func (s *StateMachine) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Configure validates conf and, on success, persists it and
// transitions to StateReady. On failure, every failed check is
// appended to AppState.errors in the fixed order ValidateConfiguration
// returns, and the state reverts to/stays StateInitial. From
// StateRunning or StatePausing, Configure is ignored entirely; from
// StatePaused it is ignored but does not error.
func (s *StateMachine) Configure(conf appdata.DownloadConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning, StatePausing, StatePaused:
		return
	}

	errs := appdata.ValidateConfiguration(conf.Destination, conf.NumberOfImages, conf.ImagesPerCategory)
	if len(errs) > 0 {
		for _, e := range errs {
			s.appData.AddError(e)
		}
		s.transition(StateInitial)
		return
	}

	s.appData.SetConfiguration(conf)
	s.transition(StateReady)
	telemetry.Event("configured", map[string]any{"id": conf.Destination})
}

// Start begins a run. Only legal from StateReady; a no-op everywhere
// else.
func (s *StateMachine) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	mgr, err := s.factory(ctx, s.appData)
	if err != nil {
		s.mu.Lock()
		s.appData.AddError(err.Error())
		s.transition(StateInitial)
		s.mu.Unlock()
		return fmt.Errorf("starting download: %w", err)
	}

	s.mu.Lock()
	s.manager = mgr
	s.transition(StateRunning)
	s.mu.Unlock()

	mgr.Start(ctx)
	go s.pump(mgr)
	telemetry.Event("started", map[string]any{"id": mgr.RunID()})
	return nil
}

// Pause requests a cooperative pause. Only legal from StateRunning;
// StateReady accepts pause as a no-op per the transition table (a run
// that never started has nothing to pause); everywhere else it is
// ignored.
func (s *StateMachine) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.transition(StatePausing)
	s.manager.Pause()
}

// Resume wakes a paused run. Only legal from StatePaused.
func (s *StateMachine) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	s.transition(StateRunning)
	telemetry.Event("resumed", map[string]any{"id": s.manager.RunID()})
	s.manager.Resume()
}

// Reset discards progress and returns to StateInitial. Legal from
// StatePaused or StateFinished; ignored elsewhere.
func (s *StateMachine) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused && s.state != StateFinished {
		return
	}
	id := ""
	if s.manager != nil {
		id = s.manager.RunID()
	}
	s.appData.Reset()
	s.manager = nil
	s.transition(StateInitial)
	telemetry.Event("reset", map[string]any{"id": id})
}

func (s *StateMachine) transition(to State) {
	s.state = to
	telemetry.Debug("state machine: -> %s", to)
	s.emit(Event{Kind: KindStateChanged, State: to})
}

func (s *StateMachine) emit(e Event) {
	select {
	case s.events <- e:
	default:
		telemetry.Debug("state machine: event channel full, dropping %v", e.Kind)
	}
}

// pump translates the Manager's events into StateMachine events and
// the StatePausing->StatePaused / ...->StateFinished transitions they
// imply.
func (s *StateMachine) pump(mgr *downloader.Manager) {
	for e := range mgr.Events() {
		switch e.Kind {
		case downloader.KindBatchLoaded:
			s.emit(Event{Kind: KindImagesLoaded, Succeeded: e.Succeeded})
		case downloader.KindBatchFailed:
			s.emit(Event{Kind: KindDownloadFailed, Failed: e.Failed})
		case downloader.KindPaused:
			s.mu.Lock()
			if s.state == StatePausing {
				s.transition(StatePaused)
			}
			s.mu.Unlock()
			telemetry.Event("paused", map[string]any{"id": e.RunID})
			s.emit(Event{Kind: KindDownloadPaused})
		case downloader.KindResumed:
			s.emit(Event{Kind: KindDownloadResumed})
		case downloader.KindAllDone:
			s.mu.Lock()
			s.transition(StateFinished)
			s.mu.Unlock()
			s.emit(Event{Kind: KindAllDownloaded})
		case downloader.KindError:
			s.appData.AddError(e.Err.Error())
			s.mu.Lock()
			s.transition(StateInitial)
			s.mu.Unlock()
		}
	}
}
