package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/inovacc/binderlaunch/internal/buildspec"
	"github.com/inovacc/binderlaunch/internal/progress"
)

// Snapshot is a consistent copy of a session's state
type Snapshot struct {
	ID          string
	Spec        buildspec.Spec
	State       progress.State
	Launching   bool
	LogsVisible bool
	RedirectURL string
	ImageName   string
	Err         error
	Started     time.Time
	Finished    time.Time
}

// Done reports whether the session has finished, successfully or not
func (s Snapshot) Done() bool {
	return !s.Finished.IsZero()
}

// Observer receives a snapshot after every change to a session
type Observer func(Snapshot)

type record struct {
	state       progress.State
	launching   bool
	logsVisible bool
	redirectURL string
	imageName   string
	err         error
	finished    time.Time
}

// Session is one build-and-launch attempt. It is created by the Controller
// and only the Controller mutates it.
type Session struct {
	id      string
	spec    buildspec.Spec
	started time.Time
	tracker *progress.Tracker

	mu        sync.RWMutex
	rec       record
	observers []Observer
}

func newSession(spec buildspec.Spec, observers []Observer) *Session {
	tracker := progress.NewTracker()
	tracker.Advance(progress.Waiting)

	return &Session{
		id:        uuid.NewString(),
		spec:      spec,
		started:   time.Now(),
		tracker:   tracker,
		rec:       record{state: progress.Waiting, launching: true},
		observers: observers,
	}
}

// apply is the single mutation entry point. State changes go through the
// progress tracker, so a terminal session keeps its state.
func (s *Session) apply(fn func(r *record)) {
	s.mu.Lock()

	r := s.rec
	fn(&r)

	if r.state != s.rec.state && !s.tracker.Advance(r.state) {
		r.state = s.rec.state
	}

	s.rec = r
	snap := s.snapshotLocked()
	observers := s.observers
	s.mu.Unlock()

	for _, o := range observers {
		o(snap)
	}
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		Spec:        s.spec,
		State:       s.rec.state,
		Launching:   s.rec.launching,
		LogsVisible: s.rec.logsVisible,
		RedirectURL: s.rec.redirectURL,
		ImageName:   s.rec.imageName,
		Err:         s.rec.err,
		Started:     s.started,
		Finished:    s.rec.finished,
	}
}

// Snapshot returns a copy of the current state
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.snapshotLocked()
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Spec() buildspec.Spec {
	return s.spec
}

func (s *Session) Started() time.Time {
	return s.started
}

func (s *Session) State() progress.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.state
}

// Launching reports whether a build is still in flight
func (s *Session) Launching() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.launching
}

// LogsVisible reports whether the log display must be shown
func (s *Session) LogsVisible() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.logsVisible
}

func (s *Session) RedirectURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.redirectURL
}

func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.err
}

func (s *Session) Finished() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.rec.finished
}
