package progress

import "sync"

// Observer is called with the new state after every applied transition
type Observer func(State)

// Tracker holds the current progress state of one build session and notifies
// observers whenever it changes.
type Tracker struct {
	mu        sync.Mutex
	current   State
	observers []Observer
}

// NewTracker creates a tracker in the NotStarted state
func NewTracker() *Tracker {
	return &Tracker{current: NotStarted}
}

// Subscribe registers an observer. Observers run synchronously after the
// transition is applied, outside the tracker lock.
func (t *Tracker) Subscribe(o Observer) {
	if o == nil {
		return
	}

	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

// Advance sets the current state. There is no ordering guard: the server's
// phase order is authoritative. Once the tracker is terminal nothing changes
// and Advance returns false.
func (t *Tracker) Advance(s State) bool {
	t.mu.Lock()
	if t.current.Terminal() {
		t.mu.Unlock()
		return false
	}

	t.current = s
	observers := make([]Observer, len(t.observers))
	copy(observers, t.observers)
	t.mu.Unlock()

	for _, o := range observers {
		o(s)
	}

	return true
}

// Current returns the current state
func (t *Tracker) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current
}

// Terminal reports whether the tracker reached Success or Failed
func (t *Tracker) Terminal() bool {
	return t.Current().Terminal()
}
