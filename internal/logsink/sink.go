package logsink

import (
	"io"
	"sync"
)

// ClearLine erases the current terminal line and returns the cursor to column 0
const ClearLine = "\x1b[2K\r"

// Sink receives human readable build log text
type Sink interface {
	Append(message string)
}

// Fitter is implemented by display surfaces that need to re-layout after
// new text arrives
type Fitter interface {
	Fit()
}

// Func adapts a function to a Sink
type Func func(message string)

func (f Func) Append(message string) {
	if f != nil {
		f(message)
	}
}

// Writer writes messages verbatim to an io.Writer. Build messages carry their
// own line endings, so nothing is added.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	fitter  Fitter
	cleared bool
}

// NewWriter returns a Writer sink. fitter may be nil.
func NewWriter(w io.Writer, fitter Fitter) *Writer {
	return &Writer{w: w, fitter: fitter}
}

// Append writes the message, clearing the current line before the first write
func (s *Writer) Append(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cleared {
		_, _ = io.WriteString(s.w, ClearLine)
		s.cleared = true
	}

	_, _ = io.WriteString(s.w, message)

	if s.fitter != nil {
		s.fitter.Fit()
	}
}

// Tee fans a message out to several sinks in order
type Tee []Sink

func (t Tee) Append(message string) {
	for _, s := range t {
		if s != nil {
			s.Append(message)
		}
	}
}

// Discard drops every message
var Discard Sink = Func(func(string) {})
