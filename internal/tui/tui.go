package tui

import (
	"context"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/inovacc/binderlaunch/internal/buildspec"
	"github.com/inovacc/binderlaunch/internal/session"
)

// TUI drives the build progress display. It is both a log sink and a
// session observer, so it can be handed straight to the controller.
type TUI struct {
	program *tea.Program
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// Option configures the underlying program
type Option func(*options)

type options struct {
	in  io.Reader
	out io.Writer
}

// WithIO replaces the terminal with the given reader and writer
func WithIO(in io.Reader, out io.Writer) Option {
	return func(o *options) {
		o.in = in
		o.out = out
	}
}

// New creates a TUI for spec. onCancel is called when the user asks to abort.
// Messages sent before Start block until the program is running.
func New(spec buildspec.Spec, onCancel func(), opts ...Option) *TUI {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var programOpts []tea.ProgramOption
	if o.in != nil {
		programOpts = append(programOpts, tea.WithInput(o.in))
	}

	if o.out != nil {
		programOpts = append(programOpts, tea.WithOutput(o.out))
	}

	return &TUI{
		program: tea.NewProgram(NewModel(spec, onCancel), programOpts...),
		done:    make(chan struct{}),
	}
}

// Start runs the TUI in the current goroutine and blocks until it exits
func (t *TUI) Start(ctx context.Context) error {
	t.mu.Lock()

	if t.running {
		t.mu.Unlock()
		return nil
	}

	t.running = true
	t.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			t.program.Quit()
		case <-t.done:
		}
	}()

	_, err := t.program.Run()

	t.mu.Lock()
	t.running = false
	t.mu.Unlock()

	close(t.done)

	return err
}

// Observe forwards a session snapshot to the display
func (t *TUI) Observe(snap session.Snapshot) {
	t.send(SnapshotMsg{Snapshot: snap})
}

// Append forwards build log text to the log pane
func (t *TUI) Append(message string) {
	t.send(LogMsg{Text: message})
}

// Done reports the end of the session. The program exits after rendering it.
func (t *TUI) Done(snap session.Snapshot, err error) {
	t.send(DoneMsg{Snapshot: snap, Error: err})
}

// Wait blocks until the TUI has finished
func (t *TUI) Wait() {
	<-t.done
}

func (t *TUI) send(msg tea.Msg) {
	select {
	case <-t.done:
		return
	default:
	}

	t.program.Send(msg)
}
