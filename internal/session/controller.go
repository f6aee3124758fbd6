package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/inovacc/binderlaunch/internal/buildspec"
	"github.com/inovacc/binderlaunch/internal/client"
	"github.com/inovacc/binderlaunch/internal/logsink"
	"github.com/inovacc/binderlaunch/internal/progress"
	"github.com/inovacc/binderlaunch/internal/redirect"
)

var (
	// ErrSessionActive is returned when a launch is requested while another one is running
	ErrSessionActive = errors.New("a build session is already running")

	// ErrBuildFailed is returned when the service reports the failed phase
	ErrBuildFailed = errors.New("build failed")

	// ErrStreamIncomplete is returned when the event stream ends before the
	// build reached ready or failed
	ErrStreamIncomplete = errors.New("build event stream ended before the build finished")
)

// Stream is a finite, non-restartable sequence of build events.
// Next returns io.EOF once the stream is exhausted.
type Stream interface {
	Next() (client.Event, error)
	Close() error
}

// Streamer opens the build event stream for a build specification
type Streamer interface {
	Open(ctx context.Context, buildSpec string) (Stream, error)
}

// ClientStreamer adapts a client.Client to a Streamer
type ClientStreamer struct {
	Client *client.Client
}

func (s ClientStreamer) Open(ctx context.Context, buildSpec string) (Stream, error) {
	stream, err := s.Client.Open(ctx, buildSpec)
	if err != nil {
		return nil, err
	}

	return stream, nil
}

// Config holds the collaborators of a Controller
type Config struct {
	Streamer  Streamer
	Sink      logsink.Sink
	Navigator redirect.Navigator
	Observers []Observer
	Logger    *slog.Logger
}

// Controller runs build-and-launch sessions, one at a time
type Controller struct {
	streamer  Streamer
	sink      logsink.Sink
	navigator redirect.Navigator
	observers []Observer
	logger    *slog.Logger

	mu     sync.Mutex
	active *Session
	cancel context.CancelFunc
}

// NewController creates a controller. A nil Sink discards log text and a nil
// Navigator only records the redirect URL.
func NewController(cfg Config) *Controller {
	if cfg.Sink == nil {
		cfg.Sink = logsink.Discard
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Controller{
		streamer:  cfg.Streamer,
		sink:      cfg.Sink,
		navigator: cfg.Navigator,
		observers: cfg.Observers,
		logger:    cfg.Logger,
	}
}

// Active returns the running session, or nil
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.active
}

// Cancel aborts the running session, if any. Launch then returns context.Canceled.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
}

// Launch runs one build-and-launch attempt and blocks until it ends. The
// returned session is non-nil whenever a session was started, even on error.
func (c *Controller) Launch(ctx context.Context, spec buildspec.Spec) (*Session, error) {
	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return nil, ErrSessionActive
	}

	ctx, cancel := context.WithCancel(ctx)
	sess := newSession(spec, c.observers)
	c.active = sess
	c.cancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active = nil
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}()

	logger := c.logger.With("session", sess.ID(), "spec", spec.BuildSpec)
	logger.Info("starting build session")

	sess.apply(func(*record) {})

	err := c.run(ctx, sess, logger)

	sess.apply(func(r *record) {
		r.launching = false
		r.err = err
		r.finished = time.Now()
	})

	if err != nil {
		logger.Info("build session ended", "state", sess.State().String(), "error", err)
	} else {
		logger.Info("build session ended", "state", sess.State().String(), "redirect", sess.RedirectURL() != "")
	}

	return sess, err
}

func (c *Controller) run(ctx context.Context, sess *Session, logger *slog.Logger) error {
	stream, err := c.streamer.Open(ctx, sess.Spec().BuildSpec)
	if err != nil {
		sess.apply(func(r *record) {
			r.logsVisible = true
		})

		if ctx.Err() != nil {
			return ctx.Err()
		}

		return fmt.Errorf("failed to open build stream: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = stream.Close()
	})
	defer stop()

	defer func() {
		_ = stream.Close()
	}()

	for {
		ev, err := stream.Next()
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if errors.Is(err, io.EOF) {
			sess.apply(func(r *record) {
				r.logsVisible = true
			})

			return ErrStreamIncomplete
		}

		if err != nil {
			sess.apply(func(r *record) {
				r.logsVisible = true
			})

			return err
		}

		done, err := c.handle(ctx, sess, stream, ev, logger)
		if done {
			return err
		}
	}
}

// handle applies one event. It reports true once the session reached a
// terminal phase and no more events must be read.
func (c *Controller) handle(ctx context.Context, sess *Session, stream Stream, ev client.Event, logger *slog.Logger) (bool, error) {
	if msg, ok := ev.Text(); ok {
		c.sink.Append(msg)
	} else {
		logger.Debug("build event", "phase", ev.Phase, "event", string(ev.Raw))
	}

	state, ok := progress.Classify(ev.Phase)
	if !ok {
		logger.Debug("unknown phase in response from server", "phase", ev.Phase, "event", string(ev.Raw))
		return false, nil
	}

	switch state {
	case progress.Failed:
		_ = stream.Close()

		sess.apply(func(r *record) {
			r.launching = false
			r.state = progress.Failed
			r.logsVisible = true
		})

		return true, ErrBuildFailed

	case progress.Success:
		sess.apply(func(r *record) {
			r.state = progress.Success
			if ev.ImageName != "" {
				r.imageName = ev.ImageName
			}
		})

		_ = stream.Close()

		return true, c.redirect(ctx, sess, ev, logger)

	default:
		sess.apply(func(r *record) {
			r.state = state
			if ev.ImageName != "" {
				r.imageName = ev.ImageName
			}
		})

		return false, nil
	}
}

func (c *Controller) redirect(ctx context.Context, sess *Session, ev client.Event, logger *slog.Logger) error {
	target, err := redirect.URL(ev.URL, sess.Spec().RuntimeParams.URLPath, ev.Token)
	if err != nil {
		sess.apply(func(r *record) {
			r.logsVisible = true
		})

		return fmt.Errorf("failed to build redirect url: %w", err)
	}

	sess.apply(func(r *record) {
		r.redirectURL = target
	})

	if c.navigator == nil {
		return nil
	}

	logger.Debug("redirecting to running server", "server", ev.URL)

	if err := c.navigator.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to open running server: %w", err)
	}

	return nil
}
