// Package history persists finished and in-flight build sessions: the
// launch record goes to the bbolt store and the build log text to the
// sqlite archive.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/inovacc/binderlaunch/internal/database"
	"github.com/inovacc/binderlaunch/internal/session"
)

// flushLines is how many log lines are buffered before they are written
const flushLines = 200

// Recorder is a session observer and a log sink at the same time. Register
// Observe with the controller before any log text can arrive, so the sink
// knows which session the text belongs to.
//
// Log lines are buffered and written in one transaction when the buffer is
// full, when the stored launch record changes and on Flush. The launch record
// is only written when one of its stored fields changes.
type Recorder struct {
	storage *database.Storage
	archive *database.Database
	baseURL string
	logger  *slog.Logger

	mu        sync.Mutex
	sessionID string
	seq       int64
	pending   []database.LogLine
	last      *database.Launch
}

// NewRecorder creates a recorder. Either store may be nil to skip it.
func NewRecorder(storage *database.Storage, archive *database.Database, baseURL string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		storage: storage,
		archive: archive,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Observe stores the snapshot as a launch record
func (r *Recorder) Observe(snap session.Snapshot) {
	launch := LaunchFromSnapshot(snap, r.baseURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	if snap.ID != r.sessionID {
		r.flushLocked()
		r.sessionID = snap.ID
		r.seq = 0
		r.last = nil
	}

	if r.last != nil && *r.last == *launch {
		return
	}

	r.last = launch

	if r.storage != nil {
		if err := r.storage.UpsertLaunch(launch); err != nil {
			r.logger.Warn("failed to record launch", "session", snap.ID, "error", err)
		}
	}

	r.flushLocked()
}

// Append archives one log message under the current session
func (r *Recorder) Append(message string) {
	if r.archive == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessionID == "" {
		r.logger.Debug("dropping log text outside of a session")
		return
	}

	r.seq++
	r.pending = append(r.pending, database.LogLine{
		SessionID: r.sessionID,
		Seq:       r.seq,
		Message:   message,
		CreatedAt: time.Now(),
	})

	if len(r.pending) >= flushLines {
		r.flushLocked()
	}
}

// Flush writes buffered log lines
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.flushLocked()
}

func (r *Recorder) flushLocked() {
	if r.archive == nil || len(r.pending) == 0 {
		return
	}

	lines := r.pending
	r.pending = nil

	ctx := context.Background()

	err := r.archive.WithTx(ctx, func(q *database.Queries) error {
		for _, line := range lines {
			if err := q.InsertLogLine(ctx, line); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		r.logger.Warn("failed to archive log text", "session", lines[0].SessionID, "lines", len(lines), "error", err)
	}
}

// LaunchFromSnapshot converts a session snapshot into its stored form. The
// redirect URL is stored without its token.
func LaunchFromSnapshot(snap session.Snapshot, baseURL string) *database.Launch {
	launch := &database.Launch{
		ID:         snap.ID,
		BuildSpec:  snap.Spec.BuildSpec,
		URLPath:    snap.Spec.RuntimeParams.URLPath,
		BaseURL:    baseURL,
		State:      snap.State.String(),
		ImageName:  snap.ImageName,
		ServerURL:  StripToken(snap.RedirectURL),
		StartedAt:  snap.Started,
		FinishedAt: snap.Finished,
	}

	if snap.Err != nil {
		launch.Error = snap.Err.Error()
	}

	return launch
}

// StripToken removes the token query parameter from a URL
func StripToken(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	q := u.Query()
	if !q.Has("token") {
		return raw
	}

	q.Del("token")
	u.RawQuery = q.Encode()

	return u.String()
}

// Clear removes every launch record and every archived line
func Clear(ctx context.Context, storage *database.Storage, archive *database.Database) error {
	if err := storage.Clear(); err != nil {
		return fmt.Errorf("failed to clear launch history: %w", err)
	}

	if archive == nil {
		return nil
	}

	return archive.WithTx(ctx, func(q *database.Queries) error {
		return q.DeleteAllLogs(ctx)
	})
}

// Forget removes one launch and its archived lines
func Forget(ctx context.Context, storage *database.Storage, archive *database.Database, id string) error {
	if err := storage.DeleteLaunch(id); err != nil {
		return err
	}

	if archive == nil {
		return nil
	}

	return archive.WithTx(ctx, func(q *database.Queries) error {
		return q.DeleteSessionLogs(ctx, id)
	})
}
