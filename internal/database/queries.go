package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LogLine is one archived build log message
type LogLine struct {
	SessionID string
	Seq       int64
	Message   string
	CreatedAt time.Time
}

// Queries holds the log archive statements
type Queries struct {
	db DBTX
}

func newQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a copy of q bound to tx
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const insertLogLine = `INSERT INTO build_logs (session_id, seq, message, created_at) VALUES (?, ?, ?, ?)`

// InsertLogLine appends one message to the archive
func (q *Queries) InsertLogLine(ctx context.Context, line LogLine) error {
	if _, err := q.db.ExecContext(ctx, insertLogLine, line.SessionID, line.Seq, line.Message, line.CreatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to insert log line: %w", err)
	}

	return nil
}

const listLogLines = `SELECT session_id, seq, message, created_at FROM build_logs WHERE session_id = ? ORDER BY seq`

// ListLogLines returns the lines of a session in arrival order
func (q *Queries) ListLogLines(ctx context.Context, sessionID string) ([]LogLine, error) {
	rows, err := q.db.QueryContext(ctx, listLogLines, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log lines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var lines []LogLine

	for rows.Next() {
		var (
			line LogLine
			ts   int64
		)

		if err := rows.Scan(&line.SessionID, &line.Seq, &line.Message, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan log line: %w", err)
		}

		line.CreatedAt = time.Unix(0, ts)
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log lines: %w", err)
	}

	return lines, nil
}

const countLogLines = `SELECT COUNT(*) FROM build_logs WHERE session_id = ?`

// CountLogLines returns how many lines are archived for a session
func (q *Queries) CountLogLines(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, countLogLines, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count log lines: %w", err)
	}

	return n, nil
}

const deleteSessionLogs = `DELETE FROM build_logs WHERE session_id = ?`

// DeleteSessionLogs removes the lines of one session
func (q *Queries) DeleteSessionLogs(ctx context.Context, sessionID string) error {
	if _, err := q.db.ExecContext(ctx, deleteSessionLogs, sessionID); err != nil {
		return fmt.Errorf("failed to delete session logs: %w", err)
	}

	return nil
}

const deleteAllLogs = `DELETE FROM build_logs`

// DeleteAllLogs empties the archive
func (q *Queries) DeleteAllLogs(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, deleteAllLogs); err != nil {
		return fmt.Errorf("failed to delete logs: %w", err)
	}

	return nil
}
