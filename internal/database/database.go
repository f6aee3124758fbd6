package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

//go:embed schemas/001_initial.sql
var schemaSQL string

// Database is the sqlite archive of build log lines
type Database struct {
	db      *sql.DB
	queries *Queries
}

// NewDatabase opens the archive at path and runs schema setup
func NewDatabase(ctx context.Context, path string) (*Database, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{
		db:      db,
		queries: newQueries(db),
	}

	if err := database.setupSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Queries returns the statements bound to the connection pool
func (d *Database) Queries() *Queries {
	return d.queries
}

// WithTx executes a function within a database transaction
func (d *Database) WithTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	qtx := d.queries.WithTx(tx)

	committed := false

	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				slog.Warn("failed to rollback transaction", "error", err)
			}
		}
	}()

	if err := fn(qtx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	committed = true

	return nil
}

func (d *Database) setupSchema(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}
