package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/bilal/devstats/pkg/snapshot"
)

// SQLiteStore keeps the three durable keys in a single key/value table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and prepares the schema.
// Use ":memory:" for a throwaway store.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// A single connection serializes the read-modify-write paths and keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA journal_mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA busy_timeout: %w", err)
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (State, error) {
	const q = `SELECT key, value FROM preferences WHERE key IN (?, ?, ?)`
	rows, err := s.db.QueryContext(ctx, q, KeyLastSubmitTimestamp, KeyLastBatchID, KeyLastSnapshot)
	if err != nil {
		return State{}, fmt.Errorf("query preferences: %w", err)
	}
	defer rows.Close()

	var st State
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return State{}, fmt.Errorf("scan preference: %w", err)
		}
		switch key {
		case KeyLastSubmitTimestamp:
			secs, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return State{}, fmt.Errorf("parse %s: %w", key, err)
			}
			st.LastSubmit = FromEpochSeconds(secs)
		case KeyLastBatchID:
			st.LastBatchID = value
		case KeyLastSnapshot:
			var snap snapshot.Snapshot
			if err := json.Unmarshal([]byte(value), &snap); err != nil {
				return State{}, fmt.Errorf("decode %s: %w", key, err)
			}
			st.LastSnapshot = snap
		}
	}
	if err := rows.Err(); err != nil {
		return State{}, fmt.Errorf("iterate preferences: %w", err)
	}
	return st, nil
}

func (s *SQLiteStore) SeedLastSubmit(ctx context.Context, t time.Time) (time.Time, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key = ?`, KeyLastSubmitTimestamp).Scan(&value)
	switch {
	case err == nil:
		secs, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return time.Time{}, false, fmt.Errorf("parse %s: %w", KeyLastSubmitTimestamp, perr)
		}
		if secs != 0 {
			return FromEpochSeconds(secs), false, nil
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return time.Time{}, false, fmt.Errorf("select %s: %w", KeyLastSubmitTimestamp, err)
	}

	if err := upsert(ctx, tx, KeyLastSubmitTimestamp, formatSeconds(t)); err != nil {
		return time.Time{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return time.Time{}, false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return t, true, nil
}

func (s *SQLiteStore) SetLastSubmit(ctx context.Context, t time.Time) error {
	return upsert(ctx, s.db, KeyLastSubmitTimestamp, formatSeconds(t))
}

func (s *SQLiteStore) CommitSuccess(ctx context.Context, c Commit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := upsert(ctx, tx, KeyLastSubmitTimestamp, formatSeconds(c.Timestamp)); err != nil {
		return err
	}
	if c.BatchID != "" {
		if err := upsert(ctx, tx, KeyLastBatchID, c.BatchID); err != nil {
			return err
		}
	}
	if c.Snapshot != nil {
		data, err := json.Marshal(c.Snapshot)
		if err != nil {
			return fmt.Errorf("encode %s: %w", KeyLastSnapshot, err)
		}
		if err := upsert(ctx, tx, KeyLastSnapshot, string(data)); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, key, value string) error {
	const q = `
		INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`
	if _, err := db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func formatSeconds(t time.Time) string {
	return strconv.FormatFloat(ToEpochSeconds(t), 'f', -1, 64)
}
