package store

import (
	"context"
	"database/sql"
	"fmt"

	"guardian/internal/guardian"
	"guardian/internal/store/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore keeps both collections in one SQLite database and replaces
// them in a single transaction, so checkpoints and sessions never drift apart.
// Insertion order is kept in an ordinal column.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens (creating if needed) the database at path and brings
// its schema up to date. path can be ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrations.CheckStatus(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// OpenConnection opens and configures a SQLite connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: keeps ":memory:" databases alive across calls and
	// serializes writers within the process.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

func (s *SQLiteStore) Load() ([]guardian.Checkpoint, []guardian.Session, error) {
	ctx := context.Background()

	checkpoints := []guardian.Checkpoint{}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, timestamp, commit_hash, session_id, file_count FROM checkpoints ORDER BY ordinal`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying checkpoints: %w", err)
	}
	for rows.Next() {
		var c guardian.Checkpoint
		var hash sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Timestamp, &hash, &c.SessionID, &c.FileCount); err != nil {
			rows.Close()
			return nil, nil, &guardian.ParseError{Path: s.path, Err: err}
		}
		if hash.Valid {
			h := hash.String
			c.CommitHash = &h
		}
		checkpoints = append(checkpoints, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, nil, fmt.Errorf("reading checkpoints: %w", err)
	}
	rows.Close()

	sessions := []guardian.Session{}
	rows, err = s.db.QueryContext(ctx,
		`SELECT id, name, start_time, end_time FROM sessions ORDER BY ordinal`)
	if err != nil {
		return nil, nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ss guardian.Session
		var end sql.NullInt64
		if err := rows.Scan(&ss.ID, &ss.Name, &ss.StartTime, &end); err != nil {
			return nil, nil, &guardian.ParseError{Path: s.path, Err: err}
		}
		if end.Valid {
			e := end.Int64
			ss.EndTime = &e
		}
		sessions = append(sessions, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("reading sessions: %w", err)
	}

	return checkpoints, sessions, nil
}

func (s *SQLiteStore) Save(checkpoints []guardian.Checkpoint, sessions []guardian.Session) error {
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints`); err != nil {
		return fmt.Errorf("clearing checkpoints: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("clearing sessions: %w", err)
	}

	for i, ss := range sessions {
		var end sql.NullInt64
		if ss.EndTime != nil {
			end = sql.NullInt64{Int64: *ss.EndTime, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (ordinal, id, name, start_time, end_time) VALUES (?, ?, ?, ?, ?)`,
			i, ss.ID, ss.Name, ss.StartTime, end)
		if err != nil {
			return fmt.Errorf("inserting session %s: %w", ss.ID, err)
		}
	}

	for i, c := range checkpoints {
		var hash sql.NullString
		if c.CommitHash != nil {
			hash = sql.NullString{String: *c.CommitHash, Valid: true}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO checkpoints (ordinal, id, name, timestamp, commit_hash, session_id, file_count) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, c.ID, c.Name, c.Timestamp, hash, c.SessionID, c.FileCount)
		if err != nil {
			return fmt.Errorf("inserting checkpoint %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ guardian.Store = (*SQLiteStore)(nil)
