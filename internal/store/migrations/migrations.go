// Package migrations holds the versioned SQLite schema of the checkpoint store.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var schemaFS embed.FS

var (
	// ErrUnversioned means the database has never been migrated.
	ErrUnversioned = errors.New("store has no schema version")
	// ErrOutdated means migrations are pending.
	ErrOutdated = errors.New("store schema is out of date")
	// ErrTooNew means the database was migrated by a newer binary.
	ErrTooNew = errors.New("store schema is newer than this binary")
	// ErrDirty means an earlier migration stopped half way.
	ErrDirty = errors.New("store schema is dirty")
)

// Status describes a database's schema version against the embedded schema.
type Status struct {
	Version uint
	Latest  uint
	Dirty   bool
}

// Err maps s to one of the package errors, or nil when the schema is current.
func (s Status) Err() error {
	switch {
	case s.Dirty:
		return fmt.Errorf("%w at version %d", ErrDirty, s.Version)
	case s.Version == 0:
		return ErrUnversioned
	case s.Version < s.Latest:
		return fmt.Errorf("%w: version %d, latest %d", ErrOutdated, s.Version, s.Latest)
	case s.Version > s.Latest:
		return fmt.Errorf("%w: version %d, latest %d", ErrTooNew, s.Version, s.Latest)
	}
	return nil
}

// MigrateUp brings db to the latest schema. An up-to-date db is left alone.
func MigrateUp(db *sql.DB) error {
	m, err := open(db)
	if err != nil {
		return err
	}
	// Closing m would close db, which belongs to the caller.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating store: %w", err)
	}
	return nil
}

// ReadStatus reports the schema version of db. A db without a version
// table yields Version 0.
func ReadStatus(db *sql.DB) (Status, error) {
	latest, err := LatestVersion()
	if err != nil {
		return Status{}, err
	}
	m, err := open(db)
	if err != nil {
		return Status{}, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Status{Latest: latest}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("reading schema version: %w", err)
	}
	return Status{Version: v, Latest: latest, Dirty: dirty}, nil
}

// CheckStatus returns nil only when db is exactly at LatestVersion.
func CheckStatus(db *sql.DB) error {
	st, err := ReadStatus(db)
	if err != nil {
		return err
	}
	return st.Err()
}

// LatestVersion is the highest migration embedded in the binary.
func LatestVersion() (uint, error) {
	src, err := iofs.New(schemaFS, "files")
	if err != nil {
		return 0, fmt.Errorf("loading embedded schema: %w", err)
	}
	defer src.Close()
	return highest(src)
}

func open(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, "files")
	if err != nil {
		return nil, fmt.Errorf("loading embedded schema: %w", err)
	}
	drv, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("opening sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", drv)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("preparing migrations: %w", err)
	}
	return m, nil
}

func highest(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
