package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// ErrSchemaTooNew is returned when the journal file carries a schema version
// this build does not know, i.e. it was written by a newer autoposter.
var ErrSchemaTooNew = errors.New("run journal schema is newer than this build")

func schemaVersion(conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// migrate applies every migration above the stored user_version, in order.
// A journal stamped with a version above the latest known one is refused
// rather than written with an older schema.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}

	latest := latestVersion()
	if current > latest {
		return fmt.Errorf("%w: file has version %d, latest known is %d", ErrSchemaTooNew, current, latest)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
		current = m.Version
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	log.Printf("Applying journal migration %d: %s", m.Version, m.Description)

	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// The DDL is idempotent, so a crash before the stamp just re-runs it.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("stamping version %d: %w", m.Version, err)
	}
	return nil
}
