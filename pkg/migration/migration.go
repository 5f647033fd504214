// Package migration applies versioned SQL migrations from an embedded
// filesystem. Files are named NNN_description.sql and applied in
// ascending order; applied versions are tracked in schema_migrations.
package migration

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

type Migration struct {
	Version int
	Name    string
	SQL     string
}

type Runner struct {
	db      *sql.DB
	source  fs.FS
	baseDir string
}

func NewRunner(db *sql.DB, source fs.FS, baseDir string) *Runner {
	return &Runner{db: db, source: source, baseDir: baseDir}
}

// Run applies every migration newer than the current schema version.
// Each migration runs in its own transaction.
func (r *Runner) Run() error {
	if err := r.ensureSchemaTable(); err != nil {
		return fmt.Errorf("failed to create schema table: %w", err)
	}

	migrations, err := r.load()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	current, err := r.currentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

func (r *Runner) ensureSchemaTable() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (r *Runner) currentVersion() (int, error) {
	var version sql.NullInt64
	err := r.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (r *Runner) load() ([]Migration, error) {
	entries, err := fs.ReadDir(r.source, r.baseDir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		idx := strings.Index(name, "_")
		if idx <= 0 {
			return nil, fmt.Errorf("migration %q has no version prefix", name)
		}
		version, err := strconv.Atoi(name[:idx])
		if err != nil {
			return nil, fmt.Errorf("migration %q has no numeric version: %w", name, err)
		}

		body, err := fs.ReadFile(r.source, r.baseDir+"/"+name)
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(name[idx+1:], ".sql"),
			SQL:     string(body),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return nil, fmt.Errorf("duplicate migration version %d", migrations[i].Version)
		}
	}
	return migrations, nil
}

func (r *Runner) apply(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(m.SQL); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
