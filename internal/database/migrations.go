package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one numbered schema script, e.g. 001_init.sql
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationManager applies the schema scripts compiled into the binary
type MigrationManager struct {
	db    *sql.DB
	files fs.FS
	dir   string
}

// NewMigrationManager creates a manager over the embedded scripts
func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db, files: migrationFiles, dir: "migrations"}
}

// RunMigrations applies every script not yet recorded in schema_migrations,
// in version order
func (m *MigrationManager) RunMigrations() error {
	if _, err := m.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := m.applied()
	if err != nil {
		return err
	}
	pending, err := m.Load()
	if err != nil {
		return err
	}

	n := 0
	for _, mig := range pending {
		if applied[mig.Version] {
			continue
		}
		if err := Transaction(m.db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(mig.SQL); err != nil {
				return fmt.Errorf("migration %s: %w", mig.Name, err)
			}
			_, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name)
			return err
		}); err != nil {
			return err
		}
		log.Printf("[DB] applied %s", mig.Name)
		n++
	}
	if n > 0 {
		log.Printf("[DB] schema at version %d", pending[len(pending)-1].Version)
	}
	return nil
}

func (m *MigrationManager) applied() (map[int]bool, error) {
	rows, err := m.db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// Load returns the embedded scripts sorted by version. Files whose name does
// not start with a number are ignored.
func (m *MigrationManager) Load() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var out []Migration
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".sql")
		if e.IsDir() || name == e.Name() {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.Atoi(prefix)
		if err != nil {
			log.Printf("[DB] ignoring %s: no version prefix", e.Name())
			continue
		}
		body, err := fs.ReadFile(m.files, path.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(body)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
