package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var embedded embed.FS

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationManager manages database migrations
type MigrationManager struct {
	db  *sql.DB
	fs  fs.FS
	dir string
	log logrus.FieldLogger
}

// NewMigrationManager creates a migration manager over the built in schema
func NewMigrationManager(db *sql.DB, log logrus.FieldLogger) *MigrationManager {
	return &MigrationManager{db: db, fs: embedded, dir: "migrations", log: log}
}

// InitMigrationsTable creates the migrations tracking table
func (m *MigrationManager) InitMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := m.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// LoadMigrations loads the NNN_name.sql files, sorted by version
func (m *MigrationManager) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fs, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}

		var version int
		var name string
		if _, err := fmt.Sscanf(e.Name(), "%d_%s", &version, &name); err != nil {
			m.log.WithField("file", e.Name()).Warn("skipping migration file with invalid name")
			continue
		}

		content, err := fs.ReadFile(m.fs, path.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", e.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(e.Name(), ".sql"),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ApplyMigration applies a single migration
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	err := Transaction(ctx, m.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO migrations (version, name) VALUES (?, ?)", migration.Version, migration.Name); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	m.log.WithFields(logrus.Fields{"version": migration.Version, "name": migration.Name}).Info("applied migration")
	return nil
}

// RunMigrations runs all pending migrations
func (m *MigrationManager) RunMigrations(ctx context.Context) error {
	if err := m.InitMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			m.log.WithField("version", migration.Version).Debug("skipping applied migration")
			continue
		}
		if err := m.ApplyMigration(ctx, migration); err != nil {
			return err
		}
	}
	return nil
}
