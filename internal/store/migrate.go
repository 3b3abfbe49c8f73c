package store

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" //nolint:blankimports // file source driver
)

// migrationsDir is relative to the working directory the binary runs from,
// matching how the migrate command is invoked in deploy (repo root or the
// container's /app).
const migrationsDir = "migrations"

func newMigrator(databaseURL, dir string) (*migrate.Migrate, func() error, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open for migrate: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("store: migrate driver: %w", err)
	}

	path := dir
	if abs, absErr := filepath.Abs(path); absErr == nil {
		path = abs
	}

	m, err := migrate.NewWithDatabaseInstance(fmt.Sprintf("file://%s", path), "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("store: migrate instance: %w", err)
	}

	return m, db.Close, nil
}

// RunMigrations applies every pending migration from the default
// migrations directory.
func RunMigrations(databaseURL string) error {
	return RunMigrationsDir(databaseURL, migrationsDir)
}

// RunMigrationsDir applies every pending migration from dir.
func RunMigrationsDir(databaseURL, dir string) error {
	m, closeDB, err := newMigrator(databaseURL, dir)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("store: run migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migration steps (default 1).
func MigrateDown(databaseURL string, steps int) error {
	m, closeDB, err := newMigrator(databaseURL, migrationsDir)
	if err != nil {
		return err
	}
	defer closeDB()

	if steps <= 0 {
		steps = 1
	}
	if err := m.Steps(-steps); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("store: rollback migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the current applied version, or ok=false if
// nothing has been applied yet.
func MigrationVersion(databaseURL string) (version uint, dirty bool, ok bool, err error) {
	m, closeDB, err := newMigrator(databaseURL, migrationsDir)
	if err != nil {
		return 0, false, false, err
	}
	defer closeDB()

	version, dirty, err = m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, false, nil
		}
		return 0, false, false, fmt.Errorf("store: migration version: %w", err)
	}
	return version, dirty, true, nil
}
