package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	applog "tueje/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDirtySchema means an earlier migration stopped halfway and needs a
// manual fix before the backend can open.
var ErrDirtySchema = errors.New("schema is dirty")

// Migrate brings the database behind driver to the latest version found
// in dir of src and returns that version.
func Migrate(src fs.FS, dir, dbName string, driver database.Driver) (uint, error) {
	source, err := iofs.New(src, dir)
	if err != nil {
		return 0, fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, dbName, driver)
	if err != nil {
		return 0, fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("run %s migrations: %w", dbName, err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("read %s schema version: %w", dbName, err)
	}
	if dirty {
		return version, fmt.Errorf("%w: %s at version %d", ErrDirtySchema, dbName, version)
	}
	return version, nil
}

// RunMigrations migrates the SQLite file at dbPath on its own connection.
func RunMigrations(dbPath string) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	version, err := Migrate(migrationsFS, "migrations", "sqlite", driver)
	if err != nil {
		return err
	}
	slog.Debug("Schema up to date",
		applog.FieldComponent, applog.ComponentStorage,
		"backend", "sqlite",
		"version", version)
	return nil
}
