package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	applog "tueje/internal/log"
	"tueje/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations migrates the database at dsn. The pgx driver holds an
// advisory lock while it runs, so concurrent instances wait for each other.
func RunMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("create pgx driver: %w", err)
	}
	version, err := storage.Migrate(migrationsFS, "migrations", "pgx5", driver)
	if err != nil {
		return err
	}
	slog.Debug("Schema up to date",
		applog.FieldComponent, applog.ComponentStorage,
		"backend", "postgres",
		"version", version)
	return nil
}
