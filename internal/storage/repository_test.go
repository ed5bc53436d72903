package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4/database/sqlite"

	"tueje/internal/kv"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "tueje.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepositoryRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	err := repo.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Put("tueje_habits", []byte(`[{"id":"a"}]`)); err != nil {
			return err
		}
		return tx.Put("tueje_habits", []byte(`[{"id":"b"}]`))
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	err = repo.View(ctx, func(r kv.Reader) error {
		v, ok, err := r.Get("tueje_habits")
		if err != nil {
			return err
		}
		if !ok || string(v) != `[{"id":"b"}]` {
			t.Errorf("unexpected value %q ok=%v", v, ok)
		}
		_, ok, err = r.Get("missing")
		if ok {
			t.Error("missing key reported present")
		}
		return err
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestSQLiteRepositoryRollback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_ = repo.Update(ctx, func(tx kv.Tx) error { return tx.Put("k", []byte("v1")) })

	boom := errors.New("boom")
	err := repo.Update(ctx, func(tx kv.Tx) error {
		if err := tx.Delete("k"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = repo.View(ctx, func(r kv.Reader) error {
		v, ok, _ := r.Get("k")
		if !ok || string(v) != "v1" {
			t.Errorf("rollback did not restore value: %q ok=%v", v, ok)
		}
		return nil
	})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tueje.db")
	for i := 0; i < 2; i++ {
		repo, err := NewSQLiteRepository(path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		repo.Close()
	}
}

func TestMigrateReportsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tueje.db")
	for i := 0; i < 2; i++ {
		db, err := sql.Open("sqlite", path)
		if err != nil {
			t.Fatal(err)
		}
		driver, err := sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			t.Fatal(err)
		}
		version, err := Migrate(migrationsFS, "migrations", "sqlite", driver)
		db.Close()
		if err != nil {
			t.Fatalf("Migrate run %d: %v", i, err)
		}
		if version != 1 {
			t.Errorf("run %d version = %d, want 1", i, version)
		}
	}
}
