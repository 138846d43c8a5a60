package postgres

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMigrator_PostgresLifecycle(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := store.MigrateDown(ctx, 100); err != nil {
		t.Fatalf("reset migrations: %v", err)
	}

	steps := []struct {
		name        string
		run         func() error
		wantVersion int64
		wantCount   int
	}{
		{"up all", func() error { return store.MigrateUp(ctx, 0) }, 2, 2},
		{"up again is no-op", func() error { return store.MigrateUp(ctx, 0) }, 2, 2},
		{"down one", func() error { return store.MigrateDown(ctx, 1) }, 1, 1},
		{"up one step", func() error { return store.MigrateUp(ctx, 1) }, 2, 2},
		{"down default step", func() error { return store.MigrateDown(ctx, 0) }, 1, 1},
		{"down rest", func() error { return store.MigrateDown(ctx, 5) }, 0, 0},
		{"down on empty", func() error { return store.MigrateDown(ctx, 1) }, 0, 0},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		version, count, err := store.MigrationStatus(ctx)
		if err != nil {
			t.Fatalf("%s: status: %v", step.name, err)
		}
		if version != step.wantVersion || count != step.wantCount {
			t.Fatalf("%s: got version=%d count=%d, want %d/%d",
				step.name, version, count, step.wantVersion, step.wantCount)
		}
	}

	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
}

func TestMigrator_GuardsAndUnsupportedDirection(t *testing.T) {
	var nilStore *Store
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := nilStore.MigrateUp(ctx, 0); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("expected errStoreNotInitialized for MigrateUp, got %v", err)
	}
	if err := nilStore.MigrateDown(ctx, 1); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("expected errStoreNotInitialized for MigrateDown, got %v", err)
	}
	if _, _, err := nilStore.MigrationStatus(ctx); !errors.Is(err, errStoreNotInitialized) {
		t.Fatalf("expected errStoreNotInitialized for MigrationStatus, got %v", err)
	}

	store := &Store{db: nil}
	if err := store.migrate(ctx, migrationDirection("sideways"), 0); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestMigrator_RejectsUnknownDirection(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := store.migrate(ctx, migrationDirection("sideways"), 0); err == nil {
		t.Fatal("expected unsupported direction error")
	}
}
