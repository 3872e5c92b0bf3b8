package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gojango/gojango/pkg/core"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: MemoryPath})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "db.sqlite3")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Fatal("expected health check to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// Applying migrations twice is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestNewSQLiteStore_RequiresPath(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestSyncContentTypes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	types := []ContentType{
		{ID: "a", AppLabel: "blog", Model: "post", Name: "blog | post"},
		{ID: "b", AppLabel: "auth", Model: "user", Name: "auth | user"},
	}
	result, err := store.SyncContentTypes(ctx, types)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Created != 2 || result.Updated != 0 {
		t.Errorf("expected 2 created, got %+v", result)
	}

	types[0].Name = "blog | article post"
	result, err = store.SyncContentTypes(ctx, types)
	if err != nil {
		t.Fatalf("second sync failed: %v", err)
	}
	if result.Created != 0 || result.Updated != 1 {
		t.Errorf("expected 1 updated, got %+v", result)
	}

	all, err := store.ListContentTypes(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 content types, got %d", len(all))
	}
	if all[0].NaturalKey() != "auth.user" || all[1].NaturalKey() != "blog.post" {
		t.Errorf("unexpected order: %s, %s", all[0].NaturalKey(), all[1].NaturalKey())
	}
	if !all[1].CreatedAt.Equal(fixed) {
		t.Errorf("expected created_at %v, got %v", fixed, all[1].CreatedAt)
	}

	ct, err := store.GetContentType(ctx, "blog", "Post")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if ct.ID != "a" || ct.Name != "blog | article post" {
		t.Errorf("unexpected row: %+v", ct)
	}
}

func TestGetContentType_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetContentType(context.Background(), "blog", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteContentTypes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.SyncContentTypes(ctx, []ContentType{
		{ID: "a", AppLabel: "blog", Model: "post", Name: "blog | post"},
		{ID: "b", AppLabel: "blog", Model: "tag", Name: "blog | tag"},
	}); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	n, err := store.DeleteContentTypes(ctx, []string{"blog.post", "blog.missing"})
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}

	if _, err := store.DeleteContentTypes(ctx, []string{"nodot"}); err == nil {
		t.Error("expected an error for a malformed key")
	}

	all, err := store.ListContentTypes(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 1 || all[0].Model != "tag" {
		t.Errorf("unexpected remaining rows: %+v", all)
	}
}

func TestFromSettings(t *testing.T) {
	tests := []struct {
		name      string
		databases map[string]any
		wantErr   bool
	}{
		{
			name:      "sqlite",
			databases: map[string]any{"default": map[string]any{"ENGINE": "sqlite", "NAME": "db.sqlite3"}},
		},
		{
			name:      "engine defaults to sqlite",
			databases: map[string]any{"default": map[string]any{"NAME": "db.sqlite3"}},
		},
		{
			name:      "missing alias",
			databases: map[string]any{},
			wantErr:   true,
		},
		{
			name:      "unknown engine",
			databases: map[string]any{"default": map[string]any{"ENGINE": "postgresql", "NAME": "x"}},
			wantErr:   true,
		},
		{
			name:      "missing name",
			databases: map[string]any{"default": map[string]any{"ENGINE": "sqlite"}},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := FromSettings("default", tt.databases)
			if tt.wantErr {
				if !core.IsConfiguration(err) {
					t.Fatalf("expected a configuration error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store.cfg.Path != "db.sqlite3" {
				t.Errorf("unexpected path %q", store.cfg.Path)
			}
		})
	}
}
