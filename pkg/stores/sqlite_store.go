package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/gojango/gojango/pkg/core"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
	now func() time.Time
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a store. Call Init before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg, now: time.Now}, nil
}

// FromSettings builds a store from a DATABASES alias entry.
func FromSettings(alias string, databases map[string]any) (*SQLiteStore, error) {
	entry, ok := databases[alias].(map[string]any)
	if !ok {
		return nil, core.NewConfigurationError("The connection '%s' doesn't exist.", alias).WithKey("DATABASES")
	}
	if engine, _ := entry["ENGINE"].(string); engine != "" && engine != "sqlite" {
		return nil, core.NewConfigurationError(
			"'%s' isn't an available database backend. Try using 'sqlite'.", engine).WithKey("DATABASES")
	}
	name, _ := entry["NAME"].(string)
	if name == "" {
		return nil, core.NewConfigurationError(
			"settings.DATABASES is improperly configured. Please supply the NAME value.").WithKey("DATABASES")
	}
	return NewSQLiteStore(Config{Path: name})
}

func (s *SQLiteStore) dsn() string {
	if s.cfg.Path == MemoryPath {
		return MemoryPath + "?_pragma=foreign_keys(1)"
	}
	return "file:" + s.cfg.Path +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
}

// Init opens the database connection.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// HealthCheck pings the database.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

// Migrate runs the embedded migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// SyncContentTypes upserts types in one transaction.
func (s *SQLiteStore) SyncContentTypes(ctx context.Context, types []ContentType) (SyncResult, error) {
	var result SyncResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().Unix()
	for _, ct := range types {
		var name string
		err := tx.QueryRowContext(ctx,
			`SELECT name FROM content_types WHERE app_label = ? AND model = ?`,
			ct.AppLabel, ct.Model,
		).Scan(&name)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO content_types (id, app_label, model, name, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, ct.ID, ct.AppLabel, ct.Model, ct.Name, now, now); err != nil {
				return result, fmt.Errorf("failed to create content type %s: %w", ct.NaturalKey(), err)
			}
			result.Created++
		case err != nil:
			return result, fmt.Errorf("failed to get content type %s: %w", ct.NaturalKey(), err)
		case name != ct.Name:
			if _, err := tx.ExecContext(ctx,
				`UPDATE content_types SET name = ?, updated_at = ? WHERE app_label = ? AND model = ?`,
				ct.Name, now, ct.AppLabel, ct.Model,
			); err != nil {
				return result, fmt.Errorf("failed to update content type %s: %w", ct.NaturalKey(), err)
			}
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return SyncResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

const selectContentTypes = `
	SELECT id, app_label, model, name, created_at, updated_at
	FROM content_types
`

type scanner interface {
	Scan(dest ...any) error
}

func scanContentType(row scanner) (*ContentType, error) {
	var (
		ct               ContentType
		created, updated int64
	)
	if err := row.Scan(&ct.ID, &ct.AppLabel, &ct.Model, &ct.Name, &created, &updated); err != nil {
		return nil, err
	}
	ct.CreatedAt = time.Unix(created, 0).UTC()
	ct.UpdatedAt = time.Unix(updated, 0).UTC()
	return &ct, nil
}

// ListContentTypes returns every stored content type.
func (s *SQLiteStore) ListContentTypes(ctx context.Context) ([]ContentType, error) {
	rows, err := s.db.QueryContext(ctx, selectContentTypes+` ORDER BY app_label, model`)
	if err != nil {
		return nil, fmt.Errorf("failed to list content types: %w", err)
	}
	defer rows.Close()

	var out []ContentType
	for rows.Next() {
		ct, err := scanContentType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content type: %w", err)
		}
		out = append(out, *ct)
	}
	return out, rows.Err()
}

// GetContentType returns one stored content type.
func (s *SQLiteStore) GetContentType(ctx context.Context, appLabel, model string) (*ContentType, error) {
	ct, err := scanContentType(s.db.QueryRowContext(ctx,
		selectContentTypes+` WHERE app_label = ? AND model = ?`, appLabel, strings.ToLower(model)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content type %s.%s: %w", appLabel, model, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content type: %w", err)
	}
	return ct, nil
}

// DeleteContentTypes removes rows by natural key.
func (s *SQLiteStore) DeleteContentTypes(ctx context.Context, keys []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleted := 0
	for _, key := range keys {
		label, model, ok := strings.Cut(key, ".")
		if !ok {
			return 0, fmt.Errorf("content type key %q must be of the form 'app_label.model'", key)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM content_types WHERE app_label = ? AND model = ?`, label, model)
		if err != nil {
			return 0, fmt.Errorf("failed to delete content type %s: %w", key, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		deleted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return deleted, nil
}
