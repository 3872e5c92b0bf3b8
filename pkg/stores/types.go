package stores

import (
	"context"
	"time"
)

// ContentType is the stored row of one model's content type.
type ContentType struct {
	ID        string    `json:"id"`
	AppLabel  string    `json:"app_label"`
	Model     string    `json:"model"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NaturalKey returns "app_label.model".
func (ct *ContentType) NaturalKey() string {
	return ct.AppLabel + "." + ct.Model
}

// SyncResult counts the rows touched by SyncContentTypes.
type SyncResult struct {
	Created int
	Updated int
}

// Store is the persistence interface for content types.
type Store interface {
	// Init opens the database connection.
	Init(ctx context.Context) error

	// Close releases the database connection.
	Close() error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// HealthCheck verifies the database is reachable.
	HealthCheck(ctx context.Context) error

	// SyncContentTypes inserts missing rows and refreshes changed names,
	// keyed by natural key.
	SyncContentTypes(ctx context.Context, types []ContentType) (SyncResult, error)

	// ListContentTypes returns every row ordered by natural key.
	ListContentTypes(ctx context.Context) ([]ContentType, error)

	// GetContentType returns the row of appLabel.model.
	GetContentType(ctx context.Context, appLabel, model string) (*ContentType, error)

	// DeleteContentTypes removes the rows with the given natural keys and
	// returns how many existed.
	DeleteContentTypes(ctx context.Context, keys []string) (int, error)
}

var _ Store = (*SQLiteStore)(nil)
