package contenttypes

import (
	"context"
	"strings"

	"github.com/gojango/gojango/pkg/stores"
)

func toRow(ct ContentType) stores.ContentType {
	return stores.ContentType{
		ID:       ct.ID.String(),
		AppLabel: ct.AppLabel,
		Model:    ct.Model,
		Name:     ct.Name,
	}
}

// Persist writes the table to store.
func (t *Table) Persist(ctx context.Context, store stores.Store) (stores.SyncResult, error) {
	all := t.All()
	rows := make([]stores.ContentType, 0, len(all))
	for _, ct := range all {
		rows = append(rows, toRow(ct))
	}
	return store.SyncContentTypes(ctx, rows)
}

// PruneStale deletes the stored content types whose model is not installed
// and returns their natural keys.
func (t *Table) PruneStale(ctx context.Context, store stores.Store) ([]string, error) {
	rows, err := store.ListContentTypes(ctx)
	if err != nil {
		return nil, err
	}

	var stale []string
	for _, row := range rows {
		if _, err := t.registry.GetModel(row.AppLabel, row.Model); err != nil {
			stale = append(stale, row.NaturalKey())
		}
	}
	if len(stale) == 0 {
		return nil, nil
	}
	if _, err := store.DeleteContentTypes(ctx, stale); err != nil {
		return nil, err
	}
	for _, key := range stale {
		label, model, _ := strings.Cut(key, ".")
		t.Remove(label, model)
	}
	return stale, nil
}

