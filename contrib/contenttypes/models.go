package contenttypes

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/gojango/gojango/pkg/apps"
	"github.com/gojango/gojango/pkg/core"
)

// Label is the app label of contenttypes.
const Label = "contenttypes"

// namespace seeds the name-based content type IDs.
var namespace = uuid.MustParse("6f1c0e0a-3d4b-5c2a-9e8f-7a6b5c4d3e2f")

// ContentType identifies one model.
type ContentType struct {
	ID       uuid.UUID `json:"id"`
	AppLabel string    `json:"app_label"`
	Model    string    `json:"model"`
	Name     string    `json:"name"`
}

// NaturalKey returns "app_label.model".
func (ct ContentType) NaturalKey() string {
	return ct.AppLabel + "." + ct.Model
}

// String implements fmt.Stringer.
func (ct ContentType) String() string {
	return ct.Name
}

// newContentType derives the content type of m. IDs are stable across runs.
func newContentType(m *apps.Model) ContentType {
	key := m.AppLabel + "." + m.ModelName()
	return ContentType{
		ID:       uuid.NewSHA1(namespace, []byte(key)),
		AppLabel: m.AppLabel,
		Model:    m.ModelName(),
		Name:     fmt.Sprintf("%s | %s", m.AppLabel, strings.ToLower(m.Name)),
	}
}

// contentTypeModel is the model record of ContentType itself.
var contentTypeModel = &apps.Model{
	Name: "ContentType",
	Type: reflect.TypeOf(ContentType{}),
}

func registerModels() error {
	return apps.Default.RegisterModel(Label, contentTypeModel)
}

// Table holds the content types of one registry.
type Table struct {
	registry *apps.Registry

	mu    sync.RWMutex
	byKey map[string]ContentType
}

var tables sync.Map // *apps.Registry -> *Table

// For returns the content type table of r, creating it on first use.
func For(r *apps.Registry) *Table {
	if v, ok := tables.Load(r); ok {
		return v.(*Table)
	}
	v, _ := tables.LoadOrStore(r, &Table{registry: r, byKey: make(map[string]ContentType)})
	return v.(*Table)
}

// Sync adds a content type for every concrete model of the registry.
func (t *Table) Sync() error {
	models, err := t.registry.GetModels(false, false)
	if err != nil {
		return err
	}
	for _, m := range models {
		t.add(m)
	}
	return nil
}

func (t *Table) add(m *apps.Model) {
	if m.AutoCreated || m.Swapped != "" {
		return
	}
	ct := newContentType(m)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKey[ct.NaturalKey()] = ct
}

// Get returns the content type of the model appLabel.model.
func (t *Table) Get(appLabel, model string) (ContentType, error) {
	key := appLabel + "." + strings.ToLower(model)

	t.mu.RLock()
	defer t.mu.RUnlock()
	ct, ok := t.byKey[key]
	if !ok {
		return ContentType{}, core.NewLookupError(key, "ContentType matching query does not exist: %s.", key)
	}
	return ct, nil
}

// ForModel returns the content type of m.
func (t *Table) ForModel(m *apps.Model) (ContentType, error) {
	return t.Get(m.AppLabel, m.Name)
}

// All returns every content type ordered by natural key.
func (t *Table) All() []ContentType {
	t.mu.RLock()
	out := make([]ContentType, 0, len(t.byKey))
	for _, ct := range t.byKey {
		out = append(out, ct)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].NaturalKey() < out[j].NaturalKey()
	})
	return out
}

// Stale returns the content types whose model is no longer installed.
func (t *Table) Stale() []ContentType {
	var stale []ContentType
	for _, ct := range t.All() {
		if _, err := t.registry.GetModel(ct.AppLabel, ct.Model); err != nil {
			stale = append(stale, ct)
		}
	}
	return stale
}

// Remove drops the content type appLabel.model.
func (t *Table) Remove(appLabel, model string) bool {
	key := appLabel + "." + strings.ToLower(model)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byKey[key]; !ok {
		return false
	}
	delete(t.byKey, key)
	return true
}
