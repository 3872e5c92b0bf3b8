package apps

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Model describes a model type contributed by an app unit.
type Model struct {
	// Name is the model name as declared, e.g. "ContentType".
	Name string

	// AppLabel is the label of the app unit the model belongs to.
	AppLabel string

	// AutoCreated marks models generated by the framework, such as
	// intermediate tables.
	AutoCreated bool

	// Swapped names the model that replaces this one, empty if not swapped.
	Swapped string

	// Type is the Go type backing the model, if any.
	Type reflect.Type
}

// ModelName returns the lower-cased model name used as lookup key.
func (m *Model) ModelName() string {
	return strings.ToLower(m.Name)
}

// String returns "label.Name".
func (m *Model) String() string {
	return fmt.Sprintf("%s.%s", m.AppLabel, m.Name)
}

func (m *Model) sameAs(other *Model) bool {
	return m.Name == other.Name && m.AppLabel == other.AppLabel && m.Type == other.Type
}

// ModelTable maps lower-cased model names to models, in registration order.
// Tables are append-only.
type ModelTable struct {
	mu     sync.RWMutex
	order  []string
	models map[string]*Model
}

func newModelTable() *ModelTable {
	return &ModelTable{models: make(map[string]*Model)}
}

// Get returns the model registered under name, case-insensitively.
func (t *ModelTable) Get(name string) (*Model, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.models[strings.ToLower(name)]
	return m, ok
}

// All returns the models in registration order.
func (t *ModelTable) All() []*Model {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Model, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, t.models[name])
	}
	return out
}

// Len returns the number of models in the table.
func (t *ModelTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// add stores m unless the name is taken. It returns the existing model
// when there is one.
func (t *ModelTable) add(m *Model) (*Model, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	name := m.ModelName()
	if existing, ok := t.models[name]; ok {
		return existing, false
	}
	t.models[name] = m
	t.order = append(t.order, name)
	return nil, true
}

func filterModels(models []*Model, includeAutoCreated, includeSwapped bool) []*Model {
	out := make([]*Model, 0, len(models))
	for _, m := range models {
		if m.AutoCreated && !includeAutoCreated {
			continue
		}
		if m.Swapped != "" && !includeSwapped {
			continue
		}
		out = append(out, m)
	}
	return out
}
