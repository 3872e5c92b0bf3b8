// Package signals provides synchronous, in-process notifications between the
// registry, the settings layer and app units.
package signals

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a single signal delivery.
type Event struct {
	// ID is the unique identifier for this delivery.
	ID string `json:"id"`

	// Timestamp is when the signal was sent.
	Timestamp time.Time `json:"timestamp"`

	// Signal is the name of the signal that was sent.
	Signal string `json:"signal"`

	// Sender identifies where the signal originated.
	Sender string `json:"sender"`

	// Data contains signal-specific values.
	Data map[string]any `json:"data,omitempty"`
}

// Receiver handles a delivered event.
type Receiver func(ctx context.Context, event Event) error

// Filter determines if a receiver should see an event.
type Filter func(event Event) bool

type receiverEntry struct {
	id       string
	receiver Receiver
	filter   Filter
}

// Signal is a named dispatcher. Receivers run in connection order on the
// sending goroutine.
type Signal struct {
	name      string
	mu        sync.RWMutex
	receivers []receiverEntry
}

// New creates a signal with the given name.
func New(name string) *Signal {
	return &Signal{name: name}
}

// Name returns the signal name.
func (s *Signal) Name() string {
	return s.name
}

// Connect registers a receiver under id. Connecting an id twice replaces
// the earlier receiver in place.
func (s *Signal) Connect(id string, receiver Receiver, filter Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := receiverEntry{id: id, receiver: receiver, filter: filter}
	for i, r := range s.receivers {
		if r.id == id {
			s.receivers[i] = entry
			return
		}
	}
	s.receivers = append(s.receivers, entry)
}

// Disconnect removes the receiver registered under id.
func (s *Signal) Disconnect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.receivers {
		if r.id == id {
			s.receivers = append(s.receivers[:i], s.receivers[i+1:]...)
			return true
		}
	}
	return false
}

// HasReceivers reports whether anything is connected.
func (s *Signal) HasReceivers() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receivers) > 0
}

// Send delivers an event to every matching receiver. All receivers run even
// if some fail; their errors are joined.
func (s *Signal) Send(ctx context.Context, sender string, data map[string]any) error {
	s.mu.RLock()
	receivers := make([]receiverEntry, len(s.receivers))
	copy(receivers, s.receivers)
	s.mu.RUnlock()

	if len(receivers) == 0 {
		return nil
	}

	event := Event{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Signal:    s.name,
		Sender:    sender,
		Data:      data,
	}

	var errs []error
	for _, entry := range receivers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		if err := entry.receiver(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Signals sent by the framework.
var (
	// SettingChanged is sent when a setting is overridden or deleted at
	// runtime. Data: "setting", "value", "enter".
	SettingChanged = New("setting_changed")

	// ModelRegistered is sent whenever a model is added to the registry.
	// Data: "app_label", "model".
	ModelRegistered = New("model_registered")

	// AppReady is sent after an app unit's ready hook ran. Data: "app_label".
	AppReady = New("app_ready")

	// RegistryReady is sent once a populate run completed. Data: "run_id", "apps".
	RegistryReady = New("registry_ready")
)

// FilterBySender creates a filter that only allows events from sender.
func FilterBySender(sender string) Filter {
	return func(event Event) bool {
		return event.Sender == sender
	}
}

// FilterByData creates a filter that only allows events whose data key
// equals value.
func FilterByData(key string, value any) Filter {
	return func(event Event) bool {
		v, ok := event.Data[key]
		return ok && v == value
	}
}
