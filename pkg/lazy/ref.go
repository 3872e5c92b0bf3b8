// Package lazy provides a deferred, materialize-once value.
package lazy

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoSetup is returned when a Ref without a setup hook is read before Set.
var ErrNoSetup = errors.New("lazy: Ref has no setup hook")

// Cloner is implemented by values that know how to copy themselves.
type Cloner[T any] interface {
	Clone() T
}

// Ref holds nothing until first use, then materializes its value exactly once
// through a setup hook. A failed setup leaves the Ref unset so that a later
// call can retry.
type Ref[T any] struct {
	mu     sync.Mutex
	set    atomic.Bool
	value  T
	setup  func() (T, error)
	setups atomic.Int64
}

// New creates an unset Ref materialized by setup.
func New[T any](setup func() (T, error)) *Ref[T] {
	return &Ref[T]{setup: setup}
}

// Of creates an already-materialized Ref.
func Of[T any](value T) *Ref[T] {
	r := &Ref[T]{}
	r.Set(value)
	return r
}

// Get returns the wrapped value, materializing it on first use.
func (r *Ref[T]) Get() (T, error) {
	return r.GetWith(r.setup)
}

// GetWith is Get with an alternative setup hook for this call. The hook only
// runs if the Ref is still unset.
func (r *Ref[T]) GetWith(setup func() (T, error)) (T, error) {
	if r.set.Load() {
		return r.value, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.set.Load() {
		return r.value, nil
	}
	if setup == nil {
		var zero T
		return zero, ErrNoSetup
	}

	r.setups.Add(1)
	v, err := setup()
	if err != nil {
		var zero T
		return zero, err
	}
	r.value = v
	r.set.Store(true)
	return v, nil
}

// MustGet is Get that panics on error.
func (r *Ref[T]) MustGet() T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Set stores the wrapped value directly, bypassing setup.
func (r *Ref[T]) Set(value T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.value = value
	r.set.Store(true)
}

// Reset returns the Ref to the unset state. It must not race with readers.
func (r *Ref[T]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	r.value = zero
	r.set.Store(false)
}

// Materialized reports whether the value has been resolved.
func (r *Ref[T]) Materialized() bool {
	return r.set.Load()
}

// Setups returns how many times a setup hook has been invoked.
func (r *Ref[T]) Setups() int64 {
	return r.setups.Load()
}

// Copy returns an independent Ref. An unset Ref copies to a fresh unset Ref
// sharing the setup hook; a materialized Ref copies its value, through Clone
// when the value implements Cloner.
func (r *Ref[T]) Copy() *Ref[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.set.Load() {
		return New(r.setup)
	}

	value := r.value
	if c, ok := any(value).(Cloner[T]); ok {
		value = c.Clone()
	}
	cp := &Ref[T]{setup: r.setup}
	cp.value = value
	cp.set.Store(true)
	return cp
}
