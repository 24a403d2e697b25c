package entity

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry holds the host's entities and routes their state changes to
// observers.
//
// Entities are built with Registry.Notify as their Notifier, then added.
// All public methods are thread-safe.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]OnOffEntity
	closed   bool

	observers   []Observer
	observersMu sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]OnOffEntity),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Registry) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// AddObserver registers an observer for every subsequent state change.
func (r *Registry) AddObserver(o Observer) {
	if o == nil {
		return
	}
	r.observersMu.Lock()
	r.observers = append(r.observers, o)
	r.observersMu.Unlock()
}

// Notify fans a state change out to every observer, in registration order.
// A panicking observer is logged and skipped.
func (r *Registry) Notify(change StateChange) {
	r.observersMu.RLock()
	observers := make([]Observer, len(r.observers))
	copy(observers, r.observers)
	r.observersMu.RUnlock()

	r.getLogger().Debug("switch state changed",
		"entity_id", change.EntityID,
		"state", change.State(),
		"source", change.Source,
	)

	for _, o := range observers {
		r.deliver(o, change)
	}
}

func (r *Registry) deliver(o Observer, change StateChange) {
	defer func() {
		if p := recover(); p != nil {
			r.getLogger().Error("state observer panic recovered",
				"entity_id", change.EntityID,
				"panic", p,
			)
		}
	}()
	o.OnStateChange(change)
}

// Add registers an entity under its ID.
func (r *Registry) Add(e OnOffEntity) error {
	if e == nil || e.ID() == "" {
		return ErrInvalidEntity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, exists := r.entities[e.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateEntity, e.ID())
	}
	r.entities[e.ID()] = e

	r.getLogger().Info("switch registered", "entity_id", e.ID(), "name", e.Name())
	return nil
}

// Get returns the entity with the given ID.
func (r *Registry) Get(id string) (OnOffEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, id)
	}
	return e, nil
}

// List returns every entity sorted by ID.
func (r *Registry) List() []OnOffEntity {
	r.mu.RLock()
	list := make([]OnOffEntity, 0, len(r.entities))
	for _, e := range r.entities {
		list = append(list, e)
	}
	r.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// Len returns the number of registered entities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}

// Close tears down every entity. Later calls are no-ops.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entities := r.entities
	r.entities = make(map[string]OnOffEntity)
	r.mu.Unlock()

	var errs []error
	for id, e := range entities {
		if err := e.Close(); err != nil {
			r.getLogger().Warn("closing switch failed", "entity_id", id, "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
