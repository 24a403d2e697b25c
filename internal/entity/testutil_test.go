package entity

import (
	"context"
	"sync"
)

// fakeEntity is a minimal OnOffEntity for registry tests.
type fakeEntity struct {
	id, name string

	mu       sync.Mutex
	on       bool
	closeN   int
	closeErr error
	notify   Notifier
}

func newFakeEntity(id string, notify Notifier) *fakeEntity {
	return &fakeEntity{id: id, name: "Fake " + id, notify: notify}
}

func (f *fakeEntity) ID() string       { return f.id }
func (f *fakeEntity) Name() string     { return f.name }
func (f *fakeEntity) ShouldPoll() bool { return false }

func (f *fakeEntity) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}

func (f *fakeEntity) set(on bool) error {
	f.mu.Lock()
	f.on = on
	f.mu.Unlock()
	if f.notify != nil {
		f.notify(StateChange{EntityID: f.id, Name: f.name, On: on, Source: SourceOptimistic})
	}
	return nil
}

func (f *fakeEntity) TurnOn(context.Context) error  { return f.set(true) }
func (f *fakeEntity) TurnOff(context.Context) error { return f.set(false) }

func (f *fakeEntity) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeN++
	return f.closeErr
}

// collector records every change it observes.
type collector struct {
	mu      sync.Mutex
	changes []StateChange
}

func (c *collector) OnStateChange(change StateChange) {
	c.mu.Lock()
	c.changes = append(c.changes, change)
	c.mu.Unlock()
}

func (c *collector) all() []StateChange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StateChange, len(c.changes))
	copy(out, c.changes)
	return out
}
