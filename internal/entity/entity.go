package entity

import (
	"context"
	"time"
)

// Source values for StateChange.
const (
	// SourceFeedback marks a change reported by the device on its state topic.
	SourceFeedback = "feedback"

	// SourceOptimistic marks a change assumed locally after a command.
	SourceOptimistic = "optimistic"
)

// OnOffEntity is the capability set the host relies on for a binary switch.
//
// Implementations own their state and report every change through the
// Notifier they were constructed with. ShouldPoll tells the host whether it
// must poll IsOn; push-based entities return false.
type OnOffEntity interface {
	ID() string
	Name() string
	IsOn() bool
	ShouldPoll() bool
	TurnOn(ctx context.Context) error
	TurnOff(ctx context.Context) error
	// Close releases any subscriptions. It is safe to call more than once.
	Close() error
}

// StateChange is emitted each time an entity sets its state, even when the
// new value equals the old one.
type StateChange struct {
	EntityID  string    `json:"entity_id"`
	Name      string    `json:"name"`
	On        bool      `json:"on"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// State returns "on" or "off".
func (c StateChange) State() string {
	return StateString(c.On)
}

// Notifier receives state changes from an entity. It is called while the
// entity holds its write lock, so it must not call back into that entity's
// TurnOn or TurnOff.
type Notifier func(StateChange)

// Observer is anything interested in state changes routed by the Registry.
type Observer interface {
	OnStateChange(change StateChange)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(StateChange)

// OnStateChange calls f(change).
func (f ObserverFunc) OnStateChange(change StateChange) {
	f(change)
}

// Snapshot is a read-only view of an entity for API responses.
type Snapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	On         bool   `json:"on"`
	State      string `json:"state"`
	ShouldPoll bool   `json:"should_poll"`
}

// SnapshotOf captures the current state of e.
func SnapshotOf(e OnOffEntity) Snapshot {
	on := e.IsOn()
	return Snapshot{
		ID:         e.ID(),
		Name:       e.Name(),
		On:         on,
		State:      StateString(on),
		ShouldPoll: e.ShouldPoll(),
	}
}

// StateString renders a boolean state the way the API and history report it.
func StateString(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
