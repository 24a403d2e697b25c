package entity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_AddGetList(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Add(newFakeEntity("b", r.Notify)))
	require.NoError(t, r.Add(newFakeEntity("a", r.Notify)))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID())

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID())
	assert.Equal(t, "b", list[1].ID())
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_AddRejects(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Add(nil), ErrInvalidEntity)
	assert.ErrorIs(t, r.Add(newFakeEntity("", nil)), ErrInvalidEntity)

	require.NoError(t, r.Add(newFakeEntity("dup", nil)))
	assert.ErrorIs(t, r.Add(newFakeEntity("dup", nil)), ErrDuplicateEntity)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Add(newFakeEntity("late", nil)), ErrRegistryClosed)
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestRegistry_NotifyFansOutInOrder(t *testing.T) {
	r := NewRegistry()

	var order []string
	r.AddObserver(ObserverFunc(func(StateChange) { order = append(order, "first") }))
	r.AddObserver(ObserverFunc(func(StateChange) { order = append(order, "second") }))
	r.AddObserver(nil)

	e := newFakeEntity("hall", r.Notify)
	require.NoError(t, r.Add(e))
	require.NoError(t, e.TurnOn(context.Background()))

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRegistry_NotifySurvivesPanickingObserver(t *testing.T) {
	r := NewRegistry()
	c := &collector{}

	r.AddObserver(ObserverFunc(func(StateChange) { panic("observer bug") }))
	r.AddObserver(c)

	r.Notify(StateChange{EntityID: "x", On: true})

	require.Len(t, c.all(), 1)
	assert.True(t, c.all()[0].On)
}

func TestRegistry_CloseTearsDownOnce(t *testing.T) {
	r := NewRegistry()
	good := newFakeEntity("good", nil)
	bad := newFakeEntity("bad", nil)
	bad.closeErr = errors.New("unsubscribe failed")

	require.NoError(t, r.Add(good))
	require.NoError(t, r.Add(bad))

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing bad")

	require.NoError(t, r.Close())
	assert.Equal(t, 1, good.closeN)
	assert.Equal(t, 1, bad.closeN)
	assert.Equal(t, 0, r.Len())
}

func TestSnapshotOf(t *testing.T) {
	e := newFakeEntity("hall", nil)
	require.NoError(t, e.TurnOn(context.Background()))

	snap := SnapshotOf(e)
	assert.Equal(t, Snapshot{ID: "hall", Name: "Fake hall", On: true, State: "on"}, snap)
}

func TestRegistry_SetLoggerWhileNotifying(t *testing.T) {
	r := NewRegistry()
	r.AddObserver(ObserverFunc(func(StateChange) { panic("boom") }))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.SetLogger(noopLogger{})
		}()
		go func() {
			defer wg.Done()
			r.Notify(StateChange{EntityID: "x"})
		}()
	}
	wg.Wait()

	r.SetLogger(nil)
	assert.NotPanics(t, func() { r.Notify(StateChange{EntityID: "x"}) })
}
