package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nerrad567/gray-logic-switch/internal/bridges/mqttswitch"
	"github.com/nerrad567/gray-logic-switch/internal/entity"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-switch/internal/infrastructure/statecache"
)

// buildSwitches creates and registers a switch for each entry. Entries that
// fail to construct (most often a missing command_topic) are logged and
// skipped; the rest of the service starts regardless. It returns the number
// of switches registered.
func buildSwitches(entries []config.SwitchConfig, transport mqttswitch.Transport, registry *entity.Registry, log *logging.Logger) int {
	switchLog := log.Component("mqttswitch")
	created := 0

	for i, entry := range entries {
		sw, err := mqttswitch.New(mqttswitch.FromSwitchConfig(entry), mqttswitch.Options{
			Transport: transport,
			Notifier:  registry.Notify,
			Logger:    switchLog,
		})
		if err != nil {
			log.Warn("switch skipped",
				"index", i,
				"name", entry.Name,
				"error", err,
			)
			continue
		}

		if err := registry.Add(sw); err != nil {
			_ = sw.Close()
			log.Warn("switch skipped",
				"index", i,
				"entity_id", sw.ID(),
				"error", err,
			)
			continue
		}

		log.Info("switch registered",
			"entity_id", sw.ID(),
			"name", sw.Name(),
			"optimistic", sw.Optimistic(),
		)
		created++
	}

	return created
}

// switchIDs lists the ids currently registered.
func switchIDs(registry *entity.Registry) []string {
	entities := registry.List()
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID())
	}
	return ids
}

// publisher is the part of the MQTT client the republisher needs.
type publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// statePayload is the retained document on grayswitch/core/switch/{id}/state.
type statePayload struct {
	EntityID  string `json:"entity_id"`
	Name      string `json:"name"`
	On        bool   `json:"on"`
	State     string `json:"state"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
}

// stateRepublisher publishes each change, retained, under the service's own
// topic tree so other services can follow switch state without knowing each
// device's feedback format.
type stateRepublisher struct {
	client publisher
	qos    byte
	log    *logging.Logger
}

func newStateRepublisher(client publisher, qos byte, log *logging.Logger) *stateRepublisher {
	return &stateRepublisher{client: client, qos: qos, log: log}
}

// OnStateChange implements entity.Observer.
func (r *stateRepublisher) OnStateChange(change entity.StateChange) {
	payload, err := json.Marshal(statePayload{
		EntityID:  change.EntityID,
		Name:      change.Name,
		On:        change.On,
		State:     change.State(),
		Source:    change.Source,
		Timestamp: change.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		r.log.Error("encoding switch state", "entity_id", change.EntityID, "error", err)
		return
	}

	topic := mqtt.Topics{}.SwitchState(change.EntityID)
	if err := r.client.Publish(topic, payload, r.qos, true); err != nil {
		r.log.Warn("republishing switch state failed",
			"entity_id", change.EntityID,
			"topic", topic,
			"error", err,
		)
	}
}

// historyPruner is the part of the history repository the prune loop needs.
type historyPruner interface {
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}

// pruneHistoryLoop deletes history older than retention once at start and
// then every interval, until ctx is cancelled.
func pruneHistoryLoop(ctx context.Context, repo historyPruner, retention, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := repo.PruneHistory(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning switch history failed", "error", err)
		case n > 0:
			log.Info("pruned switch history", "deleted", n, "retention", retention.String())
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type lastKnownReader interface {
	Get(ctx context.Context, id string) (*statecache.State, error)
}

// logLastKnownStates reports what the mirror held for each switch before
// this run. Switches always start OFF; the mirror is never read back into
// them. It returns how many switches had an entry.
func logLastKnownStates(ctx context.Context, cache lastKnownReader, ids []string, log *logging.Logger) int {
	found := 0
	for _, id := range ids {
		st, err := cache.Get(ctx, id)
		if err != nil {
			log.Warn("reading last known state failed", "entity_id", id, "error", err)
			continue
		}
		if st == nil {
			continue
		}
		found++
		log.Info("last known switch state",
			"entity_id", id,
			"state", st.State,
			"source", st.Source,
			"updated_at", st.UpdatedAt,
		)
	}
	return found
}
