package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-switch/internal/bridges/mqttswitch"
	"github.com/nerrad567/gray-logic-switch/internal/entity"
)

// commandTimeout bounds a single on/off command.
const commandTimeout = 5 * time.Second

// CommandResponse is returned by the on/off endpoints.
type CommandResponse struct {
	Command string          `json:"command"`
	Switch  entity.Snapshot `json:"switch"`
}

// handleListSwitches returns every registered switch, sorted by id.
func (s *Server) handleListSwitches(w http.ResponseWriter, _ *http.Request) {
	entities := s.registry.List()
	snapshots := make([]entity.Snapshot, 0, len(entities))
	for _, e := range entities {
		snapshots = append(snapshots, entity.SnapshotOf(e))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"switches": snapshots,
		"count":    len(snapshots),
	})
}

// handleGetSwitch returns one switch.
func (s *Server) handleGetSwitch(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookupSwitch(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entity.SnapshotOf(e))
}

// handleSwitchCommand returns the handler for /on (on=true) or /off.
//
// The response carries the state after the command returned: unchanged for
// a switch that waits for feedback, already updated for an optimistic one.
func (s *Server) handleSwitchCommand(on bool) http.HandlerFunc {
	command := "turn_off"
	if on {
		command = "turn_on"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		e, ok := s.lookupSwitch(w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
		defer cancel()

		var err error
		if on {
			err = e.TurnOn(ctx)
		} else {
			err = e.TurnOff(ctx)
		}

		if err != nil {
			s.logger.Warn("switch command failed",
				"entity_id", e.ID(),
				"command", command,
				"error", err,
				"request_id", requestID(r),
			)
			switch {
			case errors.Is(err, mqttswitch.ErrClosed):
				writeError(w, http.StatusConflict, ErrCodeConflict, "switch is shut down")
			default:
				writeError(w, http.StatusBadGateway, ErrCodeBadGateway, "command could not be published: "+err.Error())
			}
			return
		}

		writeJSON(w, http.StatusAccepted, CommandResponse{
			Command: command,
			Switch:  entity.SnapshotOf(e),
		})
	}
}

// lookupSwitch resolves the {id} URL parameter, writing 404 when unknown.
func (s *Server) lookupSwitch(w http.ResponseWriter, r *http.Request) (entity.OnOffEntity, bool) {
	id := chi.URLParam(r, "id")
	e, err := s.registry.Get(id)
	if err != nil {
		writeNotFound(w, "switch not found: "+id)
		return nil, false
	}
	return e, true
}
