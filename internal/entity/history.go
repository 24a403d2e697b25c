package entity

import (
	"context"
	"time"
)

// HistoryEntry is one persisted state change.
type HistoryEntry struct {
	ID        int64     `json:"id"`
	EntityID  string    `json:"entity_id"`
	Name      string    `json:"name"`
	On        bool      `json:"on"`
	State     string    `json:"state"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryRepository stores and retrieves switch state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type HistoryRepository interface {
	RecordStateChange(ctx context.Context, change StateChange) error

	// GetHistory returns up to limit entries for the entity, newest first.
	// Implementations clamp limit to their own bounds.
	GetHistory(ctx context.Context, entityID string, limit int) ([]HistoryEntry, error)
}

const historyWriteTimeout = 5 * time.Second

// HistoryRecorder is an Observer that persists every state change.
type HistoryRecorder struct {
	repo   HistoryRepository
	logger Logger
}

// NewHistoryRecorder creates a recorder writing to repo.
func NewHistoryRecorder(repo HistoryRepository, logger Logger) *HistoryRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &HistoryRecorder{repo: repo, logger: logger}
}

// OnStateChange writes the change; failures are logged, not returned.
func (h *HistoryRecorder) OnStateChange(change StateChange) {
	ctx, cancel := context.WithTimeout(context.Background(), historyWriteTimeout)
	defer cancel()

	if err := h.repo.RecordStateChange(ctx, change); err != nil {
		h.logger.Warn("recording state history failed",
			"entity_id", change.EntityID,
			"error", err,
		)
	}
}
