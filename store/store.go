package store

import (
	"context"

	"callpilot.dev/call"
)

// CallState is the persisted record for one call. Timestamps are unix
// milliseconds.
type CallState struct {
	CallID        string       `json:"call_id"`
	Status        string       `json:"status,omitempty"`
	CreatedAt     int64        `json:"created_at,omitempty"`
	StartedAt     int64        `json:"started_at,omitempty"`
	WindowSeconds float64      `json:"window_seconds,omitempty"`
	ContextWindow *call.Window `json:"context_window,omitempty"`
	LastTriggerTS int64        `json:"last_trigger_ts,omitempty"`
	ActiveCardID  string       `json:"active_card_id,omitempty"`
}

// Fields is a partial update. Keys are the persisted field names:
// status, started_at, window_seconds, context_window, last_trigger_ts,
// active_card_id.
type Fields map[string]any

// Store is the external call-state and subscriber registry. It has
// plain get/put/partial-update semantics; cross-call consistency is
// not its job. ClaimTrigger is the one conditional write: it advances
// last_trigger_ts to now only if the previous value is at least
// cooldown milliseconds old, so the write itself gates double-fires.
type Store interface {
	GetCall(ctx context.Context, callID string) (*CallState, error)
	PutCall(ctx context.Context, state *CallState) error
	UpdateCall(ctx context.Context, callID string, fields Fields) error
	ListCalls(ctx context.Context) ([]*CallState, error)

	ClaimTrigger(ctx context.Context, callID string, now, cooldown int64) (bool, error)

	RegisterConnection(ctx context.Context, callID, connectionID string) error
	RemoveConnection(ctx context.Context, callID, connectionID string) error
	ListConnections(ctx context.Context, callID string) ([]string, error)
}
