package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"callpilot.dev/call"
)

// Memory is an in-process Store used in tests and single-node
// deployments. All state is partitioned by call_id under one mutex.
type Memory struct {
	mu    sync.Mutex
	calls map[string]*CallState
	conns map[string]map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		calls: make(map[string]*CallState),
		conns: make(map[string]map[string]bool),
	}
}

func (m *Memory) GetCall(_ context.Context, callID string) (*CallState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.calls[callID]
	if !ok {
		return nil, nil
	}
	copied := *state
	if state.ContextWindow != nil {
		window := *state.ContextWindow
		window.Segments = append([]call.Segment(nil), state.ContextWindow.Segments...)
		copied.ContextWindow = &window
	}
	return &copied, nil
}

func (m *Memory) PutCall(_ context.Context, state *CallState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *state
	m.calls[state.CallID] = &copied
	return nil
}

func (m *Memory) UpdateCall(_ context.Context, callID string, fields Fields) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.calls[callID]
	if !ok {
		state = &CallState{CallID: callID}
		m.calls[callID] = state
	}

	for key, value := range fields {
		switch key {
		case "status":
			state.Status = value.(string)
		case "started_at":
			state.StartedAt = value.(int64)
		case "window_seconds":
			state.WindowSeconds = value.(float64)
		case "context_window":
			window := value.(call.Window)
			state.ContextWindow = &window
		case "last_trigger_ts":
			state.LastTriggerTS = value.(int64)
		case "active_card_id":
			state.ActiveCardID = value.(string)
		default:
			return fmt.Errorf("unknown call-state field: %s", key)
		}
	}
	return nil
}

func (m *Memory) ListCalls(_ context.Context) ([]*CallState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	states := make([]*CallState, 0, len(m.calls))
	for _, state := range m.calls {
		copied := *state
		states = append(states, &copied)
	}
	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt < states[j].CreatedAt
	})
	return states, nil
}

func (m *Memory) ClaimTrigger(_ context.Context, callID string, now, cooldown int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.calls[callID]
	if !ok {
		state = &CallState{CallID: callID}
		m.calls[callID] = state
	}

	if now-state.LastTriggerTS < cooldown {
		return false, nil
	}
	state.LastTriggerTS = now
	return true, nil
}

func (m *Memory) RegisterConnection(_ context.Context, callID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conns[callID] == nil {
		m.conns[callID] = make(map[string]bool)
	}
	m.conns[callID][connectionID] = true
	return nil
}

func (m *Memory) RemoveConnection(_ context.Context, callID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conns[callID], connectionID)
	return nil
}

func (m *Memory) ListConnections(_ context.Context, callID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.conns[callID]))
	for id := range m.conns[callID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
