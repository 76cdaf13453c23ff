package store

import (
	"context"
	"testing"

	"callpilot.dev/call"
)

func TestMemoryGetMissingCall(t *testing.T) {
	m := NewMemory()
	state, err := m.GetCall(context.Background(), "nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state for unknown call, got %+v", state)
	}
}

func TestMemoryPartialUpdate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.PutCall(ctx, &CallState{
		CallID:        "c1",
		Status:        "created",
		WindowSeconds: 15,
	})
	if err != nil {
		t.Fatal(err)
	}

	err = m.UpdateCall(ctx, "c1", Fields{
		"status":     "started",
		"started_at": int64(1000),
	})
	if err != nil {
		t.Fatal(err)
	}

	state, err := m.GetCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Status != "started" {
		t.Errorf("expected status started, got %q", state.Status)
	}
	if state.StartedAt != 1000 {
		t.Errorf("expected started_at 1000, got %d", state.StartedAt)
	}
	if state.WindowSeconds != 15 {
		t.Errorf("untouched field changed: window_seconds = %v", state.WindowSeconds)
	}
}

func TestMemoryUpdateUnknownField(t *testing.T) {
	m := NewMemory()
	err := m.UpdateCall(context.Background(), "c1", Fields{"bogus": 1})
	if err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestMemoryWindowIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	window := call.Window{CallID: "c1", WindowSeconds: 15, Segments: []call.Segment{
		{CallID: "c1", Speaker: call.SpeakerCustomer, Text: "hello", EndTime: 1},
	}}
	if err := m.UpdateCall(ctx, "c1", Fields{"context_window": window}); err != nil {
		t.Fatal(err)
	}

	state, err := m.GetCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	state.ContextWindow.Segments[0].Text = "mutated"

	again, err := m.GetCall(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if again.ContextWindow.Segments[0].Text != "hello" {
		t.Error("stored window was mutated through a returned copy")
	}
}

func TestMemoryClaimTrigger(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	claimed, err := m.ClaimTrigger(ctx, "c1", 13000, 12000)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	claimed, err = m.ClaimTrigger(ctx, "c1", 18000, 12000)
	if err != nil {
		t.Fatal(err)
	}
	if claimed {
		t.Error("expected claim inside cooldown to fail")
	}

	claimed, err = m.ClaimTrigger(ctx, "c1", 25000, 12000)
	if err != nil {
		t.Fatal(err)
	}
	if !claimed {
		t.Error("expected claim after cooldown to succeed")
	}
}

func TestMemoryConnections(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	for _, id := range []string{"conn-b", "conn-a"} {
		if err := m.RegisterConnection(ctx, "c1", id); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := m.ListConnections(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || ids[0] != "conn-a" || ids[1] != "conn-b" {
		t.Errorf("unexpected connections: %v", ids)
	}

	if err := m.RemoveConnection(ctx, "c1", "conn-a"); err != nil {
		t.Fatal(err)
	}
	ids, err = m.ListConnections(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "conn-b" {
		t.Errorf("unexpected connections after removal: %v", ids)
	}
}
