package window

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"callpilot.dev/call"
	"callpilot.dev/store"
)

// Engine maintains the per-call sliding context window. It is the only
// writer of the persisted window; concurrent invocations for the same
// call can lose updates, which the design tolerates under
// single-writer-per-call traffic.
type Engine struct {
	store  store.Store
	logger *log.Logger
}

func NewEngine(s store.Store, logger *log.Logger) *Engine {
	return &Engine{store: s, logger: logger}
}

// OnFinalSegment folds a final segment into the call's window: append,
// prune everything older than window_seconds behind the new segment's
// end time, persist, and return the updated window. Re-delivery of the
// same final segment appends a duplicate; there is no dedup key.
func (e *Engine) OnFinalSegment(ctx context.Context, segment call.Segment) (call.Window, error) {
	state, err := e.store.GetCall(ctx, segment.CallID)
	if err != nil {
		return call.Window{}, fmt.Errorf("failed to load call state: %w", err)
	}

	windowSeconds := float64(call.DefaultWindowSeconds)
	var segments []call.Segment
	if state != nil {
		if state.WindowSeconds > 0 {
			windowSeconds = state.WindowSeconds
		}
		if state.ContextWindow != nil {
			segments = state.ContextWindow.Segments
		}
	}

	segments = append(segments, segment)
	cutoff := segment.EndTime - windowSeconds

	kept := make([]call.Segment, 0, len(segments))
	for _, s := range segments {
		if s.EndTime >= cutoff {
			kept = append(kept, s)
		}
	}

	updated := call.Window{
		CallID:        segment.CallID,
		WindowSeconds: windowSeconds,
		Segments:      kept,
	}

	err = e.store.UpdateCall(ctx, segment.CallID, store.Fields{"context_window": updated})
	if err != nil {
		return call.Window{}, fmt.Errorf("failed to persist context window: %w", err)
	}

	e.logger.Debug("context window updated",
		"call_id", segment.CallID,
		"segments", len(kept),
		"cutoff", cutoff)

	return updated, nil
}
