package trigger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"callpilot.dev/call"
	"callpilot.dev/metrics"
	"callpilot.dev/store"
)

// CooldownMillis is the minimum gap between two triggers on the same
// call.
const CooldownMillis = 12000

// contextSegments is how many prior segments are concatenated with the
// new segment when classifying.
const contextSegments = 4

// Engine decides, on every context update, whether a trigger should
// fire. The store write in ClaimTrigger is the authoritative gate; the
// read of LastTriggerTS beforehand only short-circuits the common case.
type Engine struct {
	store    store.Store
	metrics  *metrics.Metrics
	logger   *log.Logger
	cooldown int64
	now      func() time.Time
}

func NewEngine(st store.Store, m *metrics.Metrics, logger *log.Logger) *Engine {
	return &Engine{
		store:    st,
		metrics:  m,
		logger:   logger,
		cooldown: CooldownMillis,
		now:      time.Now,
	}
}

// OnContextUpdate classifies the updated window and fires a trigger
// unless the call is still inside its cooldown. Returns nil when
// suppressed.
func (e *Engine) OnContextUpdate(ctx context.Context, segment call.Segment, window call.Window) (*call.Trigger, error) {
	state, err := e.store.GetCall(ctx, segment.CallID)
	if err != nil {
		return nil, fmt.Errorf("failed to load call state: %w", err)
	}

	var last int64
	if state != nil {
		last = state.LastTriggerTS
	}
	now := e.now().UnixMilli()
	if now-last < e.cooldown {
		e.metrics.TriggersSuppressed.Inc()
		e.logger.Debug("trigger suppressed by cooldown",
			"call_id", segment.CallID,
			"since_last_ms", now-last)
		return nil, nil
	}

	rule := classify(windowText(segment, window))

	claimed, err := e.store.ClaimTrigger(ctx, segment.CallID, now, e.cooldown)
	if err != nil {
		return nil, fmt.Errorf("failed to claim trigger slot: %w", err)
	}
	if !claimed {
		// Lost the race to a concurrent evaluation of the same call.
		e.metrics.TriggersSuppressed.Inc()
		return nil, nil
	}

	e.metrics.TriggersFired.Inc()
	e.logger.Info("trigger fired",
		"call_id", segment.CallID,
		"type", rule.Type,
		"confidence", rule.Confidence)

	return &call.Trigger{
		CallID:     segment.CallID,
		Type:       rule.Type,
		Confidence: rule.Confidence,
	}, nil
}

// windowText joins the new segment's text with the last few prior
// segments, lower-cased, so rules can match phrases that straddle
// segment boundaries.
func windowText(segment call.Segment, window call.Window) string {
	prior := window.Segments
	if n := len(prior); n > 0 && prior[n-1] == segment {
		prior = prior[:n-1]
	}
	if len(prior) > contextSegments {
		prior = prior[len(prior)-contextSegments:]
	}

	parts := make([]string, 0, len(prior)+1)
	for _, s := range prior {
		parts = append(parts, s.Text)
	}
	parts = append(parts, segment.Text)
	return strings.ToLower(strings.Join(parts, " "))
}
