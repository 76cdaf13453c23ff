package assist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"callpilot.dev/call"
)

// Retriever runs the fact lookup stage after a trigger fires.
type Retriever struct {
	source FactSource
	logger *log.Logger
}

func NewRetriever(source FactSource, logger *log.Logger) *Retriever {
	return &Retriever{source: source, logger: logger}
}

// OnTrigger looks up facts for the fired trigger. Returns nil when no
// facts are available, which ends the assist flow for this trigger.
func (r *Retriever) OnTrigger(ctx context.Context, fired call.TriggerFired) (*call.FactsRetrieved, error) {
	facts, err := r.source.Lookup(ctx, fired.Trigger, fired.Window)
	if err != nil {
		return nil, fmt.Errorf("failed to look up facts: %w", err)
	}
	if len(facts.Facts) == 0 {
		r.logger.Debug("no facts for trigger",
			"call_id", fired.CallID,
			"type", fired.Trigger.Type)
		return nil, nil
	}

	return &call.FactsRetrieved{
		CallID:         fired.CallID,
		Facts:          facts.Facts,
		Sources:        facts.Sources,
		ContextSnippet: fired.Segment.Text,
	}, nil
}
