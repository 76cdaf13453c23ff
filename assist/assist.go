package assist

import (
	"context"

	"callpilot.dev/call"
)

// Facts is the result of a lookup against the agent-facing back
// office systems.
type Facts struct {
	Facts   []string
	Sources []string
}

// FactSource looks up account facts relevant to a fired trigger.
type FactSource interface {
	Lookup(ctx context.Context, trigger call.Trigger, window call.Window) (Facts, error)
}

// Phraser turns retrieved facts into a short suggested next step for
// the agent. An empty next step means the phraser declined.
type Phraser interface {
	NextStep(ctx context.Context, facts []string, contextSnippet string) (string, error)
}
