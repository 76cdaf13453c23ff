package assist

import (
	"context"

	"callpilot.dev/call"
)

var mockFacts = []string{
	"Ticket #1123 is open for late delivery",
	"Order 98342 shipped 3 days late",
}

// MockFactSource returns canned ticket and order facts so the whole
// pipeline can run without back office credentials.
type MockFactSource struct{}

func (MockFactSource) Lookup(_ context.Context, _ call.Trigger, _ call.Window) (Facts, error) {
	return Facts{
		Facts:   append([]string(nil), mockFacts...),
		Sources: []string{"Tickets", "Orders"},
	}, nil
}

// MockPhraser returns a fixed next step regardless of context.
type MockPhraser struct{}

func (MockPhraser) NextStep(_ context.Context, _ []string, _ string) (string, error) {
	return "Acknowledge the issue and offer a resolution option.", nil
}
