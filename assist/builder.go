package assist

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"callpilot.dev/call"
	"callpilot.dev/metrics"
	"callpilot.dev/store"
)

// maxCardFacts caps how many facts a card carries so it stays
// glanceable mid-call.
const maxCardFacts = 2

// Builder assembles assist cards from retrieved facts and records the
// active card on the call before it is announced.
type Builder struct {
	store   store.Store
	phraser Phraser
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewBuilder(st store.Store, phraser Phraser, m *metrics.Metrics, logger *log.Logger) *Builder {
	return &Builder{store: st, phraser: phraser, metrics: m, logger: logger}
}

// OnFacts builds a card from the retrieved facts. Returns nil when
// there are no facts or the phraser declines.
func (b *Builder) OnFacts(ctx context.Context, retrieved call.FactsRetrieved) (*call.Card, error) {
	facts := retrieved.Facts
	if len(facts) == 0 {
		return nil, nil
	}
	if len(facts) > maxCardFacts {
		facts = facts[:maxCardFacts]
	}

	nextStep, err := b.phraser.NextStep(ctx, facts, retrieved.ContextSnippet)
	if err != nil {
		return nil, fmt.Errorf("failed to phrase next step: %w", err)
	}
	if nextStep == "" {
		b.logger.Debug("phraser declined", "call_id", retrieved.CallID)
		return nil, nil
	}

	card := &call.Card{
		CardID:   uuid.NewString(),
		CallID:   retrieved.CallID,
		Facts:    facts,
		NextStep: nextStep,
		Insights: call.Insights{Sentiment: "unknown", Risk: "unknown"},
		Sources:  retrieved.Sources,
	}

	if err := b.store.UpdateCall(ctx, card.CallID, store.Fields{"active_card_id": card.CardID}); err != nil {
		return nil, fmt.Errorf("failed to record active card: %w", err)
	}

	b.metrics.CardsEmitted.Inc()
	b.logger.Info("assist card ready",
		"call_id", card.CallID,
		"card_id", card.CardID,
		"facts", len(card.Facts))
	return card, nil
}
