package pipeline

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"callpilot.dev/assist"
	"callpilot.dev/bus"
	"callpilot.dev/call"
	"callpilot.dev/dispatch"
	"callpilot.dev/trigger"
	"callpilot.dev/window"
)

// Pipeline connects the processing stages over the event bus: final
// transcripts feed the context window, context updates feed the trigger
// engine, triggers feed fact retrieval and card assembly, and
// everything client-facing is handed to the dispatcher. Each stage
// drains its own subscription from a single goroutine, which keeps
// per-call ordering intact.
type Pipeline struct {
	bus        *bus.Bus
	window     *window.Engine
	trigger    *trigger.Engine
	retriever  *assist.Retriever
	builder    *assist.Builder
	dispatcher *dispatch.Dispatcher
	logger     *log.Logger
}

func New(
	b *bus.Bus,
	windowEngine *window.Engine,
	triggerEngine *trigger.Engine,
	retriever *assist.Retriever,
	builder *assist.Builder,
	dispatcher *dispatch.Dispatcher,
	logger *log.Logger,
) *Pipeline {
	return &Pipeline{
		bus:        b,
		window:     windowEngine,
		trigger:    triggerEngine,
		retriever:  retriever,
		builder:    builder,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Run drains every stage until ctx is canceled or the bus closes.
// Stage failures on a single event are logged and skipped; one bad
// event must not stall the call, let alone the pipeline.
func (p *Pipeline) Run(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)

	stages := []struct {
		sub    *bus.Subscription
		handle func(context.Context, bus.Event)
	}{
		{p.bus.Subscribe(bus.TranscriptPartial), p.onPartial},
		{p.bus.Subscribe(bus.TranscriptFinal), p.onFinal},
		{p.bus.Subscribe(bus.ContextUpdated), p.onContextUpdate},
		{p.bus.Subscribe(bus.TriggerFired), p.onTrigger},
		{p.bus.Subscribe(bus.FactsRetrieved), p.onFacts},
		{p.bus.Subscribe(bus.AssistCardReady), p.onCard},
	}
	for _, stage := range stages {
		stage := stage
		group.Go(func() error {
			return p.drain(ctx, stage.sub, stage.handle)
		})
	}
	return group.Wait()
}

func (p *Pipeline) drain(ctx context.Context, sub *bus.Subscription, handle func(context.Context, bus.Event)) error {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			handle(ctx, event)
		}
	}
}

func (p *Pipeline) onPartial(ctx context.Context, event bus.Event) {
	partial, ok := event.Data.(call.PartialTranscript)
	if !ok {
		p.badPayload(event)
		return
	}
	if err := p.dispatcher.BroadcastPartial(ctx, partial); err != nil {
		p.logger.Warn("failed to broadcast partial transcript",
			"call_id", partial.CallID, "error", err)
	}
}

func (p *Pipeline) onFinal(ctx context.Context, event bus.Event) {
	final, ok := event.Data.(call.FinalTranscript)
	if !ok {
		p.badPayload(event)
		return
	}

	updated, err := p.window.OnFinalSegment(ctx, final.Segment)
	if err != nil {
		p.logger.Error("failed to update context window",
			"call_id", final.CallID, "error", err)
	} else {
		p.bus.Publish(bus.Event{
			Type: bus.ContextUpdated,
			Data: call.ContextUpdate{
				CallID:  final.CallID,
				Window:  updated,
				Segment: final.Segment,
			},
		})
	}

	if err := p.dispatcher.BroadcastFinal(ctx, final); err != nil {
		p.logger.Warn("failed to broadcast final transcript",
			"call_id", final.CallID, "error", err)
	}
}

func (p *Pipeline) onContextUpdate(ctx context.Context, event bus.Event) {
	update, ok := event.Data.(call.ContextUpdate)
	if !ok {
		p.badPayload(event)
		return
	}

	fired, err := p.trigger.OnContextUpdate(ctx, update.Segment, update.Window)
	if err != nil {
		p.logger.Error("trigger evaluation failed",
			"call_id", update.CallID, "error", err)
		return
	}
	if fired == nil {
		return
	}
	p.bus.Publish(bus.Event{
		Type: bus.TriggerFired,
		Data: call.TriggerFired{
			CallID:  update.CallID,
			Trigger: *fired,
			Segment: update.Segment,
			Window:  update.Window,
		},
	})
}

func (p *Pipeline) onTrigger(ctx context.Context, event bus.Event) {
	fired, ok := event.Data.(call.TriggerFired)
	if !ok {
		p.badPayload(event)
		return
	}

	retrieved, err := p.retriever.OnTrigger(ctx, fired)
	if err != nil {
		p.logger.Error("fact retrieval failed",
			"call_id", fired.CallID, "error", err)
		return
	}
	if retrieved == nil {
		return
	}
	p.bus.Publish(bus.Event{Type: bus.FactsRetrieved, Data: *retrieved})
}

func (p *Pipeline) onFacts(ctx context.Context, event bus.Event) {
	retrieved, ok := event.Data.(call.FactsRetrieved)
	if !ok {
		p.badPayload(event)
		return
	}

	card, err := p.builder.OnFacts(ctx, retrieved)
	if err != nil {
		p.logger.Error("card assembly failed",
			"call_id", retrieved.CallID, "error", err)
		return
	}
	if card == nil {
		return
	}
	p.bus.Publish(bus.Event{
		Type: bus.AssistCardReady,
		Data: call.CardReady{CallID: card.CallID, Card: *card},
	})
}

func (p *Pipeline) onCard(ctx context.Context, event bus.Event) {
	ready, ok := event.Data.(call.CardReady)
	if !ok {
		p.badPayload(event)
		return
	}
	if err := p.dispatcher.BroadcastCard(ctx, ready); err != nil {
		p.logger.Warn("failed to broadcast assist card",
			"call_id", ready.CallID, "error", err)
	}
}

func (p *Pipeline) badPayload(event bus.Event) {
	p.logger.Warn("dropping event with unexpected payload",
		"type", event.Type)
}
