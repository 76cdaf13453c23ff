package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"callpilot.dev/call"
	"callpilot.dev/metrics"
	"callpilot.dev/store"
)

// ErrConnectionGone is returned by a Sender when the connection has
// been closed on the far side. The dispatcher treats it as an eviction
// signal, not a failure.
var ErrConnectionGone = errors.New("connection gone")

// Sender pushes one serialized frame to a registered connection.
type Sender interface {
	Send(ctx context.Context, connectionID string, payload []byte) error
}

// Dispatcher fans pipeline output out to every dashboard connection
// registered for a call.
type Dispatcher struct {
	store   store.Store
	sender  Sender
	metrics *metrics.Metrics
	logger  *log.Logger
}

func New(st store.Store, sender Sender, m *metrics.Metrics, logger *log.Logger) *Dispatcher {
	return &Dispatcher{store: st, sender: sender, metrics: m, logger: logger}
}

type partialMessage struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

type finalMessage struct {
	Type    string       `json:"type"`
	Segment call.Segment `json:"segment"`
}

type cardMessage struct {
	Type string    `json:"type"`
	Card call.Card `json:"card"`
}

func (d *Dispatcher) BroadcastPartial(ctx context.Context, partial call.PartialTranscript) error {
	return d.broadcast(ctx, partial.CallID, partialMessage{
		Type:    "transcript.partial",
		Text:    partial.Text,
		Speaker: partial.Speaker,
	})
}

func (d *Dispatcher) BroadcastFinal(ctx context.Context, final call.FinalTranscript) error {
	return d.broadcast(ctx, final.CallID, finalMessage{
		Type:    "transcript.final",
		Segment: final.Segment,
	})
}

func (d *Dispatcher) BroadcastCard(ctx context.Context, ready call.CardReady) error {
	return d.broadcast(ctx, ready.CallID, cardMessage{
		Type: "assist.card",
		Card: ready.Card,
	})
}

// broadcast sends the message to all connections for the call in
// parallel. A gone connection is evicted and does not affect delivery
// to the others; any other send error is reported after all sends
// finish.
func (d *Dispatcher) broadcast(ctx context.Context, callID string, message any) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode broadcast: %w", err)
	}

	connections, err := d.store.ListConnections(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to list connections: %w", err)
	}

	var group errgroup.Group
	for _, connectionID := range connections {
		connectionID := connectionID
		group.Go(func() error {
			err := d.sender.Send(ctx, connectionID, payload)
			if errors.Is(err, ErrConnectionGone) {
				d.evict(ctx, callID, connectionID)
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to send to %s: %w", connectionID, err)
			}
			d.metrics.BroadcastsSent.Inc()
			return nil
		})
	}
	return group.Wait()
}

func (d *Dispatcher) evict(ctx context.Context, callID, connectionID string) {
	d.metrics.StaleConnections.Inc()
	if err := d.store.RemoveConnection(ctx, callID, connectionID); err != nil {
		d.logger.Warn("failed to evict stale connection",
			"call_id", callID,
			"connection_id", connectionID,
			"err", err)
		return
	}
	d.logger.Debug("evicted stale connection",
		"call_id", callID,
		"connection_id", connectionID)
}
