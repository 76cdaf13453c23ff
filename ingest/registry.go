package ingest

import (
	"context"
	"sync"

	"github.com/charmbracelet/log"

	"callpilot.dev/bus"
	"callpilot.dev/call"
	"callpilot.dev/metrics"
	"callpilot.dev/stt"
)

// Session is the process-local streaming state for one call: the chunk
// queue plus the pump that feeds the external transcription session.
type Session struct {
	callID string
	queue  *Queue
	done   chan struct{}
}

// Registry owns the per-call session map. Get-or-create is atomic per
// call_id so concurrent fragment arrivals cannot spawn two competing
// transcription sessions; a finished or failed session evicts itself,
// freeing a later fragment to start a fresh one.
type Registry struct {
	recognition stt.Recognition
	bus         *bus.Bus
	metrics     *metrics.Metrics
	logger      *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(recognition stt.Recognition, b *bus.Bus, m *metrics.Metrics, logger *log.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		recognition: recognition,
		bus:         b,
		metrics:     m,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for the call, starting one when
// absent.
func (r *Registry) GetOrCreate(callID string) *Session {
	r.mu.Lock()
	if session, ok := r.sessions[callID]; ok {
		r.mu.Unlock()
		return session
	}
	session := &Session{
		callID: callID,
		queue:  NewQueue(),
		done:   make(chan struct{}),
	}
	r.sessions[callID] = session
	r.mu.Unlock()

	r.logger.Info("starting transcription session", "call_id", callID)
	go r.run(session)

	return session
}

// Get returns the live session without creating one.
func (r *Registry) Get(callID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[callID]
	return session, ok
}

// ActiveSessions reports the number of live sessions.
func (r *Registry) ActiveSessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Stop closes every queue then waits for the pumps to finish.
func (r *Registry) Stop() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	r.mu.Unlock()

	for _, session := range sessions {
		session.queue.Close()
	}
	for _, session := range sessions {
		<-session.done
	}
	r.cancel()
}

// run pumps the queue into a freshly started transcription session and
// drains its results back onto the bus. Failures are logged, never
// retried; eviction lets the next fragment open a new session.
func (r *Registry) run(session *Session) {
	defer close(session.done)
	defer r.evict(session)

	live, err := r.recognition.Start(r.ctx)
	if err != nil {
		r.metrics.SessionsFailed.Inc()
		r.logger.Error("failed to start transcription session",
			"call_id", session.callID, "error", err)
		session.queue.Close()
		return
	}

	r.metrics.SessionsStarted.Inc()
	r.metrics.ActiveSessions.Inc()
	defer r.metrics.ActiveSessions.Dec()

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for result := range live.Results() {
			r.publish(session.callID, result)
		}
		if err := live.Err(); err != nil {
			r.metrics.SessionsFailed.Inc()
			r.logger.Error("transcription session failed",
				"call_id", session.callID, "error", err)
		}
	}()

	for {
		chunk, ok := session.queue.Next(r.ctx)
		if !ok {
			break
		}
		if err := live.SendAudio(chunk); err != nil {
			r.logger.Error("failed to forward audio chunk",
				"call_id", session.callID, "error", err)
			// Late pushes must become no-ops now, not at eviction.
			session.queue.Close()
			break
		}
	}

	if err := live.Stop(); err != nil {
		r.logger.Error("failed to close transcription session",
			"call_id", session.callID, "error", err)
	}
	<-drained

	r.logger.Info("transcription session finished", "call_id", session.callID)
}

// evict removes the session unless a newer one already took the slot.
func (r *Registry) evict(session *Session) {
	r.mu.Lock()
	if r.sessions[session.callID] == session {
		delete(r.sessions, session.callID)
	}
	r.mu.Unlock()
}

func (r *Registry) publish(callID string, result stt.Result) {
	speaker := result.Speaker
	if speaker == "" {
		speaker = call.SpeakerCustomer
	}

	if !result.Final {
		r.metrics.PartialTranscripts.Inc()
		r.bus.Publish(bus.Event{
			Type: bus.TranscriptPartial,
			Data: call.PartialTranscript{
				CallID:  callID,
				Text:    result.Text,
				Speaker: speaker,
			},
		})
		return
	}

	r.metrics.FinalTranscripts.Inc()
	r.bus.Publish(bus.Event{
		Type: bus.TranscriptFinal,
		Data: call.FinalTranscript{
			CallID: callID,
			Segment: call.Segment{
				CallID:  callID,
				Speaker: speaker,
				Text:    result.Text,
				EndTime: result.End(),
			},
		},
	})
}
