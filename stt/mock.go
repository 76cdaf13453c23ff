package stt

import (
	"context"
	"sync"
)

// demoScript is the canned dialogue used when no real transcription
// engine is configured.
var demoScript = []struct {
	speaker string
	text    string
}{
	{"CUSTOMER", "I need help with my order."},
	{"AGENT", "Let me look that up."},
	{"CUSTOMER", "It arrived late and damaged."},
	{"AGENT", "I can start a replacement request."},
}

// mockSecondsPerSegment is how much scripted time each emitted segment
// advances the clock.
const mockSecondsPerSegment = 0.5

// MockRecognition emits one scripted segment (a partial followed by a
// final) for every BytesPerSegment bytes of audio it receives. It is
// deterministic and needs no network.
type MockRecognition struct {
	// BytesPerSegment defaults to half a second of 16 kHz PCM16.
	BytesPerSegment int
}

func NewMock() *MockRecognition {
	return &MockRecognition{BytesPerSegment: 16000}
}

func (m *MockRecognition) Start(_ context.Context) (LiveSession, error) {
	perSegment := m.BytesPerSegment
	if perSegment <= 0 {
		perSegment = 16000
	}
	return &mockSession{
		perSegment: perSegment,
		results:    make(chan Result, 64),
	}, nil
}

type mockSession struct {
	mu         sync.Mutex
	perSegment int
	pending    int
	index      int
	stopped    bool
	results    chan Result
}

func (s *mockSession) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}

	s.pending += len(data)
	for s.pending >= s.perSegment {
		s.pending -= s.perSegment
		s.emit()
	}
	return nil
}

// emit publishes a partial then a final for the next scripted line.
// Callers hold s.mu.
func (s *mockSession) emit() {
	line := demoScript[s.index%len(demoScript)]
	start := float64(s.index) * mockSecondsPerSegment

	s.results <- Result{
		Text:    line.text,
		Speaker: line.speaker,
		Start:   start,
	}
	s.results <- Result{
		Text:       line.text,
		Speaker:    line.speaker,
		Start:      start,
		Duration:   mockSecondsPerSegment,
		Confidence: 0.95,
		Final:      true,
	}
	s.index++
}

func (s *mockSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	close(s.results)
	return nil
}

func (s *mockSession) Results() <-chan Result {
	return s.results
}

func (s *mockSession) Err() error {
	return nil
}
