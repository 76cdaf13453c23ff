package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"callpilot.dev/bus"
	"callpilot.dev/call"
	"callpilot.dev/metrics"
	"callpilot.dev/stt"
)

// Instruments register against the default registry, so the test
// binary shares one set.
var testMetrics = metrics.New()

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

type fakeSession struct {
	mu      sync.Mutex
	chunks  [][]byte
	stopped bool
	results chan stt.Result
	err     error
	sendErr error
}

func newFakeSession() *fakeSession {
	return &fakeSession{results: make(chan stt.Result, 16)}
}

func (s *fakeSession) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.chunks = append(s.chunks, append([]byte(nil), data...))
	return nil
}

func (s *fakeSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.results)
	}
	return nil
}

func (s *fakeSession) Results() <-chan stt.Result { return s.results }
func (s *fakeSession) Err() error                 { return s.err }

func (s *fakeSession) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

type fakeRecognition struct {
	mu       sync.Mutex
	failNext bool
	failSend bool
	sessions []*fakeSession
}

func (f *fakeRecognition) Start(_ context.Context) (stt.LiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return nil, errors.New("engine unavailable")
	}
	session := newFakeSession()
	if f.failSend {
		session.sendErr = errors.New("stream reset")
	}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func (f *fakeRecognition) started() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeRecognition) session(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestGetOrCreateSingleSession(t *testing.T) {
	rec := &fakeRecognition{}
	registry := NewRegistry(rec, bus.New(), testMetrics, testLogger())
	defer registry.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.GetOrCreate("call-1")
		}()
	}
	wg.Wait()

	if n := registry.ActiveSessions(); n != 1 {
		t.Errorf("expected 1 active session, got %d", n)
	}
	waitFor(t, "session start", func() bool { return rec.started() == 1 })
}

func TestSessionRestartsAfterEnd(t *testing.T) {
	rec := &fakeRecognition{}
	registry := NewRegistry(rec, bus.New(), testMetrics, testLogger())
	defer registry.Stop()

	first := registry.GetOrCreate("call-1")
	first.queue.Push([]byte("audio"))
	first.queue.Close()
	<-first.done

	if _, ok := registry.Get("call-1"); ok {
		t.Error("finished session still registered")
	}

	second := registry.GetOrCreate("call-1")
	if second == first {
		t.Error("expected a fresh session after end of stream")
	}
	waitFor(t, "second session start", func() bool { return rec.started() == 2 })
}

func TestSessionStartFailureEvicts(t *testing.T) {
	rec := &fakeRecognition{failNext: true}
	registry := NewRegistry(rec, bus.New(), testMetrics, testLogger())
	defer registry.Stop()

	failed := registry.GetOrCreate("call-1")
	<-failed.done

	if _, ok := registry.Get("call-1"); ok {
		t.Error("failed session still registered")
	}

	// A later fragment transparently opens a fresh session.
	registry.GetOrCreate("call-1")
	waitFor(t, "recovery session", func() bool { return rec.started() == 1 })
}

func TestSendFailureClosesQueue(t *testing.T) {
	rec := &fakeRecognition{failSend: true}
	registry := NewRegistry(rec, bus.New(), testMetrics, testLogger())
	defer registry.Stop()

	session := registry.GetOrCreate("call-1")
	session.queue.Push([]byte("audio"))
	<-session.done

	if _, ok := registry.Get("call-1"); ok {
		t.Error("failed session still registered")
	}

	// A late fragment must be dropped, not buffered on the dead session.
	session.queue.Push([]byte("straggler"))
	session.queue.mu.Lock()
	closed, buffered := session.queue.closed, len(session.queue.buf)
	session.queue.mu.Unlock()
	if !closed {
		t.Error("queue left open after send failure")
	}
	if buffered != 0 {
		t.Errorf("%d chunks buffered on a dead session", buffered)
	}
}

func TestMultiplexerSlicesAndForwards(t *testing.T) {
	rec := &fakeRecognition{}
	registry := NewRegistry(rec, bus.New(), testMetrics, testLogger())
	defer registry.Stop()
	mux := NewMultiplexer(registry, testMetrics, testLogger())

	// One second of 16 kHz PCM16 silence: ten 3200-byte slices.
	raw := make([]byte, 32000)
	mux.HandleFragment(Fragment{
		CallID:      "call-1",
		Sequence:    1,
		AudioBase64: base64.StdEncoding.EncodeToString(raw),
		SampleRate:  16000,
		Channels:    1,
	})

	waitFor(t, "session start", func() bool { return rec.started() == 1 })
	session := rec.session(0)
	waitFor(t, "all slices forwarded", func() bool { return session.sent() == 10 })

	for i, chunk := range session.chunks {
		if len(chunk) != 3200 {
			t.Errorf("slice %d has %d bytes, want 3200", i, len(chunk))
		}
	}

	mux.HandleEnd("call-1")
	waitFor(t, "session stop", func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.stopped
	})
}

func TestMultiplexerDropsMalformedFragments(t *testing.T) {
	rec := &fakeRecognition{}
	registry := NewRegistry(rec, bus.New(), testMetrics, testLogger())
	defer registry.Stop()
	mux := NewMultiplexer(registry, testMetrics, testLogger())

	mux.HandleFragment(Fragment{CallID: "", AudioBase64: "AAA="})
	mux.HandleFragment(Fragment{CallID: "call-1", AudioBase64: ""})
	mux.HandleFragment(Fragment{CallID: "call-1", AudioBase64: "not base64!!"})

	if n := registry.ActiveSessions(); n != 0 {
		t.Errorf("malformed fragments started %d sessions", n)
	}
}

func TestResultsRepublishedOnBus(t *testing.T) {
	rec := &fakeRecognition{}
	b := bus.New()
	registry := NewRegistry(rec, b, testMetrics, testLogger())
	defer registry.Stop()

	partials := b.Subscribe(bus.TranscriptPartial)
	finals := b.Subscribe(bus.TranscriptFinal)

	session := registry.GetOrCreate("call-1")
	waitFor(t, "session start", func() bool { return rec.started() == 1 })

	live := rec.session(0)
	live.results <- stt.Result{Text: "hello th", Start: 0}
	live.results <- stt.Result{Text: "hello there", Start: 0, Duration: 1.5, Final: true}

	partial := <-partials.C
	p := partial.Data.(call.PartialTranscript)
	if p.Text != "hello th" || p.Speaker != call.SpeakerCustomer {
		t.Errorf("unexpected partial: %+v", p)
	}

	final := <-finals.C
	f := final.Data.(call.FinalTranscript)
	if f.Segment.Text != "hello there" {
		t.Errorf("unexpected final text: %q", f.Segment.Text)
	}
	if f.Segment.EndTime != 1.5 {
		t.Errorf("expected end_time 1.5, got %v", f.Segment.EndTime)
	}

	session.queue.Close()
	<-session.done
}
