package ingest

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestQueueFIFOCatchUp(t *testing.T) {
	q := NewQueue()
	q.Push([]byte("A"))
	q.Push([]byte("B"))
	q.Push([]byte("C"))
	q.Close()

	ctx := context.Background()
	for _, want := range []string{"A", "B", "C"} {
		chunk, ok := q.Next(ctx)
		if !ok {
			t.Fatalf("stream ended before %q", want)
		}
		if string(chunk) != want {
			t.Errorf("expected %q, got %q", want, chunk)
		}
	}

	if _, ok := q.Next(ctx); ok {
		t.Error("expected end of stream after close")
	}
}

func TestQueueFIFOWaitingConsumer(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	got := make(chan []byte, 4)
	go func() {
		for {
			chunk, ok := q.Next(ctx)
			if !ok {
				close(got)
				return
			}
			got <- chunk
		}
	}()

	// Give the consumer time to block on an empty queue.
	time.Sleep(10 * time.Millisecond)

	q.Push([]byte("A"))
	q.Push([]byte("B"))
	q.Close()

	var received [][]byte
	for chunk := range got {
		received = append(received, chunk)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(received))
	}
	if !bytes.Equal(received[0], []byte("A")) || !bytes.Equal(received[1], []byte("B")) {
		t.Errorf("chunks out of order: %q, %q", received[0], received[1])
	}
}

func TestQueueCloseIdempotent(t *testing.T) {
	q := NewQueue()
	q.Close()
	q.Close()

	q.Push([]byte("late"))

	chunk, ok := q.Next(context.Background())
	if ok {
		t.Errorf("push after close reached the consumer: %q", chunk)
	}
}

func TestQueueCloseWakesBlockedConsumer(t *testing.T) {
	q := NewQueue()

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Next(context.Background())
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected end of stream, got a chunk")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer still blocked after close")
	}
}

func TestQueueNextRespectsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Next(ctx)
		done <- ok
	}()

	cancel()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected no chunk after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer still blocked after cancellation")
	}
}
