package stt

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Client speaks a realtime transcription websocket API: a
// StartRecognition handshake, binary PCM frames, an EndOfStream
// message, and AddPartialTranscript/AddTranscript responses.
type Client struct {
	url        string
	apiKey     string
	sampleRate int
	language   string
	logger     *log.Logger
}

func NewClient(url, apiKey string, sampleRate int, logger *log.Logger) *Client {
	return &Client{
		url:        url,
		apiKey:     apiKey,
		sampleRate: sampleRate,
		language:   "en",
		logger:     logger,
	}
}

type audioFormat struct {
	Type       string `json:"type"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type transcriptionConfig struct {
	Language       string `json:"language"`
	EnablePartials bool   `json:"enable_partials"`
}

type startRecognitionMessage struct {
	Message             string              `json:"message"`
	AudioFormat         audioFormat         `json:"audio_format"`
	TranscriptionConfig transcriptionConfig `json:"transcription_config"`
}

type endOfStreamMessage struct {
	Message   string `json:"message"`
	LastSeqNo int    `json:"last_seq_no"`
}

type transcriptMessage struct {
	Message string `json:"message"`
	Results []struct {
		Alternatives []struct {
			Confidence float64 `json:"confidence"`
			Content    string  `json:"content"`
		} `json:"alternatives"`
		StartTime float64 `json:"start_time"`
		EndTime   float64 `json:"end_time"`
	} `json:"results"`
}

func (c *Client) Start(ctx context.Context) (LiveSession, error) {
	header := http.Header{}
	header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to transcription service: %w", err)
	}

	start := startRecognitionMessage{
		Message: "StartRecognition",
		AudioFormat: audioFormat{
			Type:       "raw",
			Encoding:   "pcm_s16le",
			SampleRate: c.sampleRate,
		},
		TranscriptionConfig: transcriptionConfig{
			Language:       c.language,
			EnablePartials: true,
		},
	}
	if err := conn.WriteJSON(start); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send StartRecognition message: %w", err)
	}

	session := &wsSession{
		conn:    conn,
		results: make(chan Result, 16),
		logger:  c.logger,
	}
	go session.readLoop()

	return session, nil
}

type wsSession struct {
	conn    *websocket.Conn
	results chan Result
	logger  *log.Logger

	mu      sync.Mutex
	seq     int
	stopped bool

	errMu sync.Mutex
	err   error
}

func (s *wsSession) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("session already stopped")
	}

	s.seq++
	if err := s.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("failed to send audio frame: %w", err)
	}
	return nil
}

func (s *wsSession) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true

	end := endOfStreamMessage{Message: "EndOfStream", LastSeqNo: s.seq}
	if err := s.conn.WriteJSON(end); err != nil {
		return fmt.Errorf("failed to send EndOfStream message: %w", err)
	}
	return nil
}

func (s *wsSession) Results() <-chan Result {
	return s.results
}

func (s *wsSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *wsSession) readLoop() {
	defer close(s.results)
	defer s.conn.Close()

	for {
		var msg transcriptMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(
				err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
			) {
				s.errMu.Lock()
				s.err = fmt.Errorf("transcription socket closed unexpectedly: %w", err)
				s.errMu.Unlock()
			}
			return
		}

		switch msg.Message {
		case "AddPartialTranscript":
			if r, ok := msg.toResult(false); ok {
				s.results <- r
			}
		case "AddTranscript":
			if r, ok := msg.toResult(true); ok {
				s.logger.Info("hear", "txt", r.Text, "start", r.Start, "duration", r.Duration)
				s.results <- r
			}
		case "EndOfTranscript":
			return
		}
	}
}

func (m transcriptMessage) toResult(final bool) (Result, bool) {
	if len(m.Results) == 0 {
		return Result{}, false
	}

	var (
		text       string
		confidence float64
	)
	for _, res := range m.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		if text != "" {
			text += " "
		}
		text += res.Alternatives[0].Content
		confidence += res.Alternatives[0].Confidence
	}
	if text == "" {
		return Result{}, false
	}

	start := m.Results[0].StartTime
	end := m.Results[len(m.Results)-1].EndTime

	return Result{
		Text:       text,
		Start:      start,
		Duration:   end - start,
		Confidence: confidence / float64(len(m.Results)),
		Final:      final,
	}, true
}
