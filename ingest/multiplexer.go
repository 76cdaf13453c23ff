package ingest

import (
	"github.com/charmbracelet/log"

	"callpilot.dev/audio"
	"callpilot.dev/metrics"
)

// Fragment is one client audio message: base64-encoded little-endian
// PCM16 mono samples plus enough metadata to normalize them.
type Fragment struct {
	CallID      string `json:"call_id"`
	Sequence    int    `json:"sequence"`
	AudioBase64 string `json:"audio_base64"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
}

// Multiplexer is the ingress side of the audio pipeline: it normalizes
// each fragment to the target rate, slices it into fixed-duration
// frames, and pushes the frames onto the call's session queue.
type Multiplexer struct {
	registry  *Registry
	metrics   *metrics.Metrics
	logger    *log.Logger
	sliceSize int
}

func NewMultiplexer(registry *Registry, m *metrics.Metrics, logger *log.Logger) *Multiplexer {
	return &Multiplexer{
		registry:  registry,
		metrics:   m,
		logger:    logger,
		sliceSize: audio.SliceSize(audio.TargetSampleRate, audio.BytesPerSample, audio.SliceDuration),
	}
}

// HandleFragment ingests one audio fragment. Malformed fragments are
// dropped without surfacing an error upstream.
func (m *Multiplexer) HandleFragment(f Fragment) {
	if f.CallID == "" || f.AudioBase64 == "" {
		m.metrics.FragmentsDropped.Inc()
		m.logger.Debug("dropping malformed audio fragment",
			"call_id", f.CallID, "sequence", f.Sequence)
		return
	}

	samples, err := audio.DecodeBase64PCM(f.AudioBase64)
	if err != nil {
		m.metrics.FragmentsDropped.Inc()
		m.logger.Warn("dropping undecodable audio fragment",
			"call_id", f.CallID, "sequence", f.Sequence, "error", err)
		return
	}
	m.metrics.FragmentsReceived.Inc()

	inputRate := f.SampleRate
	if inputRate <= 0 {
		inputRate = audio.TargetSampleRate
	}
	resampled := audio.Resample(samples, inputRate, audio.TargetSampleRate)

	session := m.registry.GetOrCreate(f.CallID)
	for _, slice := range audio.Split(audio.SamplesToBytes(resampled), m.sliceSize) {
		session.queue.Push(slice)
		m.metrics.ChunksPushed.Inc()
	}
}

// HandleEnd signals end of audio for the call. Unknown calls are
// ignored; a queue is never created just to close it.
func (m *Multiplexer) HandleEnd(callID string) {
	session, ok := m.registry.Get(callID)
	if !ok {
		return
	}
	m.logger.Info("audio stream ended", "call_id", callID)
	session.queue.Close()
}
