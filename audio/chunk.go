package audio

import "time"

// Frame parameters expected by the streaming transcription API.
const (
	TargetSampleRate = 16000
	BytesPerSample   = 2
	SliceDuration    = 100 * time.Millisecond
)

// SliceSize returns the byte length of one fixed-duration slice of
// PCM audio. The default parameters give 3200-byte slices.
func SliceSize(sampleRate, bytesPerSample int, d time.Duration) int {
	return int(float64(sampleRate*bytesPerSample) * d.Seconds())
}

// Split partitions buf into consecutive slices of at most size bytes.
// The slices share buf's backing array. The final slice may be
// shorter; an empty buffer yields no slices.
func Split(buf []byte, size int) [][]byte {
	if len(buf) == 0 || size <= 0 {
		return nil
	}

	chunks := make([][]byte, 0, (len(buf)+size-1)/size)
	for offset := 0; offset < len(buf); offset += size {
		end := offset + size
		if end > len(buf) {
			end = len(buf)
		}
		chunks = append(chunks, buf[offset:end])
	}
	return chunks
}
