package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// DecodeBase64PCM decodes base64-encoded little-endian PCM16 mono
// audio into samples. A trailing odd byte is dropped.
func DecodeBase64PCM(encoded string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return BytesToSamples(raw), nil
}

// BytesToSamples reinterprets little-endian PCM16 bytes as samples.
func BytesToSamples(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}

// SamplesToBytes serializes samples as little-endian PCM16 bytes.
func SamplesToBytes(samples []int16) []byte {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(s))
	}
	return raw
}
