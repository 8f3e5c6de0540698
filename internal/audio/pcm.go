// Package audio converts the raw speech payloads returned by generation
// providers into playable form. Providers return little-endian 16-bit PCM at
// 24 kHz mono; playback wants normalized float samples or a WAV container.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SampleRate is the fixed sample rate of provider speech output.
const SampleRate = 24000

// NumChannels is always mono for provider speech output.
const NumChannels = 1

// DecodePCM16 converts raw little-endian 16-bit PCM bytes to normalized
// float32 amplitudes in [-1, 1). Each sample is divided by 32768.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("pcm data has odd length %d", len(data))
	}

	samples := make([]float32, len(data)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples, nil
}

// EncodePCM16 converts normalized float32 amplitudes back to little-endian
// 16-bit PCM bytes, clamping out-of-range values.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * 32768.0
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// WAV wraps raw PCM16 bytes in a minimal RIFF/WAVE container so the output
// is playable by standard tools.
func WAV(pcm []byte, sampleRate, numChannels int) []byte {
	const bitsPerSample = 16
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM format
	binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
