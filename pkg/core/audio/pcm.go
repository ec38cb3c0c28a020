// Package audio provides the sample-rate conversion and PCM codec primitives
// shared by the capture and playback pipelines.
package audio

import (
	"encoding/base64"
	"fmt"
	"math"
)

// QuantizeSample clamps one float sample to [-1, 1] and scales it to the
// signed 16-bit range, by 32767 for positive values and 32768 for negative so
// that -1.0 maps to -32768 without overflowing the positive range.
func QuantizeSample(f float32) int16 {
	if f > 1 {
		f = 1
	} else if f < -1 {
		f = -1
	}
	if f < 0 {
		return int16(math.Round(float64(f) * 32768))
	}
	return int16(math.Round(float64(f) * 32767))
}

// EncodePCM16 converts float samples to 16-bit signed little-endian PCM via
// QuantizeSample.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, f := range samples {
		s := QuantizeSample(f)
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

// DecodePCM16 converts 16-bit signed little-endian PCM into one float channel
// per audio channel, de-interleaving and normalizing by 1/32768. A trailing
// odd byte is ignored.
func DecodePCM16(data []byte, channels int) [][]float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(data) / 2 / channels
	out := make([][]float32, channels)
	for ch := range out {
		out[ch] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * 2
			s := int16(data[off]) | int16(data[off+1])<<8
			out[ch][i] = float32(s) / 32768.0
		}
	}
	return out
}

// Chunk is the transport envelope for one block of encoded audio: base64
// payload plus a mime tag carrying the sample format and rate, e.g.
// "audio/pcm;rate=16000".
type Chunk struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

// NewChunk wraps raw PCM bytes for transmission at the given sample rate.
func NewChunk(pcm []byte, rate int) Chunk {
	return Chunk{
		Data:     base64.StdEncoding.EncodeToString(pcm),
		MimeType: fmt.Sprintf("audio/pcm;rate=%d", rate),
	}
}

// Bytes decodes the chunk payload back to raw PCM bytes.
func (c Chunk) Bytes() ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(c.Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio chunk: %w", err)
	}
	return b, nil
}
