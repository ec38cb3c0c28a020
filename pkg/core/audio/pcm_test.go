package audio

import (
	"math"
	"strings"
	"testing"
)

func TestEncodePCM16Scaling(t *testing.T) {
	tests := []struct {
		name   string
		sample float32
		want   int16
	}{
		{"zero", 0, 0},
		{"full positive", 1.0, 32767},
		{"full negative", -1.0, -32768},
		{"half positive", 0.5, 16384},
		{"half negative", -0.5, -16384},
		{"clamped above", 2.5, 32767},
		{"clamped below", -2.5, -32768},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := QuantizeSample(tt.sample); got != tt.want {
				t.Errorf("QuantizeSample: expected %d, got %d", tt.want, got)
			}
			b := EncodePCM16([]float32{tt.sample})
			got := int16(b[0]) | int16(b[1])<<8
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestCodecRoundTrip(t *testing.T) {
	// Quantize the test signal to the codec's 16-bit grid first; the
	// 1/32768 error bound only holds for 16-bit-precision inputs.
	raw := make([]float32, 512)
	for i := range raw {
		raw[i] = float32(math.Sin(2 * math.Pi * float64(i) / 64))
	}
	in := DecodePCM16(EncodePCM16(raw), 1)[0]

	decoded := DecodePCM16(EncodePCM16(in), 1)
	if len(decoded) != 1 {
		t.Fatalf("expected 1 channel, got %d", len(decoded))
	}
	out := decoded[0]
	if len(out) != len(in) {
		t.Fatalf("expected %d samples, got %d", len(in), len(out))
	}
	for i := range in {
		if diff := math.Abs(float64(out[i] - in[i])); diff > 1.0/32768.0+1e-7 {
			t.Errorf("sample %d: round-trip error %v exceeds 1/32768", i, diff)
		}
	}
}

func TestDecodePCM16DeInterleaves(t *testing.T) {
	// Two channels: left = 0.25, right = -0.25, two frames.
	left := EncodePCM16([]float32{0.25})
	right := EncodePCM16([]float32{-0.25})
	interleaved := append(append(append([]byte{}, left...), right...), append(left, right...)...)

	chans := DecodePCM16(interleaved, 2)
	if len(chans) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(chans))
	}
	for i, frames := 0, len(chans[0]); i < frames; i++ {
		if chans[0][i] < 0 {
			t.Errorf("left frame %d: expected positive, got %v", i, chans[0][i])
		}
		if chans[1][i] > 0 {
			t.Errorf("right frame %d: expected negative, got %v", i, chans[1][i])
		}
	}
}

func TestChunkEnvelope(t *testing.T) {
	pcm := EncodePCM16([]float32{0.1, -0.1, 0.2})
	chunk := NewChunk(pcm, InputRate)

	if !strings.HasSuffix(chunk.MimeType, "rate=16000") {
		t.Errorf("unexpected mime tag %q", chunk.MimeType)
	}
	if !strings.HasPrefix(chunk.MimeType, "audio/pcm") {
		t.Errorf("unexpected mime tag %q", chunk.MimeType)
	}

	back, err := chunk.Bytes()
	if err != nil {
		t.Fatalf("decode chunk: %v", err)
	}
	if len(back) != len(pcm) {
		t.Fatalf("expected %d bytes, got %d", len(pcm), len(back))
	}
	for i := range pcm {
		if back[i] != pcm[i] {
			t.Fatalf("byte %d differs after round trip", i)
		}
	}
}

func TestChunkBytesRejectsBadBase64(t *testing.T) {
	c := Chunk{Data: "not base64!!!", MimeType: "audio/pcm;rate=16000"}
	if _, err := c.Bytes(); err == nil {
		t.Fatal("expected error for invalid base64 payload")
	}
}
