package capture

import (
	"errors"
	"testing"

	"github.com/lingopipe/lingopipe/pkg/core/audio"
)

type collectSink struct {
	chunks []audio.Chunk
	err    error
}

func (c *collectSink) SendAudio(chunk audio.Chunk) error {
	if c.err != nil {
		return c.err
	}
	c.chunks = append(c.chunks, chunk)
	return nil
}

// feed pushes raw device bytes without opening a real device.
func feed(p *Pipeline, deviceRate int, samples []float32) {
	p.deviceRate = deviceRate
	p.onDeviceData(audio.EncodePCM16(samples))
}

func TestPipelineEmitsUplinkFrames(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	sink := &collectSink{}
	p.SetSink(sink)

	feed(p, 48000, make([]float32, DefaultBlockSize))

	if len(sink.chunks) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(sink.chunks))
	}
	chunk := sink.chunks[0]
	if want := "audio/pcm;rate=16000"; chunk.MimeType != want {
		t.Errorf("mime type %q, want %q", chunk.MimeType, want)
	}
	// 4096 samples at 48kHz decimate 3:1 to 1365 samples, 2 bytes each.
	raw, err := chunk.Bytes()
	if err != nil {
		t.Fatalf("decoding frame payload: %v", err)
	}
	if want := 1365 * 2; len(raw) != want {
		t.Errorf("payload %d bytes, want %d", len(raw), want)
	}
}

func TestPipelineBuffersPartialBlocks(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	sink := &collectSink{}
	p.SetSink(sink)

	feed(p, 48000, make([]float32, DefaultBlockSize-1))
	if len(sink.chunks) != 0 {
		t.Fatalf("partial block emitted %d frames", len(sink.chunks))
	}

	feed(p, 48000, make([]float32, 1))
	if len(sink.chunks) != 1 {
		t.Fatalf("expected 1 frame after completing the block, got %d", len(sink.chunks))
	}
}

func TestPipelineDropsWithoutSink(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())

	feed(p, 48000, make([]float32, DefaultBlockSize*2))

	if got := p.Dropped(); got != 2 {
		t.Errorf("dropped %d frames, want 2", got)
	}
}

func TestPipelineDropsOnSinkError(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	p.SetSink(&collectSink{err: errors.New("stream closed")})

	feed(p, 48000, make([]float32, DefaultBlockSize))

	if got := p.Dropped(); got != 1 {
		t.Errorf("dropped %d frames, want 1", got)
	}
}

func TestPipelineDetachSink(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	sink := &collectSink{}
	p.SetSink(sink)
	p.SetSink(nil)

	feed(p, 48000, make([]float32, DefaultBlockSize))

	if len(sink.chunks) != 0 {
		t.Errorf("detached sink received %d frames", len(sink.chunks))
	}
	if got := p.Dropped(); got != 1 {
		t.Errorf("dropped %d frames, want 1", got)
	}
}

func TestStopBeforeStart(t *testing.T) {
	p := NewPipeline(DefaultPipelineConfig())
	p.Stop()
	p.Stop()
}
