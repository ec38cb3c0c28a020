// Package capture reads the microphone and turns it into uplink audio
// frames: fixed blocks at the device's native rate, downsampled to the
// uplink rate and encoded as 16-bit PCM.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/lingopipe/lingopipe/pkg/core/audio"
)

// DefaultBlockSize is how many device-rate samples make one uplink block.
const DefaultBlockSize = 4096

// FrameSink receives encoded uplink frames. Implemented by the live stream
// client.
type FrameSink interface {
	SendAudio(chunk audio.Chunk) error
}

// PipelineConfig configures the capture pipeline.
type PipelineConfig struct {
	// BlockSize is the number of native-rate samples per uplink block.
	// Default: DefaultBlockSize.
	BlockSize int

	// TargetRate is the uplink sample rate in Hz. Default: audio.InputRate.
	TargetRate int

	// Logger for pipeline events. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultPipelineConfig returns a PipelineConfig with standard values.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BlockSize:  DefaultBlockSize,
		TargetRate: audio.InputRate,
	}
}

// Pipeline owns the capture device. Audio flows from the device callback
// through block assembly, downsampling and PCM encoding into the sink. When
// the sink rejects a frame the frame is dropped and counted; capture never
// blocks on the network.
type Pipeline struct {
	cfg    PipelineConfig
	logger *slog.Logger

	mu         sync.Mutex
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	running    bool
	deviceRate int

	sink      atomic.Pointer[sinkBox]
	assembler *blockAssembler
	dropped   atomic.Uint64
}

// sinkBox wraps the interface so atomic.Pointer can hold it.
type sinkBox struct{ s FrameSink }

// NewPipeline creates a pipeline. The device is not opened until Start.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.TargetRate <= 0 {
		cfg.TargetRate = audio.InputRate
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		assembler: newBlockAssembler(cfg.BlockSize),
	}
}

// SetSink attaches or replaces the frame sink. A nil sink detaches; frames
// captured while detached are dropped and counted.
func (p *Pipeline) SetSink(sink FrameSink) {
	if sink == nil {
		p.sink.Store(nil)
		return
	}
	p.sink.Store(&sinkBox{s: sink})
}

// Start opens the default capture device at its native sample rate and
// begins delivering frames. Acquisition failures are classified: check the
// returned error with errors.Is against ErrDeviceUnavailable and
// ErrPermissionDenied.
func (p *Pipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	malgoCtx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return classifyDeviceError(err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	// SampleRate zero lets the backend pick the device's native rate; the
	// downsampler handles the conversion to the uplink rate.
	deviceConfig.SampleRate = 0
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			p.onDeviceData(input)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return classifyDeviceError(err)
	}

	// The callback can fire as soon as the device starts, so the rate must
	// be in place first.
	p.deviceRate = int(device.SampleRate())

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = malgoCtx.Uninit()
		malgoCtx.Free()
		return classifyDeviceError(err)
	}

	p.malgoCtx = malgoCtx
	p.device = device
	p.running = true

	p.logger.Info("capture started",
		"device_rate", p.deviceRate,
		"block_size", p.cfg.BlockSize,
		"target_rate", p.cfg.TargetRate)
	return nil
}

// onDeviceData runs on the audio thread. It must not block.
func (p *Pipeline) onDeviceData(input []byte) {
	if len(input) == 0 {
		return
	}
	samples := audio.DecodePCM16(input, 1)[0]
	p.assembler.push(samples, p.emitBlock)
}

func (p *Pipeline) emitBlock(block []float32) {
	box := p.sink.Load()
	if box == nil {
		p.dropped.Add(1)
		return
	}

	down := audio.Downsample(block, p.deviceRate, p.cfg.TargetRate)
	chunk := audio.NewChunk(audio.EncodePCM16(down), p.cfg.TargetRate)
	if err := box.s.SendAudio(chunk); err != nil {
		if p.dropped.Add(1) == 1 {
			p.logger.Warn("dropping capture frames", "error", err)
		}
	}
}

// Stop releases the capture device. Safe to call more than once and before
// Start.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.running = false

	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.malgoCtx != nil {
		_ = p.malgoCtx.Uninit()
		p.malgoCtx.Free()
		p.malgoCtx = nil
	}
	p.assembler.reset()
	p.logger.Info("capture stopped", "dropped_frames", p.dropped.Load())
}

// Dropped reports how many blocks were discarded because no sink was
// attached or the sink rejected them.
func (p *Pipeline) Dropped() uint64 {
	return p.dropped.Load()
}

// DeviceRate reports the native sample rate of the open device, or zero
// before Start.
func (p *Pipeline) DeviceRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceRate
}
