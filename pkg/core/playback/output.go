package playback

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// Output owns the output audio device and pulls rendered frames from a
// Scheduler. The device runs for the lifetime of the session; gaps in the
// schedule come out as silence.
type Output struct {
	player *oto.Player

	closeOnce sync.Once
}

// NewOutput opens the default output device at the scheduler's sample rate
// and starts pulling from it.
func NewOutput(sched *Scheduler) (*Output, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sched.SampleRate(),
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		// ~100ms of device buffer: low latency without glitching.
		BufferSize: 100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open output device: %w", err)
	}
	<-ready

	player := ctx.NewPlayer(sched)
	player.Play()

	return &Output{player: player}, nil
}

// Close releases the output device. Safe to call more than once and on a
// never-started output.
func (o *Output) Close() error {
	if o == nil {
		return nil
	}
	var err error
	o.closeOnce.Do(func() {
		if o.player != nil {
			err = o.player.Close()
		}
	})
	return err
}
