// Package playback renders decoded tutor speech gap-free and in order, and
// supports abrupt interruption.
package playback

import (
	"sync"
	"time"

	"github.com/lingopipe/lingopipe/pkg/core/audio"
)

// DefaultSpeakingDebounce is how long the speaking flag stays set after the
// last segment drains, so back-to-back segments don't flicker it.
const DefaultSpeakingDebounce = 200 * time.Millisecond

// segment is one scheduled unit of tutor speech on the device timeline.
// Positions are in output frames (samples at the output rate).
type segment struct {
	id      uint64
	samples []float32
	start   int64
}

func (s *segment) end() int64 {
	return s.start + int64(len(s.samples))
}

// SchedulerConfig configures the playback scheduler.
type SchedulerConfig struct {
	// SampleRate of the output device in Hz. Default: audio.OutputRate.
	SampleRate int

	// SpeakingDebounce delays clearing the speaking flag after the active
	// set drains. Default: DefaultSpeakingDebounce.
	SpeakingDebounce time.Duration
}

// DefaultSchedulerConfig returns a SchedulerConfig with standard values.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		SampleRate:       audio.OutputRate,
		SpeakingDebounce: DefaultSpeakingDebounce,
	}
}

// Scheduler sequences decoded segments for gap-free playback. It is the pull
// source for the output device: Read renders the schedule into 16-bit PCM,
// and the number of frames pulled so far is the device clock. A segment is
// scheduled at max(cursor, device clock), so segments never overlap and a
// late arrival starts immediately instead of stalling.
type Scheduler struct {
	cfg SchedulerConfig

	mu        sync.Mutex
	cursor    int64 // next free start, frames
	readFrame int64 // device clock, frames pulled by the output
	active    map[uint64]*segment
	nextID    uint64
	speaking  bool
	drainedAt time.Time

	// Counters for observability; read via Stats.
	scheduled  uint64
	interrupts uint64

	now func() time.Time
}

// NewScheduler creates a scheduler with the given configuration.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.OutputRate
	}
	if cfg.SpeakingDebounce <= 0 {
		cfg.SpeakingDebounce = DefaultSpeakingDebounce
	}
	return &Scheduler{
		cfg:    cfg,
		active: make(map[uint64]*segment),
		now:    time.Now,
	}
}

// Enqueue schedules one decoded segment. The effect chain is applied here,
// once per segment, before the samples reach the device.
func (s *Scheduler) Enqueue(samples []float32) {
	if len(samples) == 0 {
		return
	}
	processed := newChain(s.cfg.SampleRate).process(samples)

	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.cursor
	if s.readFrame > start {
		start = s.readFrame
	}
	s.cursor = start + int64(len(processed))

	s.nextID++
	seg := &segment{id: s.nextID, samples: processed, start: start}
	s.active[seg.id] = seg
	s.scheduled++
	s.speaking = true
	s.drainedAt = time.Time{}
}

// Interrupt stops every scheduled segment immediately, clears the active set,
// resets the cursor to zero so the next segment starts at the current device
// time, and clears the speaking flag.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = make(map[uint64]*segment)
	s.cursor = 0
	s.speaking = false
	s.drainedAt = time.Time{}
	s.interrupts++
}

// Read renders the next len(p)/2 frames of the schedule as 16-bit
// little-endian PCM, inserting silence where nothing is scheduled. It always
// fills p so the output device never starves. Read advances the device clock.
func (s *Scheduler) Read(p []byte) (int, error) {
	frames := len(p) / 2

	s.mu.Lock()
	from := s.readFrame
	to := from + int64(frames)

	for i := 0; i < frames; i++ {
		p[i*2] = 0
		p[i*2+1] = 0
	}

	for id, seg := range s.active {
		if seg.start >= to {
			continue
		}
		// Overlap of [from, to) with the segment's span.
		lo, hi := seg.start, seg.end()
		if lo < from {
			lo = from
		}
		if hi > to {
			hi = to
		}
		for f := lo; f < hi; f++ {
			sv := audio.QuantizeSample(seg.samples[f-seg.start])
			off := int(f-from) * 2
			p[off] = byte(sv)
			p[off+1] = byte(sv >> 8)
		}
		if seg.end() <= to {
			delete(s.active, id)
		}
	}

	s.readFrame = to
	if len(s.active) == 0 && s.speaking && s.drainedAt.IsZero() {
		s.drainedAt = s.now()
	}
	s.mu.Unlock()

	return frames * 2, nil
}

// Speaking reports whether tutor speech is active. After the last segment
// drains the flag stays set for the configured debounce window.
func (s *Scheduler) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.speaking {
		return false
	}
	if len(s.active) > 0 {
		return true
	}
	if s.drainedAt.IsZero() {
		return true
	}
	if s.now().Sub(s.drainedAt) < s.cfg.SpeakingDebounce {
		return true
	}
	s.speaking = false
	return false
}

// Reset clears all scheduling state, including the device clock. Used on
// disconnect.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = make(map[uint64]*segment)
	s.cursor = 0
	s.readFrame = 0
	s.speaking = false
	s.drainedAt = time.Time{}
}

// SampleRate returns the output sample rate in Hz.
func (s *Scheduler) SampleRate() int {
	return s.cfg.SampleRate
}

// Stats returns the number of segments scheduled and interruptions handled.
func (s *Scheduler) Stats() (scheduled, interrupts uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheduled, s.interrupts
}

// activeCount reports the size of the active set. Test helper.
func (s *Scheduler) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// nextStart reports where a segment enqueued now would begin. Test helper.
func (s *Scheduler) nextStart() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readFrame > s.cursor {
		return s.readFrame
	}
	return s.cursor
}
