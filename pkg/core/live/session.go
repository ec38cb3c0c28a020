package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lingopipe/lingopipe/pkg/core/audio"
	"github.com/lingopipe/lingopipe/pkg/core/capture"
	"github.com/lingopipe/lingopipe/pkg/core/playback"
	"github.com/lingopipe/lingopipe/pkg/core/transcript"
	"github.com/lingopipe/lingopipe/pkg/core/voice/gemini"
)

// speakingPollInterval is how often the speaking flag is sampled for change
// events.
const speakingPollInterval = 50 * time.Millisecond

// persistTimeout bounds one transcript write.
const persistTimeout = 10 * time.Second

// Stream is the bidirectional audio stream to the tutor model.
type Stream interface {
	SendAudio(chunk audio.Chunk) error
	Events() <-chan gemini.Event
	Close() error
}

// Microphone is the capture side of the pipeline.
type Microphone interface {
	Start() error
	SetSink(sink capture.FrameSink)
	Stop()
	Dropped() uint64
}

// Store persists session records and committed transcript messages.
type Store interface {
	// CreateSession records a new tutoring session and returns its id.
	CreateSession(ctx context.Context, name string, level ProficiencyLevel, topic string) (string, error)

	// SaveMessages appends committed messages to a session.
	SaveMessages(ctx context.Context, sessionID string, msgs []transcript.Message) error
}

// HistoryStore is optionally implemented by stores that can supply recent
// conversation history. When available, the newest messages are folded into
// the tutoring prompt so the tutor remembers earlier lessons.
type HistoryStore interface {
	RecentHistory(ctx context.Context, limit int) ([]transcript.Message, error)
}

// outputDevice is the playback side; satisfied by *playback.Output.
type outputDevice interface {
	Close() error
}

// Session is the orchestrator for one live tutoring conversation. It wires
// the microphone to the uplink, the downlink to the playback scheduler, and
// transcription fragments to the reconciler, and owns the lifecycle of all
// of them.
type Session struct {
	cfg    Config
	logger *slog.Logger

	scheduler *playback.Scheduler

	// tmu keeps compound reconciler operations (mutate then snapshot)
	// atomic with respect to each other.
	tmu        sync.Mutex
	reconciler *transcript.Reconciler

	// Acquired resources, set during Connect.
	mic       Microphone
	stream    Stream
	output    outputDevice
	sessionID string

	// connMu serializes Connect against shutdown so teardown never
	// interleaves with resource acquisition.
	connMu sync.Mutex

	mu      sync.RWMutex
	status  Status
	lastErr *SessionError

	events chan Event
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	// Factories, replaceable in tests.
	newMicrophone func(capture.PipelineConfig) Microphone
	dialStream    func(ctx context.Context, cfg gemini.ClientConfig) (Stream, error)
	openOutput    func(sched *playback.Scheduler) (outputDevice, error)
}

// NewSession creates a session. Nothing is acquired until Connect.
func NewSession(cfg Config) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:    cfg,
		logger: logger,
		scheduler: playback.NewScheduler(playback.SchedulerConfig{
			SpeakingDebounce: cfg.SpeakingDebounce,
		}),
		reconciler: transcript.NewReconciler(),
		status:     StatusDisconnected,
		events:     make(chan Event, 100),
		done:       make(chan struct{}),
	}

	s.newMicrophone = func(pc capture.PipelineConfig) Microphone {
		return capture.NewPipeline(pc)
	}
	s.dialStream = func(ctx context.Context, gc gemini.ClientConfig) (Stream, error) {
		return gemini.Connect(ctx, gc)
	}
	s.openOutput = func(sched *playback.Scheduler) (outputDevice, error) {
		return playback.NewOutput(sched)
	}

	return s
}

// Status returns the current session status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Err returns the error that ended the session, if any.
func (s *Session) Err() *SessionError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// SessionID returns the persisted session id, or empty when the session is
// not persisted.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Events returns the channel for receiving session events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Done returns a channel closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Transcripts returns the visible conversation, committed and in-progress.
func (s *Session) Transcripts() []transcript.Entry {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	return s.reconciler.Entries()
}

// Speaking reports whether tutor speech is currently playing.
func (s *Session) Speaking() bool {
	return s.scheduler.Speaking()
}

// Connect acquires the microphone, opens the output device, establishes the
// live stream, and starts audio flowing. On failure everything acquired so
// far is released in reverse order and a classified error is returned. The
// session tears itself down when ctx is cancelled.
//
// A session is one-shot: once it has been disconnected or has failed,
// Connect returns an error and a fresh session must be created.
func (s *Session) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed.Load() {
		return fmt.Errorf("connect on a finished session")
	}

	s.mu.Lock()
	if s.status != StatusDisconnected {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("connect in state %s", status)
	}
	s.status = StatusConnecting
	s.mu.Unlock()
	s.emit(&StatusChangedEvent{From: StatusDisconnected, To: StatusConnecting})

	s.ctx, s.cancel = context.WithCancel(context.Background())

	// History is best-effort: a failed fetch just means the tutor starts
	// without memory of earlier lessons.
	var history []transcript.Message
	if hs, ok := s.cfg.Store.(HistoryStore); ok && s.cfg.SystemInstruction == "" {
		h, err := hs.RecentHistory(s.ctx, s.cfg.HistoryLimit)
		if err != nil {
			s.reportPersistenceError("fetch conversation history", err)
		} else {
			history = h
		}
	}

	mic := s.newMicrophone(capture.PipelineConfig{
		BlockSize: s.cfg.CaptureBlockSize,
		Logger:    s.logger,
	})
	if err := mic.Start(); err != nil {
		serr := newDeviceError("acquire microphone", err)
		s.fail(serr)
		return serr
	}
	s.mic = mic

	out, err := s.openOutput(s.scheduler)
	if err != nil {
		mic.Stop()
		serr := newDeviceError("open output device", err)
		s.fail(serr)
		return serr
	}
	s.output = out

	stream, err := s.dialStream(s.ctx, gemini.ClientConfig{
		APIKey:            s.cfg.APIKey,
		Model:             s.cfg.Model,
		Voice:             s.cfg.Voice,
		SystemInstruction: s.systemInstruction(history),
	})
	if err != nil {
		out.Close()
		mic.Stop()
		serr := newConnectionError("open live stream", err)
		s.fail(serr)
		return serr
	}
	s.stream = stream

	// Persistence is best-effort: a failed session record downgrades the
	// conversation to in-memory only.
	if s.cfg.Store != nil {
		id, err := s.cfg.Store.CreateSession(s.ctx, s.cfg.UserName, s.cfg.Level, s.cfg.Topic)
		if err != nil {
			s.reportPersistenceError("create session record", err)
		} else {
			s.mu.Lock()
			s.sessionID = id
			s.mu.Unlock()
		}
	}

	mic.SetSink(s.countingSink(stream))

	s.wg.Add(2)
	go s.eventLoop()
	go s.speakingLoop()
	go s.watchContext(ctx)

	s.setStatus(StatusConnected)
	s.logger.Info("session connected",
		"user", s.cfg.UserName,
		"level", string(s.cfg.Level),
		"session_id", s.SessionID())
	return nil
}

func (s *Session) systemInstruction(history []transcript.Message) string {
	if s.cfg.SystemInstruction != "" {
		return s.cfg.SystemInstruction
	}
	return buildSystemInstruction(s.cfg.UserName, s.cfg.Level, s.cfg.Topic, history)
}

// countingSink wraps the stream so uplink metrics see every frame.
func (s *Session) countingSink(stream Stream) capture.FrameSink {
	return sinkFunc(func(chunk audio.Chunk) error {
		err := stream.SendAudio(chunk)
		if m := s.cfg.Metrics; m != nil {
			if err != nil {
				m.FramesDropped.Inc()
			} else {
				m.FramesSent.Inc()
			}
		}
		return err
	})
}

type sinkFunc func(audio.Chunk) error

func (f sinkFunc) SendAudio(chunk audio.Chunk) error { return f(chunk) }

// Disconnect shuts the session down cleanly. Safe to call more than once
// and from any goroutine.
func (s *Session) Disconnect() error {
	return s.shutdown(StatusDisconnected, "disconnected")
}

func (s *Session) shutdown(final Status, reason string) error {
	// Taking connMu means a shutdown requested mid-connect waits for the
	// connect sequence to finish, so every acquired resource is visible
	// here and no event is emitted after the channel closes.
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed.Swap(true) {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.mic != nil {
		s.mic.SetSink(nil)
		s.mic.Stop()
	}
	if s.stream != nil {
		s.stream.Close()
	}
	if s.output != nil {
		s.output.Close()
	}
	s.scheduler.Reset()

	// Wait for the loops so nothing emits after the channel closes.
	s.wg.Wait()

	s.tmu.Lock()
	s.reconciler.Reset()
	s.tmu.Unlock()

	s.mu.Lock()
	s.sessionID = ""
	if final == StatusDisconnected {
		s.lastErr = nil
	}
	s.mu.Unlock()

	s.setStatus(final)
	s.emit(&SessionClosedEvent{Reason: reason})
	close(s.events)
	close(s.done)

	s.logger.Info("session closed", "reason", reason)
	return nil
}

// fail records a fatal connect error and rolls the session back to a
// terminal error state.
func (s *Session) fail(serr *SessionError) {
	s.mu.Lock()
	s.lastErr = serr
	s.mu.Unlock()

	s.logger.Error("session failed", "kind", string(serr.Kind), "error", serr)
	s.emit(&ErrorEvent{Err: serr})
	s.closed.Store(true)
	if s.cancel != nil {
		s.cancel()
	}
	s.setStatus(StatusError)
	s.emit(&SessionClosedEvent{Reason: string(serr.Kind)})
	close(s.events)
	close(s.done)
}

// watchContext tears the session down when the caller's context ends.
func (s *Session) watchContext(ctx context.Context) {
	select {
	case <-ctx.Done():
		s.Disconnect()
	case <-s.done:
	}
}

// eventLoop dispatches inbound stream events until the stream ends.
func (s *Session) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.stream.Events():
			if !ok {
				if !s.closed.Load() {
					s.logger.Info("stream closed by server")
					go s.Disconnect()
				}
				return
			}
			s.handleStreamEvent(ev)
		}
	}
}

func (s *Session) handleStreamEvent(ev gemini.Event) {
	switch e := ev.(type) {
	case gemini.AudioEvent:
		s.handleAudio(e.Chunk)

	case gemini.InputTranscriptionEvent:
		s.addFragment(transcript.RoleUser, e.Text)

	case gemini.OutputTranscriptionEvent:
		s.addFragment(transcript.RoleTutor, e.Text)

	case gemini.InterruptedEvent:
		s.handleInterrupted()

	case gemini.TurnCompleteEvent:
		s.handleTurnComplete()

	case gemini.ErrorEvent:
		serr := newConnectionError("live stream", e.Err)
		s.mu.Lock()
		s.lastErr = serr
		s.mu.Unlock()
		if m := s.cfg.Metrics; m != nil {
			m.StreamErrors.Inc()
		}
		s.emit(&ErrorEvent{Err: serr})
		go s.shutdown(StatusError, string(serr.Kind))
	}
}

// handleAudio decodes one downlink chunk and schedules it for playback.
func (s *Session) handleAudio(chunk audio.Chunk) {
	raw, err := chunk.Bytes()
	if err != nil {
		s.logger.Warn("dropping undecodable audio chunk", "error", err)
		return
	}
	samples := audio.DecodePCM16(raw, 1)[0]
	if len(samples) == 0 {
		return
	}
	s.scheduler.Enqueue(samples)
	if m := s.cfg.Metrics; m != nil {
		m.SegmentsScheduled.Inc()
	}
}

func (s *Session) addFragment(role transcript.Role, text string) {
	s.tmu.Lock()
	s.reconciler.AddFragment(role, text)
	entries := s.reconciler.Entries()
	s.tmu.Unlock()

	s.emit(&TranscriptUpdatedEvent{Entries: entries})
}

// handleInterrupted cuts playback immediately and abandons the tutor's open
// turn; the abandoned text is never persisted.
func (s *Session) handleInterrupted() {
	s.scheduler.Interrupt()

	s.tmu.Lock()
	s.reconciler.AbandonTutorTurn()
	s.tmu.Unlock()

	if m := s.cfg.Metrics; m != nil {
		m.Interruptions.Inc()
	}
	s.emit(&InterruptedEvent{})
	s.emit(&SpeakingChangedEvent{Speaking: false})
}

// handleTurnComplete commits the open turns and persists the resulting
// messages in the background.
func (s *Session) handleTurnComplete() {
	s.tmu.Lock()
	msgs := s.reconciler.CommitTurn()
	s.tmu.Unlock()

	if len(msgs) == 0 {
		return
	}
	if m := s.cfg.Metrics; m != nil {
		m.TurnsCommitted.Inc()
	}
	s.emit(&TurnCommittedEvent{Messages: msgs})

	sessionID := s.SessionID()
	if s.cfg.Store == nil || sessionID == "" {
		return
	}
	s.wg.Add(1)
	go s.persistTurn(sessionID, msgs)
}

func (s *Session) persistTurn(sessionID string, msgs []transcript.Message) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.cfg.Store.SaveMessages(ctx, sessionID, msgs); err != nil {
		s.reportPersistenceError("save transcript", err)
		return
	}
	if m := s.cfg.Metrics; m != nil {
		m.MessagesPersisted.Add(float64(len(msgs)))
	}
}

// reportPersistenceError surfaces a storage failure without ending the
// session.
func (s *Session) reportPersistenceError(message string, err error) {
	serr := newPersistenceError(message, err)
	s.logger.Warn("persistence failure", "op", message, "error", err)
	if m := s.cfg.Metrics; m != nil {
		m.PersistenceFailures.Inc()
	}
	s.emit(&ErrorEvent{Err: serr})
}

// speakingLoop samples the speaking flag and emits change events.
func (s *Session) speakingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(speakingPollInterval)
	defer ticker.Stop()

	last := false
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			now := s.scheduler.Speaking()
			if now != last {
				last = now
				s.emit(&SpeakingChangedEvent{Speaking: now})
			}
		}
	}
}

// setStatus updates the status and emits a change event.
func (s *Session) setStatus(newStatus Status) {
	s.mu.Lock()
	oldStatus := s.status
	s.status = newStatus
	s.mu.Unlock()

	if oldStatus != newStatus {
		s.emit(&StatusChangedEvent{From: oldStatus, To: newStatus})
	}
}

// emit sends an event to the events channel, dropping it if the consumer
// has fallen behind.
func (s *Session) emit(event Event) {
	select {
	case s.events <- event:
	default:
	}
}
