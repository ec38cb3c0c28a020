// Package live implements real-time voice tutoring sessions.
//
// A session wires four components together and owns their lifecycle:
//
//   - capture.Pipeline: microphone → fixed blocks → 16kHz PCM uplink
//   - gemini.Client: bidirectional websocket stream to the tutor model
//   - playback.Scheduler: gap-free 24kHz playback with interruption
//   - transcript.Reconciler: streaming fragments → ordered conversation
//
// # Data Flow
//
//	Mic → block assembly → downsample → PCM16 → Stream (realtimeInput)
//
//	Stream → audio chunks → Scheduler → output device
//	       → transcription fragments → Reconciler → events
//	       → interrupted → Scheduler.Interrupt + abandon tutor turn
//	       → turnComplete → commit turn pair → Store
//
// # State Machine
//
// The session moves through these states:
//
//	DISCONNECTED → CONNECTING → CONNECTED → DISCONNECTED
//	                    │            │
//	                    └────────────┴────→ ERROR
//
// Disconnect is idempotent and runs automatically when the context passed
// to Connect is cancelled. Errors are classified by ErrorKind; persistence
// failures are reported but never end the session.
//
// # Usage
//
//	cfg := live.DefaultConfig()
//	cfg.APIKey = os.Getenv("GEMINI_API_KEY")
//	cfg.UserName = "Ana"
//	cfg.Level = live.LevelIntermediate
//
//	session := live.NewSession(cfg)
//	if err := session.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Disconnect()
//
//	for event := range session.Events() {
//	    switch e := event.(type) {
//	    case *live.TranscriptUpdatedEvent:
//	        render(e.Entries)
//	    case *live.SpeakingChangedEvent:
//	        setAvatarSpeaking(e.Speaking)
//	    }
//	}
package live
