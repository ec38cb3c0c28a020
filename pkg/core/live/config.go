package live

import (
	"log/slog"
	"time"

	"github.com/lingopipe/lingopipe/pkg/core/capture"
	"github.com/lingopipe/lingopipe/pkg/core/playback"
	"github.com/lingopipe/lingopipe/pkg/core/voice/gemini"
	"github.com/lingopipe/lingopipe/pkg/metrics"
)

// Status represents the connection state of the live session.
type Status int

const (
	// StatusDisconnected is the initial state and the state after a clean
	// disconnect.
	StatusDisconnected Status = iota
	// StatusConnecting is while devices and the stream are being acquired.
	StatusConnecting
	// StatusConnected is when audio is flowing in both directions.
	StatusConnected
	// StatusError is a terminal failure state.
	StatusError
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ProficiencyLevel is the student's self-assessed English level.
type ProficiencyLevel string

const (
	LevelBeginner     ProficiencyLevel = "Beginner (A1-A2)"
	LevelIntermediate ProficiencyLevel = "Intermediate (B1-B2)"
	LevelAdvanced     ProficiencyLevel = "Advanced (C1-C2)"
)

// DefaultHistoryLimit is how many persisted messages feed the tutoring
// prompt by default.
const DefaultHistoryLimit = 20

// Config holds all configuration for a live tutoring session.
type Config struct {
	// APIKey authenticates the live stream. Required.
	APIKey string `json:"-"`

	// Model overrides the default live model.
	Model string `json:"model,omitempty"`

	// Voice overrides the default prebuilt voice.
	Voice string `json:"voice,omitempty"`

	// UserName is the student's name, woven into the tutoring prompt and
	// recorded with the session.
	UserName string `json:"user_name"`

	// Level is the student's proficiency level.
	Level ProficiencyLevel `json:"level"`

	// Topic is an optional conversation topic.
	Topic string `json:"topic,omitempty"`

	// SystemInstruction replaces the built-in tutoring prompt entirely.
	SystemInstruction string `json:"system_instruction,omitempty"`

	// CaptureBlockSize is the number of native-rate samples per uplink
	// block. Default: capture.DefaultBlockSize.
	CaptureBlockSize int `json:"capture_block_size"`

	// SpeakingDebounce delays clearing the speaking flag after playback
	// drains. Default: playback.DefaultSpeakingDebounce.
	SpeakingDebounce time.Duration `json:"speaking_debounce"`

	// HistoryLimit caps how many recent persisted messages are fetched
	// for the tutoring prompt when the store supports it.
	// Default: DefaultHistoryLimit.
	HistoryLimit int `json:"history_limit"`

	// Store persists sessions and transcripts. Optional; without it the
	// conversation is in-memory only.
	Store Store `json:"-"`

	// Metrics receives session counters. Optional.
	Metrics *metrics.Metrics `json:"-"`

	// Logger for session events. Default: slog.Default().
	Logger *slog.Logger `json:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:            gemini.DefaultModel,
		Voice:            gemini.DefaultVoice,
		Level:            LevelBeginner,
		CaptureBlockSize: capture.DefaultBlockSize,
		SpeakingDebounce: playback.DefaultSpeakingDebounce,
		HistoryLimit:     DefaultHistoryLimit,
	}
}
