package gemini

import "github.com/lingopipe/lingopipe/pkg/core/audio"

// Wire types for the BidiGenerateContent websocket protocol. Client frames
// carry exactly one of the top-level payloads.

type clientMessage struct {
	Setup         *setupPayload  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type setupPayload struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string       `json:"text,omitempty"`
	InlineData *audio.Chunk `json:"inlineData,omitempty"`
}

type realtimeInput struct {
	MediaChunks []audio.Chunk `json:"mediaChunks"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
}

type serverContent struct {
	ModelTurn           *content              `json:"modelTurn,omitempty"`
	Interrupted         bool                  `json:"interrupted,omitempty"`
	InputTranscription  *transcriptionPayload `json:"inputTranscription,omitempty"`
	OutputTranscription *transcriptionPayload `json:"outputTranscription,omitempty"`
	TurnComplete        bool                  `json:"turnComplete,omitempty"`
}

type transcriptionPayload struct {
	Text string `json:"text"`
}
