// Package gemini implements a bidirectional websocket client for the
// Gemini Live API (BidiGenerateContent): 16kHz PCM uplink, 24kHz PCM
// downlink, with live transcription of both sides.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lingopipe/lingopipe/pkg/core/audio"
)

const (
	// DefaultModel is the native-audio live model.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

	// DefaultVoice is the prebuilt voice used for synthesized speech.
	DefaultVoice = "Kore"

	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	handshakeTimeout = 10 * time.Second
	setupTimeout     = 15 * time.Second
)

// ClientConfig configures a live stream connection.
type ClientConfig struct {
	// APIKey authenticates the connection. Required.
	APIKey string

	// Model overrides DefaultModel.
	Model string

	// Voice overrides DefaultVoice.
	Voice string

	// SystemInstruction is the tutoring prompt sent in the setup frame.
	SystemInstruction string

	// Endpoint overrides the production websocket URL. Used in tests.
	Endpoint string
}

// Client is a live bidirectional stream. Writes are serialized; inbound
// frames are decoded on a background loop and surfaced through Events.
type Client struct {
	conn    *websocket.Conn
	events  chan Event
	done    chan struct{}
	closed  atomic.Bool
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// Connect dials the live endpoint, sends the setup frame, and waits for the
// server's setup acknowledgment before returning.
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	if err := writeSetup(conn, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	if err := awaitSetupComplete(conn); err != nil {
		conn.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Client{
		conn:   conn,
		events: make(chan Event, 100),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}

	go c.readLoop()

	return c, nil
}

func writeSetup(conn *websocket.Conn, cfg ClientConfig) error {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}

	setup := &setupPayload{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice},
				},
			},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &content{
			Parts: []part{{Text: cfg.SystemInstruction}},
		}
	}

	if err := conn.WriteJSON(clientMessage{Setup: setup}); err != nil {
		return fmt.Errorf("send setup: %w", err)
	}
	return nil
}

func awaitSetupComplete(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(setupTimeout))
	defer conn.SetReadDeadline(time.Time{})

	_, data, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read setup ack: %w", err)
	}
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parse setup ack: %w", err)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("unexpected frame before setup ack")
	}
	return nil
}

func (c *Client) readLoop() {
	defer func() {
		close(c.events)
		close(c.done)
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.emit(ErrorEvent{Err: err})
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.ServerContent == nil {
			continue
		}
		c.dispatch(msg.ServerContent)
	}
}

// dispatch emits events for one serverContent frame. Interruption comes
// first so playback is cut before any new material lands.
func (c *Client) dispatch(sc *serverContent) {
	if sc.Interrupted {
		c.emit(InterruptedEvent{})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		c.emit(InputTranscriptionEvent{Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		c.emit(OutputTranscriptionEvent{Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				c.emit(AudioEvent{Chunk: *p.InlineData})
			}
		}
	}
	if sc.TurnComplete {
		c.emit(TurnCompleteEvent{})
	}
}

func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// SendAudio sends one uplink audio chunk as realtime input.
func (c *Client) SendAudio(chunk audio.Chunk) error {
	if c.closed.Load() {
		return fmt.Errorf("stream closed")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(clientMessage{
		RealtimeInput: &realtimeInput{MediaChunks: []audio.Chunk{chunk}},
	})
}

// Events returns the inbound event channel. It closes when the stream ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done returns a channel closed when the read loop exits.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close shuts the stream down. Safe to call more than once.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()

	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}
