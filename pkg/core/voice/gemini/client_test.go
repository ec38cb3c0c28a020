package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lingopipe/lingopipe/pkg/core/audio"
)

var upgrader = websocket.Upgrader{}

// liveServer is a minimal BidiGenerateContent endpoint for tests. The handler
// receives the upgraded connection after the setup exchange.
func liveServer(t *testing.T, handler func(conn *websocket.Conn, setup setupPayload)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") == "" {
			http.Error(w, "missing key", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var first clientMessage
		if err := conn.ReadJSON(&first); err != nil {
			t.Errorf("reading setup frame: %v", err)
			return
		}
		if first.Setup == nil {
			t.Error("expected a setup frame first")
			return
		}
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			return
		}
		if handler != nil {
			handler(conn, *first.Setup)
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectTest(t *testing.T, srv *httptest.Server, cfg ClientConfig) *Client {
	t.Helper()
	cfg.Endpoint = wsURL(srv)
	if cfg.APIKey == "" {
		cfg.APIKey = "test-key"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	c, err := Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConnectSendsSetup(t *testing.T) {
	setupCh := make(chan setupPayload, 1)
	srv := liveServer(t, func(conn *websocket.Conn, setup setupPayload) {
		setupCh <- setup
	})
	defer srv.Close()

	connectTest(t, srv, ClientConfig{
		SystemInstruction: "You are a patient tutor.",
	})

	var setup setupPayload
	select {
	case setup = <-setupCh:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for setup frame")
	}

	if want := "models/" + DefaultModel; setup.Model != want {
		t.Errorf("model %q, want %q", setup.Model, want)
	}
	if got := setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Errorf("response modalities %v, want [AUDIO]", got)
	}
	if got := setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != DefaultVoice {
		t.Errorf("voice %q, want %q", got, DefaultVoice)
	}
	if setup.SystemInstruction == nil || len(setup.SystemInstruction.Parts) != 1 ||
		setup.SystemInstruction.Parts[0].Text != "You are a patient tutor." {
		t.Errorf("system instruction not carried: %+v", setup.SystemInstruction)
	}
	if setup.InputAudioTranscription == nil || setup.OutputAudioTranscription == nil {
		t.Error("transcription must be requested for both directions")
	}
}

func TestSendAudio(t *testing.T) {
	frames := make(chan clientMessage, 1)
	srv := liveServer(t, func(conn *websocket.Conn, _ setupPayload) {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err == nil {
			frames <- msg
		}
	})
	defer srv.Close()

	c := connectTest(t, srv, ClientConfig{})

	chunk := audio.NewChunk([]byte{0x01, 0x02}, 16000)
	if err := c.SendAudio(chunk); err != nil {
		t.Fatalf("send audio: %v", err)
	}

	select {
	case msg := <-frames:
		if msg.RealtimeInput == nil || len(msg.RealtimeInput.MediaChunks) != 1 {
			t.Fatalf("unexpected frame %+v", msg)
		}
		got := msg.RealtimeInput.MediaChunks[0]
		if got.MimeType != "audio/pcm;rate=16000" || got.Data != chunk.Data {
			t.Errorf("chunk mangled in flight: %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for realtime input frame")
	}
}

func TestServerContentDispatch(t *testing.T) {
	downChunk := audio.NewChunk([]byte{0x0a, 0x0b}, 24000)
	srv := liveServer(t, func(conn *websocket.Conn, _ setupPayload) {
		frames := []serverMessage{
			{ServerContent: &serverContent{
				InputTranscription: &transcriptionPayload{Text: "I want "},
			}},
			{ServerContent: &serverContent{
				ModelTurn:           &content{Parts: []part{{InlineData: &downChunk}}},
				OutputTranscription: &transcriptionPayload{Text: "Você quer"},
			}},
			{ServerContent: &serverContent{Interrupted: true}},
			{ServerContent: &serverContent{TurnComplete: true}},
		}
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		// Hold the connection open until the client hangs up.
		conn.ReadMessage()
	})
	defer srv.Close()

	c := connectTest(t, srv, ClientConfig{})

	var got []Event
	timeout := time.After(5 * time.Second)
	for len(got) < 5 {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatalf("events channel closed after %d events", len(got))
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatalf("timed out after %d events", len(got))
		}
	}

	if ev, ok := got[0].(InputTranscriptionEvent); !ok || ev.Text != "I want " {
		t.Errorf("event 0: %#v", got[0])
	}
	if ev, ok := got[1].(OutputTranscriptionEvent); !ok || ev.Text != "Você quer" {
		t.Errorf("event 1: %#v", got[1])
	}
	if ev, ok := got[2].(AudioEvent); !ok || ev.Chunk.Data != downChunk.Data {
		t.Errorf("event 2: %#v", got[2])
	}
	if _, ok := got[3].(InterruptedEvent); !ok {
		t.Errorf("event 3: %#v", got[3])
	}
	if _, ok := got[4].(TurnCompleteEvent); !ok {
		t.Errorf("event 4: %#v", got[4])
	}
}

func TestConnectRejectsNonSetupAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var first clientMessage
		conn.ReadJSON(&first)
		conn.WriteJSON(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
	}))
	defer srv.Close()

	_, err := Connect(context.Background(), ClientConfig{
		APIKey:   "test-key",
		Endpoint: wsURL(srv),
	})
	if err == nil {
		t.Fatal("expected an error when the first frame is not a setup ack")
	}
}

func TestConnectRequiresAPIKey(t *testing.T) {
	_, err := Connect(context.Background(), ClientConfig{})
	if err == nil {
		t.Fatal("expected an error without an api key")
	}
}

func TestCloseIdempotent(t *testing.T) {
	srv := liveServer(t, func(conn *websocket.Conn, _ setupPayload) {
		conn.ReadMessage()
	})
	defer srv.Close()

	c := connectTest(t, srv, ClientConfig{})
	if err := c.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("read loop did not exit after close")
	}

	if err := c.SendAudio(audio.NewChunk(nil, 16000)); err == nil {
		t.Error("expected send on a closed stream to fail")
	}
}

func TestMalformedServerFrameIgnored(t *testing.T) {
	srv := liveServer(t, func(conn *websocket.Conn, _ setupPayload) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(serverMessage{ServerContent: &serverContent{TurnComplete: true}})
		conn.ReadMessage()
	})
	defer srv.Close()

	c := connectTest(t, srv, ClientConfig{})

	select {
	case ev, ok := <-c.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		if _, isTurn := ev.(TurnCompleteEvent); !isTurn {
			t.Errorf("expected the valid frame to survive, got %#v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event after malformed frame")
	}
}

// Events after Close must not be delivered as errors.
func TestCloseSuppressesReadError(t *testing.T) {
	srv := liveServer(t, func(conn *websocket.Conn, _ setupPayload) {
		conn.ReadMessage()
	})
	defer srv.Close()

	c := connectTest(t, srv, ClientConfig{})
	c.Close()
	<-c.Done()

	for ev := range c.Events() {
		if errEv, ok := ev.(ErrorEvent); ok {
			t.Errorf("unexpected error event after close: %v", errEv.Err)
		}
	}
}

func TestChunkJSONShape(t *testing.T) {
	msg := clientMessage{RealtimeInput: &realtimeInput{
		MediaChunks: []audio.Chunk{audio.NewChunk([]byte{0x00}, 16000)},
	}}
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"realtimeInput"`, `"mediaChunks"`, `"mimeType"`, `"data"`} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("wire frame missing %s: %s", key, raw)
		}
	}
}
