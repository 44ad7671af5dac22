package live

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newLiveServer stands up a websocket endpoint impersonating the live
// service and returns a client pointed at it. The script runs on the
// server side of the accepted connection.
func newLiveServer(t *testing.T, script func(conn *websocket.Conn)) *Client {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("expected api key in query, got %q", got)
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade test connection: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(server.Close)

	return NewClient(
		WithAPIKey("test-key"),
		WithHost(strings.TrimPrefix(server.URL, "http://")),
		WithPlainConnection(),
	)
}

// acceptSetup consumes the handshake, acknowledges it and hands the
// received payload back.
func acceptSetup(t *testing.T, conn *websocket.Conn) setupMessage {
	t.Helper()

	var setup setupMessage
	if err := conn.ReadJSON(&setup); err != nil {
		t.Errorf("failed to read session setup: %v", err)
		return setup
	}
	if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
		t.Errorf("failed to acknowledge session setup: %v", err)
	}
	return setup
}

// holdUntilClosed keeps the server side reading so the connection stays
// up until the client drops it.
func holdUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func nextEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()

	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func TestClientOpenPerformsHandshake(t *testing.T) {
	setups := make(chan setupMessage, 1)
	client := newLiveServer(t, func(conn *websocket.Conn) {
		setups <- acceptSetup(t, conn)
		holdUntilClosed(conn)
	})

	err := client.Open(context.Background(),
		WithModel("models/test-model"),
		WithVoice("Aoede"),
		WithSystemInstruction("You answer the phone."),
	)
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	if !client.IsOpen() {
		t.Fatalf("expected client to report open after handshake")
	}

	setup := <-setups
	if setup.Setup.Model != "models/test-model" {
		t.Fatalf("expected model override in setup, got %q", setup.Setup.Model)
	}
	if got := setup.Setup.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Fatalf("expected audio-only response modality, got %v", got)
	}
	if got := setup.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Aoede" {
		t.Fatalf("expected voice in setup, got %q", got)
	}
	if setup.Setup.SystemInstruction == nil || len(setup.Setup.SystemInstruction.Parts) != 1 {
		t.Fatalf("expected system instruction part in setup, got %+v", setup.Setup.SystemInstruction)
	}
	if setup.Setup.InputAudioTranscription == nil || setup.Setup.OutputAudioTranscription == nil {
		t.Fatalf("expected both transcription directions enabled by default")
	}
}

func TestClientOpenSurfacesSetupRejection(t *testing.T) {
	client := newLiveServer(t, func(conn *websocket.Conn) {
		var setup setupMessage
		if err := conn.ReadJSON(&setup); err != nil {
			return
		}
		// Anything without setupComplete is a rejection.
		_ = conn.WriteJSON(map[string]any{})
	})

	if err := client.Open(context.Background()); err == nil {
		t.Fatalf("expected open to fail on rejected setup")
	}
	if got := client.State(); got != StateClosed {
		t.Fatalf("expected closed state after rejected setup, got %s", got)
	}
}

func TestClientOpenRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	client := NewClient()

	if err := client.Open(context.Background()); err == nil {
		t.Fatalf("expected open to fail without an api key")
	}
}

func TestClientOpensOnlyOnce(t *testing.T) {
	client := newLiveServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		holdUntilClosed(conn)
	})

	if err := client.Open(context.Background()); err != nil {
		t.Fatalf("expected first open to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	if err := client.Open(context.Background()); err == nil {
		t.Fatalf("expected second open to be rejected")
	}
}

func TestClientSendAudioRequiresOpenSession(t *testing.T) {
	client := NewClient(WithAPIKey("test-key"))

	if err := client.SendAudio([]byte{0x01, 0x02}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen before open, got %v", err)
	}
}

func TestClientSendAudioWritesCaptureFrame(t *testing.T) {
	frames := make(chan realtimeInputMessage, 1)
	client := newLiveServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		var frame realtimeInputMessage
		if err := conn.ReadJSON(&frame); err != nil {
			t.Errorf("failed to read audio frame: %v", err)
			return
		}
		frames <- frame
		holdUntilClosed(conn)
	})

	if err := client.Open(context.Background()); err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	if err := client.SendAudio(pcm); err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}

	select {
	case frame := <-frames:
		if frame.RealtimeInput.Audio == nil {
			t.Fatalf("expected audio frame, got %+v", frame)
		}
		if got := frame.RealtimeInput.Audio.MimeType; got != "audio/pcm;rate=16000" {
			t.Fatalf("expected capture-rate mime type, got %q", got)
		}
		decoded, err := base64.StdEncoding.DecodeString(frame.RealtimeInput.Audio.Data)
		if err != nil || string(decoded) != string(pcm) {
			t.Fatalf("expected payload round-trip, got %v (%v)", decoded, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio frame")
	}
}

func TestClientForwardsServerEventsInOrder(t *testing.T) {
	client := newLiveServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		_ = conn.WriteJSON(map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []map[string]any{{
						"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString([]byte{0x01, 0x02}),
						},
					}},
				},
				"outputTranscription": map[string]any{"text": "Hello"},
				"turnComplete":        true,
			},
		})
		holdUntilClosed(conn)
	})

	events := make(chan Event, 16)
	err := client.Open(context.Background(), WithEventCallback(func(event Event) {
		events <- event
	}))
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}
	defer client.Close(context.Background())

	chunk, ok := nextEvent(t, events).(AudioChunkEvent)
	if !ok {
		t.Fatalf("expected audio chunk first")
	}
	if len(chunk.Payload) != 2 || chunk.EncodingInfo.SampleRate != 24000 {
		t.Fatalf("expected decoded 24kHz chunk, got %+v", chunk)
	}

	delta, ok := nextEvent(t, events).(TranscriptDeltaEvent)
	if !ok || delta.Role != RoleAssistant || delta.Text != "Hello" {
		t.Fatalf("expected assistant transcript delta second, got %+v", delta)
	}

	if _, ok := nextEvent(t, events).(TurnCompleteEvent); !ok {
		t.Fatalf("expected turn complete last")
	}
}

func TestClientEscalatesRepeatedDecodeFailures(t *testing.T) {
	brokenChunk := map[string]any{
		"serverContent": map[string]any{
			"modelTurn": map[string]any{
				"parts": []map[string]any{{
					"inlineData": map[string]any{
						"mimeType": "audio/pcm;rate=24000",
						"data":     "%%% not base64 %%%",
					},
				}},
			},
		},
	}

	client := newLiveServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		for range decodeFailureTolerance {
			_ = conn.WriteJSON(brokenChunk)
		}
		holdUntilClosed(conn)
	})

	events := make(chan Event, 16)
	err := client.Open(context.Background(), WithEventCallback(func(event Event) {
		events <- event
	}))
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}

	errorEvent, ok := nextEvent(t, events).(ErrorEvent)
	if !ok {
		t.Fatalf("expected error event after repeated decode failures")
	}
	if !errors.Is(errorEvent.Err, ErrBrokenAudioStream) {
		t.Fatalf("expected broken-stream error, got %v", errorEvent.Err)
	}
	if got := client.State(); got != StateClosed {
		t.Fatalf("expected closed state after broken stream, got %s", got)
	}
}

func TestClientRemoteCloseEmitsClosedEvent(t *testing.T) {
	client := newLiveServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		_ = conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
		)
	})

	events := make(chan Event, 16)
	err := client.Open(context.Background(), WithEventCallback(func(event Event) {
		events <- event
	}))
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}

	if _, ok := nextEvent(t, events).(ClosedEvent); !ok {
		t.Fatalf("expected closed event after remote close")
	}
	if got := client.State(); got != StateClosed {
		t.Fatalf("expected closed state after remote close, got %s", got)
	}
}

func TestClientCloseIsIdempotentAndSilent(t *testing.T) {
	client := newLiveServer(t, func(conn *websocket.Conn) {
		acceptSetup(t, conn)
		holdUntilClosed(conn)
	})

	events := make(chan Event, 16)
	err := client.Open(context.Background(), WithEventCallback(func(event Event) {
		events <- event
	}))
	if err != nil {
		t.Fatalf("expected open to succeed, got %v", err)
	}

	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("expected first close to succeed, got %v", err)
	}
	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("expected repeated close to be a no-op, got %v", err)
	}

	select {
	case event := <-events:
		t.Fatalf("expected no events from a locally initiated close, got %T", event)
	case <-time.After(100 * time.Millisecond):
	}

	if err := client.SendAudio([]byte{0x01}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected ErrNotOpen after close, got %v", err)
	}
}
