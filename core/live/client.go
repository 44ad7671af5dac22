package live

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/voxfront/voxfront-core/core/audio"
	"go.opentelemetry.io/otel/codes"
)

// State is the transport protocol state. Transitions are one-way;
// there is no reconnection.
type State string

const (
	StateIdle    State = "idle"
	StateOpening State = "opening"
	StateOpen    State = "open"
	StateClosing State = "closing"
	StateClosed  State = "closed"
)

const (
	DefaultModel = "models/gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultVoice = "Puck"

	defaultHost = "generativelanguage.googleapis.com"
	bidiPath    = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	handshakeTimeout = 15 * time.Second
	closeGracePeriod = 2 * time.Second

	// decodeFailureTolerance is the number of consecutive malformed
	// audio payloads after which the stream is considered broken.
	// Isolated failures only drop the affected chunk.
	decodeFailureTolerance = 3
)

var (
	ErrNotOpen           = errors.New("live session is not open")
	ErrBrokenAudioStream = errors.New("repeated audio decode failures, stream is broken")
)

type Client struct {
	apiKey string
	host   string
	scheme string

	conn   *websocket.Conn
	connMu sync.Mutex

	state   State
	stateMu sync.Mutex

	options SessionOptions

	closeOnce sync.Once
	readDone  chan struct{}

	// consecutiveDecodeFailures is only touched by the receive loop.
	consecutiveDecodeFailures int
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		host:     defaultHost,
		scheme:   "wss",
		state:    StateIdle,
		readDone: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		client.apiKey, _ = os.LookupEnv("GEMINI_API_KEY")
	}

	return client
}

// Open dials the service and performs the one-shot session handshake:
// model, voice, system instruction, audio-only response modality and
// both transcription directions. The client is Open once the service
// acknowledges the setup; only then may audio frames be submitted.
func (c *Client) Open(ctx context.Context, opts ...SessionOption) error {
	ctx, span := tracer.Start(ctx, "open live session")
	defer span.End()

	options := SessionOptions{
		Model:               DefaultModel,
		Voice:               DefaultVoice,
		InputTranscription:  true,
		OutputTranscription: true,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.EventCallback == nil {
		options.EventCallback = func(Event) {}
	}

	if err := c.transition(StateIdle, StateOpening); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if c.apiKey == "" {
		c.setState(StateClosed)
		err := errors.New("live api key not found")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	sessionURL := url.URL{
		Scheme:   c.scheme,
		Host:     c.host,
		Path:     bidiPath,
		RawQuery: url.Values{"key": {c.apiKey}}.Encode(),
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout
	conn, _, err := dialer.DialContext(ctx, sessionURL.String(), nil)
	if err != nil {
		c.setState(StateClosed)
		err = fmt.Errorf("failed to open socket connection to live service: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := c.handshake(ctx, conn, options); err != nil {
		conn.Close()
		c.setState(StateClosed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.options = options
	c.setState(StateOpen)

	go c.readAndProcessMessages(conn)

	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, options SessionOptions) error {
	setup := setupMessage{
		Setup: setupPayload{
			Model: options.Model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
				SpeechConfig: &speechConfig{
					VoiceConfig: voiceConfig{
						PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: options.Voice},
					},
				},
			},
		},
	}
	if options.SystemInstruction != "" {
		setup.Setup.SystemInstruction = &content{Parts: []part{{Text: options.SystemInstruction}}}
	}
	if options.InputTranscription {
		setup.Setup.InputAudioTranscription = &struct{}{}
	}
	if options.OutputTranscription {
		setup.Setup.OutputAudioTranscription = &struct{}{}
	}

	if err := conn.WriteJSON(setup); err != nil {
		return fmt.Errorf("failed to send session setup: %w", err)
	}

	ackDeadline := time.Now().Add(handshakeTimeout)
	if deadline, ok := ctx.Deadline(); ok && deadline.Before(ackDeadline) {
		ackDeadline = deadline
	}
	_ = conn.SetReadDeadline(ackDeadline)

	var ack serverMessage
	if err := conn.ReadJSON(&ack); err != nil {
		return fmt.Errorf("failed to read handshake acknowledgment: %w", err)
	}
	if ack.SetupComplete == nil {
		return errors.New("live service rejected session setup")
	}

	return conn.SetReadDeadline(time.Time{})
}

// SendAudio submits one captured block of little-endian PCM16 as a
// base64 wire frame. The call never waits on delivery beyond the
// websocket write itself; frames submitted while the session is not
// Open are rejected with [ErrNotOpen] so the capture path can drop
// them.
func (c *Client) SendAudio(pcm []byte) error {
	if c.State() != StateOpen {
		return ErrNotOpen
	}

	frame := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			Audio: &inlineData{
				MimeType: fmt.Sprintf("audio/pcm;rate=%d", audio.CaptureSampleRate),
				Data:     base64.StdEncoding.EncodeToString(pcm),
			},
		},
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return ErrNotOpen
	}
	if err := c.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write audio frame: %w", err)
	}
	return nil
}

func (c *Client) IsOpen() bool { return c.State() == StateOpen }

func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Close requests a clean shutdown: a close frame, a bounded wait for
// the receive loop to drain, then a forced drop of the connection.
// Safe to call more than once and from any state.
func (c *Client) Close(ctx context.Context) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.setState(StateClosing)

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			c.setState(StateClosed)
			return
		}

		c.connMu.Lock()
		writeErr := conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.connMu.Unlock()

		select {
		case <-c.readDone:
		case <-ctx.Done():
		case <-time.After(closeGracePeriod):
		}

		closeErr = conn.Close()
		if closeErr == nil && writeErr != nil {
			closeErr = writeErr
		}
		c.setState(StateClosed)
	})

	return closeErr
}

func (c *Client) readAndProcessMessages(conn *websocket.Conn) {
	defer close(c.readDone)

	for {
		var msg serverMessage
		if err := conn.ReadJSON(&msg); err != nil {
			c.connMu.Lock()
			c.conn = nil
			c.connMu.Unlock()
			conn.Close()

			// A locally initiated close already surfaced through Close;
			// only remote terminations are forwarded.
			if state := c.State(); state == StateClosing || state == StateClosed {
				return
			}
			c.setState(StateClosed)

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.options.EventCallback(ClosedEvent{})
			} else {
				c.options.EventCallback(ErrorEvent{Err: err})
			}
			return
		}

		if !c.processMessage(msg) {
			return
		}
	}
}

// processMessage dispatches one inbound message synchronously so event
// ordering matches arrival ordering. It reports whether the receive
// loop should keep running.
func (c *Client) processMessage(msg serverMessage) bool {
	events, decodeFailures := eventsFromMessage(msg)

	for _, failure := range decodeFailures {
		c.consecutiveDecodeFailures++
		logger.Warn("dropping malformed audio chunk",
			"error", failure,
			"consecutive_failures", c.consecutiveDecodeFailures,
		)
	}

	if c.consecutiveDecodeFailures >= decodeFailureTolerance {
		c.setState(StateClosed)

		c.connMu.Lock()
		conn := c.conn
		c.conn = nil
		c.connMu.Unlock()
		if conn != nil {
			conn.Close()
		}

		c.options.EventCallback(ErrorEvent{Err: ErrBrokenAudioStream})
		return false
	}

	if len(decodeFailures) == 0 {
		for _, event := range events {
			if event.Kind() == KindAudioChunk {
				c.consecutiveDecodeFailures = 0
				break
			}
		}
	}

	for _, event := range events {
		c.options.EventCallback(event)
	}

	return true
}

func (c *Client) setState(state State) {
	c.stateMu.Lock()
	c.state = state
	c.stateMu.Unlock()
}

func (c *Client) transition(from, to State) error {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if c.state != from {
		return fmt.Errorf("cannot open live session from state %q", c.state)
	}
	c.state = to
	return nil
}
