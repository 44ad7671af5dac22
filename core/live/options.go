package live

type ClientOption func(*Client)

// WithAPIKey overrides the GEMINI_API_KEY environment lookup.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

// WithHost points the client at a different service host, scheme
// included only implicitly (connections are always wss, or ws when
// talking to a test server).
func WithHost(host string) ClientOption {
	return func(c *Client) { c.host = host }
}

// WithPlainConnection downgrades to an unencrypted websocket. Test
// servers only.
func WithPlainConnection() ClientOption {
	return func(c *Client) { c.scheme = "ws" }
}

type SessionOptions struct {
	Model             string
	Voice             string
	SystemInstruction string

	// Both transcription directions default to enabled: the session
	// core needs the interleaved deltas to build its transcript.
	InputTranscription  bool
	OutputTranscription bool

	EventCallback func(Event)
}

type SessionOption func(*SessionOptions)

func WithModel(model string) SessionOption {
	return func(o *SessionOptions) { o.Model = model }
}

func WithVoice(voice string) SessionOption {
	return func(o *SessionOptions) { o.Voice = voice }
}

func WithSystemInstruction(instruction string) SessionOption {
	return func(o *SessionOptions) { o.SystemInstruction = instruction }
}

func WithoutInputTranscription() SessionOption {
	return func(o *SessionOptions) { o.InputTranscription = false }
}

func WithoutOutputTranscription() SessionOption {
	return func(o *SessionOptions) { o.OutputTranscription = false }
}

// WithEventCallback registers the consumer for every decoded inbound
// event, including the terminal Closed and Error events. The callback
// is invoked synchronously from the receive loop, in arrival order.
func WithEventCallback(callback func(Event)) SessionOption {
	return func(o *SessionOptions) { o.EventCallback = callback }
}
