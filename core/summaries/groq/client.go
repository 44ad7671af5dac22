// Package groq produces post-call summaries through a strict
// JSON-schema chat completion.
package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/jinzhu/copier"
	calls "github.com/voxfront/voxfront-core/core"
	"github.com/voxfront/voxfront-core/core/live"
	"github.com/voxfront/voxfront-core/core/summaries"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

const (
	completionsURL = "https://api.groq.com/openai/v1/chat/completions"
	defaultModel   = "llama-3.3-70b-versatile"
)

type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

type ClientOption func(*Client)

// WithAPIKey overrides the GROQ_API_KEY environment lookup.
func WithAPIKey(apiKey string) ClientOption {
	return func(c *Client) { c.apiKey = apiKey }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithCompletionsURL points the client at a different endpoint. Test
// servers only.
func WithCompletionsURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func NewClient(opts ...ClientOption) *Client {
	client := &Client{
		model:      defaultModel,
		url:        completionsURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		client.apiKey, _ = os.LookupEnv("GROQ_API_KEY")
	}

	return client
}

// transcriptLine is the prompt-facing shape of a finalized turn.
type transcriptLine struct {
	Role live.Role `json:"role"`
	Text string    `json:"text"`
}

// Summarize turns the finalized transcript sequence into a structured
// call summary. Partial (non-final) entries are skipped: they were
// never confirmed as delivered speech.
func (c *Client) Summarize(ctx context.Context, turns []calls.TranscriptTurn, opts ...summaries.Option) (*summaries.CallSummary, error) {
	ctx, span := tracer.Start(ctx, "summarize call")
	defer span.End()

	options := summaries.Options{}
	for _, opt := range opts {
		opt(&options)
	}

	finalized := make([]calls.TranscriptTurn, 0, len(turns))
	for _, turn := range turns {
		if turn.Final {
			finalized = append(finalized, turn)
		}
	}
	if len(finalized) == 0 {
		err := fmt.Errorf("%w: transcript has no finalized turns", summaries.ErrUnavailable)
		span.RecordError(err)
		return nil, err
	}

	var lines []transcriptLine
	if err := copier.Copy(&lines, finalized); err != nil {
		err = fmt.Errorf("%w: failed to map transcript: %v", summaries.ErrUnavailable, err)
		span.RecordError(err)
		return nil, err
	}

	summary, err := c.promptJSONSchema(ctx, lines, options)
	if err != nil {
		err = fmt.Errorf("%w: %v", summaries.ErrUnavailable, err)
		span.RecordError(err)
		span.SetAttributes(attribute.String("error", err.Error()))
		return nil, err
	}

	return summary, nil
}

func (c *Client) promptJSONSchema(ctx context.Context, lines []transcriptLine, options summaries.Options) (*summaries.CallSummary, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("groq api key not found")
	}

	systemPrompt := "You summarize finished phone calls between a business assistant and a caller. " +
		"Base the summary only on what was actually said."
	if options.Language != "" {
		systemPrompt += fmt.Sprintf(" Write the summary in %s.", options.Language)
	}

	var transcript strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&transcript, "%s: %s\n", line.Role, line.Text)
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(summaries.CallSummary{})

	reqBody := schemaRequestBody{
		Model: c.model,
		Messages: []message{
			{Role: messageRoleSystem, Content: systemPrompt},
			{Role: messageRoleUser, Content: transcript.String()},
		},
		ResponseFormat: &chatResponseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "CallSummary",
				Schema: *schema,
				Strict: true,
			},
		},
	}

	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		logger.Warn("summarization request rejected",
			"status", resp.Status,
			"body", string(respBodyBytes),
		)
		return nil, fmt.Errorf("non-OK HTTP status: %s", resp.Status)
	}

	var responseBody schemaResponseBody
	if err := json.Unmarshal(respBodyBytes, &responseBody); err != nil {
		return nil, fmt.Errorf("error unmarshalling response body: %w", err)
	}
	if len(responseBody.Choices) == 0 {
		return nil, fmt.Errorf("response contains no choices")
	}

	content := responseBody.Choices[0].Message.Content
	split := strings.Split(content, "```")
	if len(split) > 1 {
		content = split[1]
	}

	var summary summaries.CallSummary
	if err := json.Unmarshal([]byte(content), &summary); err != nil {
		return nil, fmt.Errorf("error unmarshalling summary: %w", err)
	}

	return &summary, nil
}

type messageRole string

const (
	messageRoleSystem messageRole = "system"
	messageRoleUser   messageRole = "user"
)

type message struct {
	Role    messageRole `json:"role"`
	Content string      `json:"content"`
}

type schemaRequestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatResponseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type jsonSchemaFormat struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Schema      jsonschema.Schema `json:"schema"`
	Strict      bool              `json:"strict"`
}

type schemaResponseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}
