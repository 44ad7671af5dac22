// Package twilio places outbound calls through the Twilio Voice API so a
// live session can be bridged to a phone number.
package twilio

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultBaseURL = "https://api.twilio.com"

// Client issues calls against a single Twilio account.
type Client struct {
	accountSID string
	authToken  string
	callerID   string
	baseURL    string

	httpClient *http.Client
}

type ClientOptions func(*Client)

// WithAccountSID overrides the TWILIO_ACCOUNT_SID environment variable.
func WithAccountSID(sid string) ClientOptions {
	return func(c *Client) { c.accountSID = sid }
}

// WithAuthToken overrides the TWILIO_AUTH_TOKEN environment variable.
func WithAuthToken(token string) ClientOptions {
	return func(c *Client) { c.authToken = token }
}

// WithCallerID sets the number calls are placed from. It must be a number
// owned by (or verified for) the account.
func WithCallerID(number string) ClientOptions {
	return func(c *Client) { c.callerID = number }
}

func WithBaseURL(baseURL string) ClientOptions {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func NewClient(opts ...ClientOptions) *Client {
	client := &Client{
		accountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		authToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		callerID:   os.Getenv("TWILIO_CALLER_ID"),
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// DialRequest describes an outbound call that connects CallerNumber to
// BridgeToNumber once answered.
type DialRequest struct {
	CallerNumber   string
	BridgeToNumber string
}

// Call is the Twilio-side record of a placed call.
type Call struct {
	SID    string
	Status string
}

type callResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Dial    string   `xml:"Dial"`
}

// Dial places a call to req.CallerNumber and bridges it to
// req.BridgeToNumber when answered.
func (c *Client) Dial(ctx context.Context, req DialRequest) (*Call, error) {
	ctx, span := tracer.Start(ctx, "twilio.Dial")
	defer span.End()

	if c.accountSID == "" || c.authToken == "" {
		return nil, fmt.Errorf("missing Twilio credentials")
	}
	if req.CallerNumber == "" {
		return nil, fmt.Errorf("missing caller number")
	}
	if req.BridgeToNumber == "" {
		return nil, fmt.Errorf("missing bridge-to number")
	}

	twiml, err := xml.Marshal(twimlResponse{Dial: req.BridgeToNumber})
	if err != nil {
		return nil, fmt.Errorf("failed to build call instructions: %w", err)
	}

	form := url.Values{}
	form.Set("To", req.CallerNumber)
	form.Set("From", c.callerID)
	form.Set("Twiml", string(twiml))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create call request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to place call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read call response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.ErrorContext(ctx, "Call placement rejected",
			"status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("call placement failed with status %d", resp.StatusCode)
	}

	var parsed callResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse call response: %w", err)
	}

	return &Call{SID: parsed.SID, Status: parsed.Status}, nil
}
