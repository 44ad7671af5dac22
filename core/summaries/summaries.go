// Package summaries defines the post-call summarization contract.
// Summarization is a single-shot request made after the live session
// has closed; a failure leaves the call ended with the summary
// unavailable and is not retried automatically.
package summaries

import (
	"context"
	"errors"

	calls "github.com/voxfront/voxfront-core/core"
)

// ErrUnavailable wraps every summarizer failure so callers can report
// "call ended, summary unavailable" without inspecting provider
// details.
var ErrUnavailable = errors.New("call summary unavailable")

type CallSummary struct {
	Summary     string   `json:"summary" jsonschema_description:"Two to three sentence summary of the call"`
	ActionItems []string `json:"actionItems" jsonschema_description:"Concrete follow-ups agreed during the call, in order"`
	Sentiment   string   `json:"sentiment" jsonschema_description:"Overall caller sentiment: positive, neutral or negative"`
}

type Summarizer interface {
	Summarize(ctx context.Context, turns []calls.TranscriptTurn, opts ...Option) (*CallSummary, error)
}

type Options struct {
	// Language forces the summary language; empty follows the
	// transcript.
	Language string
}

type Option func(*Options)

func WithLanguage(language string) Option {
	return func(o *Options) { o.Language = language }
}
