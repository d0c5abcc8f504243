// Package anthropic implements intent classification backed by the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/intent"
)

// Options configures the Anthropic classifier.
type Options struct {
	// Model is the Anthropic model used for classification.
	Model anthropic.Model

	// Temperature controls sampling randomness.
	Temperature float64

	// MaxTokens bounds the verdict size.
	MaxTokens int64

	// APIKey overrides the ANTHROPIC_API_KEY environment variable.
	APIKey string
}

// Classifier classifies user messages via an Anthropic model.
type Classifier struct {
	client *anthropic.Client
	opts   Options
}

var _ core.Classifier = (*Classifier)(nil)

// New creates a Classifier. Without an APIKey option the client reads
// ANTHROPIC_API_KEY from the environment.
func New(optFns ...func(o *Options)) *Classifier {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.1,
		MaxTokens:   64,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Classifier{
		client: &client,
		opts:   opts,
	}
}

// Classify implements core.Classifier.
func (c *Classifier) Classify(ctx context.Context, text string, history []core.Message) (core.IntentSignal, error) {
	params := anthropic.MessageNewParams{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: intent.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(intent.BuildPrompt(text, history))),
		},
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return core.IntentSignal{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}

	if sb.Len() == 0 {
		return core.IntentSignal{}, fmt.Errorf("anthropic returned no text content")
	}

	return intent.ParseVerdict(sb.String(), text)
}
