// Package openai implements intent classification backed by the OpenAI
// Chat Completions API.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"

	"github.com/flowrelay/flowrelay/core"
	"github.com/flowrelay/flowrelay/intent"
)

// Options configures the OpenAI classifier.
type Options struct {
	// Model is the chat model used for classification.
	Model string

	// Temperature controls sampling randomness. Classification wants
	// deterministic output, so the default is low.
	Temperature float64

	// MaxCompletionTokens bounds the verdict size. The verdict is a tiny
	// JSON object, so a small cap is plenty.
	MaxCompletionTokens int64
}

// Classifier classifies user messages via an OpenAI chat model.
type Classifier struct {
	client *openai.Client
	opts   Options
}

var _ core.Classifier = (*Classifier)(nil)

// New creates a Classifier using a client configured from the environment
// (OPENAI_API_KEY).
func New(optFns ...func(o *Options)) *Classifier {
	client := openai.NewClient()
	return NewFromClient(&client, optFns...)
}

// NewFromClient creates a Classifier using the provided client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Classifier {
	opts := Options{
		Model:               openai.ChatModelGPT4o,
		Temperature:         0.1,
		MaxCompletionTokens: 64,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Classifier{
		client: client,
		opts:   opts,
	}
}

// Classify implements core.Classifier.
func (c *Classifier) Classify(ctx context.Context, text string, history []core.Message) (core.IntentSignal, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(intent.SystemPrompt),
			openai.UserMessage(intent.BuildPrompt(text, history)),
		},
		Model:               c.opts.Model,
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxCompletionTokens),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return core.IntentSignal{}, fmt.Errorf("openai api error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return core.IntentSignal{}, fmt.Errorf("openai returned no choices")
	}

	return intent.ParseVerdict(resp.Choices[0].Message.Content, text)
}
