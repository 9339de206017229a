package backend

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// modelIDs maps the short model names used in {{model}} tags to API model
// identifiers.
var modelIDs = map[string]string{
	"sonnet": "claude-sonnet-4-5",
	"opus":   "claude-opus-4-5",
	"haiku":  "claude-haiku-4-5",
}

const defaultMaxTokens = 8192

// Anthropic calls the Messages API directly instead of shelling out to the
// CLI. Selected with {{workflow: api}}. It has no tool access, so its only
// side effect is the text it returns.
type Anthropic struct {
	client *anthropic.Client
}

// NewAnthropic creates the API backend.
func NewAnthropic(apiKey string) (*Anthropic, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for the api backend")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Anthropic{client: &client}, nil
}

// Name implements Backend.
func (a *Anthropic) Name() string { return "api" }

// Invoke implements Backend.
func (a *Anthropic) Invoke(ctx context.Context, p Payload, progress ProgressFunc) (*Result, error) {
	modelID, ok := modelIDs[p.Model]
	if !ok {
		modelID = modelIDs["sonnet"]
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(p.Prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic request failed: %w", err)
	}

	var output string
	for _, block := range resp.Content {
		if block.Type == "text" {
			output += block.Text
		}
	}
	if progress != nil && output != "" {
		progress(output)
	}

	return interpretOutput(output), nil
}
