package model

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultAnthropicModel is used when no model is named.
const defaultAnthropicModel = "claude-3-5-sonnet-latest"

// anthropicMaxTokens caps completion length. Structured interview outputs
// are small; 2048 leaves ample headroom.
const anthropicMaxTokens = 2048

// Anthropic is a Provider over the Messages API. The system prompt rides
// as a separate system block, per the API's message format. Safe for
// concurrent use.
type Anthropic struct {
	client    anthropic.Client
	modelName string
}

// NewAnthropic builds an Anthropic provider. An empty modelName selects
// the default model.
func NewAnthropic(apiKey, modelName string) *Anthropic {
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

// Name implements Provider.
func (p *Anthropic) Name() string {
	return "anthropic"
}

// Generate implements Provider.
func (p *Anthropic) Generate(ctx context.Context, system, user string, temperature float64) (string, Usage, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.modelName),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
		Temperature: anthropic.Float(temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", Usage{}, err
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	usage := Usage{
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}
	return sb.String(), usage, nil
}
