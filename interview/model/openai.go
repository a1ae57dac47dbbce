package model

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// defaultOpenAIModel is used when no model is named.
const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI is a Provider over OpenAI's chat completions API. Responses are
// requested in JSON-object mode so the client's schema validation sees
// well-formed objects. Safe for concurrent use.
type OpenAI struct {
	client    openai.Client
	modelName string
}

// NewOpenAI builds an OpenAI provider. An empty modelName selects the
// default model.
func NewOpenAI(apiKey, modelName string) *OpenAI {
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return &OpenAI{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
	}
}

// Name implements Provider.
func (p *OpenAI) Name() string {
	return "openai"
}

// Generate implements Provider.
func (p *OpenAI) Generate(ctx context.Context, system, user string, temperature float64) (string, Usage, error) {
	completion, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(system),
					},
				},
			},
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(user),
					},
				},
			},
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: openai.Ptr(shared.NewResponseFormatJSONObjectParam()),
		},
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return "", Usage{}, err
	}
	if len(completion.Choices) == 0 {
		return "", Usage{}, errors.New("openai: empty completion")
	}
	usage := Usage{
		InputTokens:  int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
	}
	return completion.Choices[0].Message.Content, usage, nil
}
