package model

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// defaultGeminiModel is used when no model is named.
const defaultGeminiModel = "gemini-1.5-flash"

// Gemini is a Provider over Google's Gemini API. Output is requested as
// application/json so the client's extraction sees a bare object. Close
// releases the underlying client; safe for concurrent Generate calls.
type Gemini struct {
	client    *genai.Client
	modelName string
}

// NewGemini builds a Gemini provider. An empty modelName selects the
// default model.
func NewGemini(ctx context.Context, apiKey, modelName string) (*Gemini, error) {
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Gemini{client: client, modelName: modelName}, nil
}

// Name implements Provider.
func (p *Gemini) Name() string {
	return "gemini"
}

// Close releases the underlying API client.
func (p *Gemini) Close() error {
	return p.client.Close()
}

// Generate implements Provider.
func (p *Gemini) Generate(ctx context.Context, system, user string, temperature float64) (string, Usage, error) {
	m := p.client.GenerativeModel(p.modelName)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(float32(temperature))
	if system != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	resp, err := m.GenerateContent(ctx, genai.Text(user))
	if err != nil {
		return "", Usage{}, err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	var usage Usage
	if resp.UsageMetadata != nil {
		usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return sb.String(), usage, nil
}
