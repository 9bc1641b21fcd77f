package curator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider calls the OpenAI chat completions API. The JSON response
// format makes the model return the suggestions object directly.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	maxTokens    int
}

func NewOpenAIProvider(apiKey, defaultModel string, maxTokens int) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = openai.GPT4
	}
	if maxTokens == 0 {
		maxTokens = 2000
	}
	return &OpenAIProvider{
		client:       openai.NewClient(apiKey),
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (json.RawMessage, *Usage, error) {
	if model == "" {
		model = p.defaultModel
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens:   p.maxTokens,
		Temperature: float32(temperature),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("OpenAI API request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil, fmt.Errorf("OpenAI API returned no choices")
	}

	usage := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return json.RawMessage(content), usage, nil
}
