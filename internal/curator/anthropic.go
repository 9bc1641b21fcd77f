package curator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const anthropicVersion = "2023-06-01"

// AnthropicProvider calls the Anthropic messages API over plain HTTP. The
// model answers in freeform text, so the suggestions object is extracted by
// brace matching.
type AnthropicProvider struct {
	httpClient   *http.Client
	apiKey       string
	baseURL      string
	defaultModel string
	maxTokens    int
}

func NewAnthropicProvider(apiKey, baseURL, defaultModel string, maxTokens int) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if defaultModel == "" {
		defaultModel = "claude-3-5-sonnet-20241022"
	}
	if maxTokens == 0 {
		maxTokens = 2000
	}
	return &AnthropicProvider{
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		apiKey:       apiKey,
		baseURL:      baseURL,
		defaultModel: defaultModel,
		maxTokens:    maxTokens,
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (json.RawMessage, *Usage, error) {
	if model == "" {
		model = p.defaultModel
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       model,
		MaxTokens:   p.maxTokens,
		Temperature: temperature,
		System:      systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("Anthropic API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("Anthropic API response unreadable: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("Anthropic API request failed: %s: %s", resp.Status, respBody)
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, nil, fmt.Errorf("Anthropic API response undecodable: %w", err)
	}
	if len(decoded.Content) == 0 {
		return nil, nil, fmt.Errorf("Anthropic API returned no content")
	}

	usage := &Usage{
		PromptTokens:     decoded.Usage.InputTokens,
		CompletionTokens: decoded.Usage.OutputTokens,
	}
	return extractJSONObject(decoded.Content[0].Text), usage, nil
}
