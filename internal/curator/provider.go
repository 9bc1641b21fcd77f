package curator

import (
	"context"
	"encoding/json"
)

// Usage is the provider-reported token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// LLMProvider produces the raw suggestions JSON for one curator run. Each
// backend deals with its own response shape and hands back a single JSON
// object; a non-success response from the backend is a hard error for the
// run.
type LLMProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt, model string, temperature float64) (json.RawMessage, *Usage, error)
}

// extractJSONObject pulls the outermost {...} out of freeform model text.
// Providers that return prose around the JSON need this; a text with no
// object yields nil.
func extractJSONObject(text string) json.RawMessage {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inString && depth > 0 {
				depth--
				if depth == 0 {
					return json.RawMessage(text[start : i+1])
				}
			}
		}
	}
	return nil
}
