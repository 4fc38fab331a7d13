package classifier

import (
	"encoding/json"
	"strings"
)

// parseResponse strips common LLM wrappers (fenced code blocks) before
// decoding.
func parseResponse(text string) (rawVerdict, error) {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "```json"):
		text = text[len("```json"):]
	case strings.HasPrefix(text, "```"):
		text = text[len("```"):]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	text = strings.TrimSpace(text)

	var raw rawVerdict
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return rawVerdict{}, err
	}
	return raw, nil
}
