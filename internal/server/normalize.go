package server

import "strings"

// ExtractPrompt returns the text of the most recent user message. Structured
// content contributes every "text" part, joined by single spaces. An empty
// result means the request carries no usable prompt.
func ExtractPrompt(messages []interface{}) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]interface{})
		if !ok || msg["role"] != "user" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			return content
		case []interface{}:
			var parts []string
			for _, item := range content {
				part, ok := item.(map[string]interface{})
				if !ok || part["type"] != "text" {
					continue
				}
				text, _ := part["text"].(string)
				parts = append(parts, text)
			}
			return strings.Join(parts, " ")
		default:
			return ""
		}
	}
	return ""
}

// requestModel returns the public model named by the body, or DefaultModel.
func requestModel(body map[string]interface{}) string {
	if model, ok := body["model"].(string); ok && strings.TrimSpace(model) != "" {
		return model
	}
	return DefaultModel
}
