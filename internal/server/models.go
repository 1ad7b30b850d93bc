package server

import "time"

const (
	modelClaudeSonnet45 = "claude-sonnet-4.5"
	modelClaudeSonnet4  = "claude-sonnet-4"
	modelAmazonQ        = "amazon-q"
)

// DefaultModel is reported when the request names no model.
const DefaultModel = modelClaudeSonnet45

// upstreamModelIDs maps public model ids to the vendor's modelId. Anything
// missing falls back to defaultUpstreamModel.
var upstreamModelIDs = map[string]string{
	modelClaudeSonnet45: "claude-sonnet-4.5",
	modelClaudeSonnet4:  "claude-sonnet-4",
	modelAmazonQ:        "claude-sonnet-4.5",
}

const defaultUpstreamModel = "claude-sonnet-4.5"

// SelectModelID returns the upstream model for a public model id. It never fails.
func SelectModelID(requested string) string {
	if id, ok := upstreamModelIDs[requested]; ok {
		return id
	}
	return defaultUpstreamModel
}

// modelMetadata mirrors the OpenAI-compatible /v1/models entry.
type modelMetadata struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelsResponse struct {
	Object string          `json:"object"`
	Data   []modelMetadata `json:"data"`
}

var modelOwners = []struct {
	id    string
	owner string
}{
	{modelClaudeSonnet45, "anthropic"},
	{modelClaudeSonnet4, "anthropic"},
	{modelAmazonQ, "amazon"},
}

func supportedModels(now time.Time) []modelMetadata {
	models := make([]modelMetadata, 0, len(modelOwners))
	for _, m := range modelOwners {
		models = append(models, modelMetadata{
			ID:      m.id,
			Object:  "model",
			Created: now.Unix(),
			OwnedBy: m.owner,
		})
	}
	return models
}

type indexEndpoints struct {
	OpenAIChat        string `json:"openai_chat"`
	AnthropicMessages string `json:"anthropic_messages"`
	Models            string `json:"models"`
	Credentials       string `json:"credentials"`
	Health            string `json:"health"`
}

type indexResponse struct {
	Message      string         `json:"message"`
	Version      string         `json:"version"`
	AuthMethod   string         `json:"auth_method"`
	Endpoints    indexEndpoints `json:"endpoints"`
	DefaultModel string         `json:"default_model"`
}

// Version is reported by the index document.
var Version = "2.0.0"

func newIndexResponse() indexResponse {
	return indexResponse{
		Message:    "Amazon Q to OpenAI API Bridge",
		Version:    Version,
		AuthMethod: "OAuth 2.0",
		Endpoints: indexEndpoints{
			OpenAIChat:        pathChatCompletions,
			AnthropicMessages: pathMessages,
			Models:            pathModels,
			Credentials:       pathCredentials,
			Health:            pathHealth,
		},
		DefaultModel: DefaultModel,
	}
}
