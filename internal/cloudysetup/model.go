package cloudysetup

import (
	"context"
	"fmt"
)

// ModelClient is any generative-model backend. Each implementation turns a
// prompt into the model's text reply.
type ModelClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ModelFunc adapts a function to ModelClient.
type ModelFunc func(ctx context.Context, prompt string) (string, error)

// Complete calls f.
func (f ModelFunc) Complete(ctx context.Context, prompt string) (string, error) { return f(ctx, prompt) }

// Model provider names accepted by Config.ModelProvider.
const (
	ModelProviderBedrock = "bedrock"
	ModelProviderOpenAI  = "openai"
)

// Model defaults.
const (
	DefaultBedrockModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	DefaultOpenAIModelID  = "gpt-4o"
	DefaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
	// defaultMaxTokens caps the reply length of a single completion.
	defaultMaxTokens = 2048
	// systemPrompt frames every completion.
	systemPrompt = "You are an assistant that writes AWS Cloud Control API resource documents. " +
		"Reply with JSON only; no prose and no code fences."
)

// NewModelClient builds the ModelClient selected by cfg. Bedrock calls are
// signed with creds; the OpenAI-compatible client uses cfg.ModelAPIKey.
func NewModelClient(cfg *Config, creds Credentials) (ModelClient, error) {
	switch cfg.ModelProvider {
	case "", ModelProviderBedrock:
		return &BedrockModel{Region: cfg.Region, ModelID: cfg.ModelID, Credentials: creds}, nil
	case ModelProviderOpenAI:
		if cfg.ModelAPIKey == "" && cfg.ModelEndpoint == "" {
			return nil, fmt.Errorf("model_api_key (or OPENAI_API_KEY) is required for the %s provider", ModelProviderOpenAI)
		}
		return &OpenAIModel{Endpoint: cfg.ModelEndpoint, APIKey: cfg.ModelAPIKey, ModelID: cfg.ModelID}, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q; known: %s, %s",
			cfg.ModelProvider, ModelProviderBedrock, ModelProviderOpenAI)
	}
}
