package cloudysetup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIModel implements ModelClient against any OpenAI-compatible
// chat-completions endpoint (OpenAI, OpenRouter, Ollama's /v1).
type OpenAIModel struct {
	Endpoint   string
	APIKey     string
	ModelID    string
	MaxTokens  int
	HTTPClient *http.Client
}

type openAIReq struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float32         `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResp struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Complete posts prompt as a user message and returns the first choice.
func (m *OpenAIModel) Complete(ctx context.Context, prompt string) (string, error) {
	endpoint := m.Endpoint
	if endpoint == "" {
		endpoint = DefaultOpenAIEndpoint
	}
	model := m.ModelID
	if model == "" {
		model = DefaultOpenAIModelID
	}
	maxTokens := m.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	body := openAIReq{
		Model: model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	if m.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := m.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	res, err := httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("openai error: status %s: %s", res.Status, bytes.TrimSpace(snippet))
	}

	var resp openAIResp
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices from openai")
	}
	return resp.Choices[0].Message.Content, nil
}
