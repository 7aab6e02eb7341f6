package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
)

// OpenAI is a Provider backed by any OpenAI-compatible HTTP API
// (api.openai.com, OpenRouter, vLLM, and the like).
type OpenAI struct {
	baseURL    string
	apiKey     string
	chatModel  string
	embedModel string
	httpClient *http.Client
}

// OpenAIConfig configures the OpenAI-compatible provider. The API key is
// read from the environment variable named by APIKeyEnv so it never lands
// in config files.
type OpenAIConfig struct {
	BaseURL    string
	APIKeyEnv  string
	ChatModel  string
	EmbedModel string
}

// NewOpenAI creates an OpenAI-compatible provider from the given config.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	return &OpenAI{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     key,
		chatModel:  cfg.ChatModel,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: 0},
	}, nil
}

// Name implements Provider.
func (c *OpenAI) Name() string { return "openai" }

type oaChatRequest struct {
	Model    string          `json:"model"`
	Messages []oaChatMessage `json:"messages"`
}

type oaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type oaChatResponse struct {
	Choices []struct {
		Message oaChatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompt through /chat/completions and returns the first
// choice's content.
func (c *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(oaChatRequest{
		Model:    c.chatModel,
		Messages: []oaChatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", err
	}

	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completions: unexpected status %d", resp.StatusCode)
	}

	var result oaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("chat completions: no choices in response")
	}
	return result.Choices[0].Message.Content, nil
}

type oaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type oaEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for the given text via /embeddings.
func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(oaEmbedRequest{Model: c.embedModel, Input: text})
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings: unexpected status %d", resp.StatusCode)
	}

	var result oaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("embeddings: empty data array")
	}
	return result.Data[0].Embedding, nil
}

func (c *OpenAI) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", path, err)
	}
	return resp, nil
}
