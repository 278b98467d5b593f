package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/valpere/doctran/internal/postprocess"
)

// DefaultOpenRouterModel is used when no model is configured.
const DefaultOpenRouterModel = "google/gemini-2.0-flash-exp:free"

// OpenRouter generates text through the OpenRouter chat completions API.
type OpenRouter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenRouter creates an OpenRouter provider. The API key is required.
func NewOpenRouter(apiKey, baseURL, model string) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter API key required")
	}
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if model == "" {
		model = DefaultOpenRouterModel
	}
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 300 * time.Second},
	}, nil
}

func (o *OpenRouter) Name() string {
	return "openrouter"
}

func (o *OpenRouter) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	body := map[string]interface{}{
		"model": o.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": temperature,
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", o.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", o.apiKey))
	req.Header.Set("X-Title", "doctran")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var errResp map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return "", fmt.Errorf("openrouter returned status %d: %v", resp.StatusCode, errResp)
	}

	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("empty response from openrouter")
	}
	return postprocess.Clean(chatResp.Choices[0].Message.Content), nil
}
