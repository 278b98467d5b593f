// Package validate reviews translated chunks through an external review
// agent. The agent receives locators for the prompt and the raw translation,
// fetches both itself, and returns a corrected final text. Validation is
// best-effort: when a chunk cannot be reviewed the pipeline falls back to
// the raw translation rather than failing the run.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Validator reviews one translated chunk. promptLocator and
// translatedLocator point at the stored prompt and raw translation; the
// return value is the final text for the chunk.
type Validator interface {
	Validate(ctx context.Context, promptLocator, translatedLocator string) (string, error)
}

// Agent talks to a translation review service over HTTP.
type Agent struct {
	baseURL string
	model   string
	client  *http.Client
}

type reviewRequest struct {
	Model          string `json:"model,omitempty"`
	PromptURI      string `json:"prompt_uri"`
	TranslationURI string `json:"translation_uri"`
}

type reviewResponse struct {
	FinalText string `json:"final_text"`
	Reasoning string `json:"reasoning,omitempty"`
}

// NewAgent creates a review agent client for the given endpoint.
func NewAgent(baseURL, model string) *Agent {
	return &Agent{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client: &http.Client{
			Timeout: 300 * time.Second,
		},
	}
}

func (a *Agent) Validate(ctx context.Context, promptLocator, translatedLocator string) (string, error) {
	reqBody := reviewRequest{
		Model:          a.model,
		PromptURI:      promptLocator,
		TranslationURI: translatedLocator,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/review", a.baseURL), bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("review request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("review agent returned status %d", resp.StatusCode)
	}

	var reviewed reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&reviewed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if strings.TrimSpace(reviewed.FinalText) == "" {
		return "", fmt.Errorf("review agent returned empty text")
	}
	return reviewed.FinalText, nil
}
