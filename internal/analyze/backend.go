// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/memo-engine/internal/httputil"
)

// Completion is the result of one chat completion call: the assistant's
// text plus the provider's actual token usage for the limiter correction.
type Completion struct {
	Content     string
	TotalTokens int
}

// AIBackend produces a chat completion from a system prompt and a user
// payload. Implementations must be safe for concurrent use.
type AIBackend interface {
	Complete(ctx context.Context, system, user string) (Completion, error)
}

// defaultGroqAPIURL is the OpenAI-compatible chat completions endpoint.
const defaultGroqAPIURL = "https://api.groq.com/openai/v1/chat/completions"

// GroqBackend calls Groq's chat completions API.
type GroqBackend struct {
	APIKey  string
	Model   string
	BaseURL string
	Client  *http.Client
}

// groqRequest is the request body for the chat completions API.
type groqRequest struct {
	Model       string        `json:"model"`
	Messages    []groqMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// groqMessage is a single message in the chat conversation.
type groqMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// groqResponse is the response body from the chat completions API.
type groqResponse struct {
	Choices []groqChoice `json:"choices"`
	Usage   groqUsage    `json:"usage"`
}

// groqChoice is one completion candidate; the API returns exactly one.
type groqChoice struct {
	Message groqMessage `json:"message"`
}

// groqUsage reports the provider's token accounting for the call.
type groqUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// Complete sends one chat completion request. Rate-limit responses (429)
// are retried with backoff by the shared HTTP retry helper; admission
// against our own ceilings happens before this is called.
func (g *GroqBackend) Complete(ctx context.Context, system, user string) (Completion, error) {
	reqBody := groqRequest{
		Model: g.Model,
		Messages: []groqMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.3,
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	url := g.BaseURL
	if url == "" {
		url = defaultGroqAPIURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return Completion{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, 0)
	if err != nil {
		return Completion{}, fmt.Errorf("calling chat completions API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Completion{}, fmt.Errorf("chat completions API returned %d: %s", resp.StatusCode, string(body))
	}

	var gResp groqResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return Completion{}, fmt.Errorf("decoding chat completions response: %w", err)
	}

	if len(gResp.Choices) == 0 {
		return Completion{}, fmt.Errorf("chat completions API returned no choices")
	}

	return Completion{
		Content:     gResp.Choices[0].Message.Content,
		TotalTokens: gResp.Usage.TotalTokens,
	}, nil
}
