// Package anthropic writes intro scripts through the Anthropic Messages API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"outreach/internal/provider"
)

const (
	providerName     = "anthropic"
	messagesEndpoint = "/messages"
	apiVersion       = "2023-06-01"
	maxBodyBytes     = 1 << 20
)

// ErrEmptyCompletion is returned when the model answers without any text.
var ErrEmptyCompletion = errors.New("completion contained no text")

// Client sends single-turn prompts to one model.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func New(baseURL, apiKey, model string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, model: model, http: httpClient}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends system and prompt as one user turn and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encoding messages request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building messages request: %w", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", provider.Unavailable(providerName, err)
	}
	defer resp.Body.Close()

	raw, err := provider.ReadBody(resp.Body, maxBodyBytes)
	if err != nil {
		return "", provider.Unavailable(providerName, err)
	}
	var out messagesResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusOK {
		// 529 is Anthropic's "overloaded".
		if provider.Retryable(resp.StatusCode) {
			return "", provider.Unavailable(providerName, fmt.Errorf("status %d", resp.StatusCode))
		}
		rejected := &provider.RejectedError{Provider: providerName, Code: "HTTP_" + strconv.Itoa(resp.StatusCode)}
		if decodeErr == nil && out.Error != nil {
			if out.Error.Type != "" {
				rejected.Code = out.Error.Type
			}
			rejected.Message = out.Error.Message
		}
		return "", rejected
	}
	if decodeErr != nil {
		return "", provider.Unavailable(providerName, fmt.Errorf("decoding messages response: %w", decodeErr))
	}

	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
