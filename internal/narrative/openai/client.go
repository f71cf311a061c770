package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"finsight-backend/internal/narrative"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client implements narrative.Annotator using an OpenAI-compatible Chat
// Completions endpoint.
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float32
	stageModels map[string]string
	stageTemps  map[string]float32
	httpClient  *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithBaseURL points the client at a compatible non-OpenAI endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if strings.TrimSpace(url) != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithTemperature overrides the default sampling temperature.
func WithTemperature(t float32) Option {
	return func(c *Client) { c.temperature = t }
}

// WithStageModel overrides the model for one stage.
func WithStageModel(stage, model string) Option {
	return func(c *Client) {
		if strings.TrimSpace(stage) == "" || strings.TrimSpace(model) == "" {
			return
		}
		c.stageModels[stage] = model
	}
}

// WithStageTemperature overrides the sampling temperature for one stage.
func WithStageTemperature(stage string, t float32) Option {
	return func(c *Client) {
		if strings.TrimSpace(stage) == "" {
			return
		}
		c.stageTemps[stage] = t
	}
}

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient constructs a narrative client.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("NARRATIVE_API_KEY is required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, fmt.Errorf("NARRATIVE_MODEL is required")
	}
	c := &Client{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       model,
		temperature: 0.3,
		stageModels: map[string]string{},
		stageTemps:  map[string]float32{},
		httpClient:  &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Annotate sends the stage facts and returns the model's commentary as
// plain text.
func (c *Client) Annotate(ctx context.Context, req narrative.Request) (string, error) {
	facts, err := json.Marshal(req.Facts)
	if err != nil {
		return "", fmt.Errorf("narrative facts marshal: %w", err)
	}

	model := c.model
	if m, ok := c.stageModels[req.Stage]; ok {
		model = m
	}
	temp := c.temperature
	if t, ok := c.stageTemps[req.Stage]; ok {
		temp = t
	}
	reqBody := chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt(req.Stage)},
			{Role: "user", Content: string(facts)},
		},
		Temperature: &temp,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			return "", fmt.Errorf("narrative request timeout: %w", err)
		}
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("narrative response parse: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("narrative provider error: %s (%s)", parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("narrative response missing choices")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("narrative response empty content")
	}
	return content, nil
}

var _ narrative.Annotator = (*Client)(nil)
