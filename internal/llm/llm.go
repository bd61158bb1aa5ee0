// Package llm wraps an OpenAI-compatible messages endpoint for the
// pipeline's scoring and summary calls.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Token budgets per call kind.
const (
	MaxTokensDiscussion = 512
	MaxTokensGrading    = 1024
	MaxTokensSummary    = 400
)

// Client wraps an OpenAI-compatible API client with the two models the
// pipeline uses: a cheap one for bulk grading and a more capable one
// for qualitative analysis and summaries.
type Client struct {
	api           *openai.Client
	GradeModel    string
	AnalysisModel string

	// Delay between calls keeps the paid endpoint happy.
	Delay time.Duration
	sleep func(time.Duration)
}

// New creates a new LLM client.
func New(baseURL, apiKey, gradeModel, analysisModel string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:           openai.NewClientWithConfig(config),
		GradeModel:    gradeModel,
		AnalysisModel: analysisModel,
		Delay:         500 * time.Millisecond,
		sleep:         time.Sleep,
	}
}

// Complete sends one system+user exchange and returns the raw text of
// the first choice.
func (c *Client) Complete(ctx context.Context, model, system, user string, maxTokens int, jsonMode bool) (string, error) {
	c.sleep(c.Delay)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", model, "tokens", resp.Usage.TotalTokens)
	return raw, nil
}

// ParseJSON decodes a model response into out, tolerating stray prose
// around the JSON object.
func ParseJSON(raw string, out any) error {
	trimmed := strings.TrimSpace(raw)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	return nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
