package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	domai "github.com/bryanwahyu/acunetix-report-sender/internal/domain/ai"
	"github.com/bryanwahyu/acunetix-report-sender/internal/domain/scans"
	"github.com/bryanwahyu/acunetix-report-sender/internal/infra/ai/prompt"
)

const maxTokens = 400

type Client struct {
	*openai.Client
	Model string
}

var _ domai.Summarizer = (*Client)(nil)

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// NewClientWithConfig is used to point the client at a compatible endpoint.
func NewClientWithConfig(cfg openai.ClientConfig, model string) *Client {
	return &Client{Client: openai.NewClientWithConfig(cfg), Model: model}
}

// Summarize asks the model for a short plain-text summary of one scan.
func (c *Client) Summarize(ctx context.Context, scan scans.Scan) (string, error) {
	model := c.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.SystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.UserPrompt(scan)},
		},
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if isQuota(err) {
			return "", fmt.Errorf("%w: %v", domai.ErrQuotaExceeded, err)
		}
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func isQuota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}
