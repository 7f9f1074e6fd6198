package clients

import (
	"context"
	"fmt"

	"github.com/clipfab/shorts-api/log"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIChat is the single-turn chat client behind the LLM selection
// strategy. It works against any OpenAI-compatible endpoint.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIChat{client: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIChat) Complete(ctx context.Context, jobID, system, user string) (string, error) {
	log.LogDebug(jobID, "sending chat completion request", "model", c.model, "prompt_chars", len(user))
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
