package routine

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-deepseek/deepseek"
	"github.com/go-deepseek/deepseek/request"
)

// Completer is a text-completion service.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// DeepSeekConfig selects model and sampling for DeepSeekCompleter.
type DeepSeekConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

type DeepSeekCompleter struct {
	client deepseek.Client
	cfg    DeepSeekConfig
}

func NewDeepSeekCompleter(cfg DeepSeekConfig) (*DeepSeekCompleter, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("DeepSeek API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	client, err := deepseek.NewClient(cfg.APIKey)
	if err != nil {
		return nil, fmt.Errorf("create DeepSeek client: %w", err)
	}
	return &DeepSeekCompleter{client: client, cfg: cfg}, nil
}

func (c *DeepSeekCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	messages := []*request.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}

	var temp *float32
	if c.cfg.Temperature > 0 {
		t := float32(c.cfg.Temperature)
		temp = &t
	}

	resp, err := c.client.CallChatCompletionsChat(ctx, &request.ChatCompletionsRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: temp,
		Stream:      false,
	})
	if err != nil {
		return "", fmt.Errorf("DeepSeek API request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("DeepSeek returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
