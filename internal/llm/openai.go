package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sashabaranov/go-openai"

	"github.com/vinayprograms/gatedagent/internal/logging"
)

// Retry configuration defaults
const (
	defaultMaxRetries  = 3
	defaultInitBackoff = 1 * time.Second
	defaultMaxBackoff  = 30 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible chat client.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string // empty uses api.openai.com
	Model      string
	SystemRole string
	MaxRetries int
	Timeout    time.Duration
	Logger     *logging.Logger
}

// OpenAIClient implements Model and Streamer against any OpenAI-compatible
// chat completions endpoint.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	systemRole string
	timeout    time.Duration
	retry      retrypolicy.RetryPolicy[string]
	logger     *logging.Logger
}

// NewOpenAIClient creates a chat client.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.SystemRole == "" {
		cfg.SystemRole = "You are a helpful assistant."
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	retry := retrypolicy.NewBuilder[string]().
		HandleIf(func(_ string, err error) bool { return isRetryableError(err) }).
		WithBackoff(defaultInitBackoff, defaultMaxBackoff).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		Build()

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		systemRole: cfg.SystemRole,
		timeout:    cfg.Timeout,
		retry:      retry,
		logger:     cfg.Logger.WithComponent("llm"),
	}, nil
}

func (c *OpenAIClient) request(prompt string, temperature float64) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemRole},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(temperature),
	}
}

func (c *OpenAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Generate implements Model.
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	out, err := failsafe.With(c.retry).WithContext(ctx).Get(func() (string, error) {
		resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, temperature))
		if err != nil {
			return "", err
		}
		if len(resp.Choices) == 0 {
			return "", ErrNoChoices
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		c.logger.Error("completion failed", map[string]interface{}{
			"model": c.model,
			"error": err.Error(),
		})
		return "", fmt.Errorf("chat completion: %w", err)
	}

	c.logger.Debug("completion", map[string]interface{}{
		"model":    c.model,
		"duration": time.Since(start).String(),
		"chars":    len(out),
	})
	return out, nil
}

// Stream implements Streamer. Streams are not retried once chunks have been
// delivered.
func (c *OpenAIClient) Stream(ctx context.Context, prompt string, temperature float64, fn func(chunk string)) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := c.request(prompt, temperature)
	req.Stream = true
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return "", fmt.Errorf("open completion stream: %w", err)
	}
	defer stream.Close()

	var sb strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sb.String(), fmt.Errorf("read completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		part := resp.Choices[0].Delta.Content
		if part == "" {
			continue
		}
		sb.WriteString(part)
		if fn != nil {
			fn(part)
		}
	}
	return sb.String(), nil
}
