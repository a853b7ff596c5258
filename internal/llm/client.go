package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/diyoloji/support-engine/internal/observability"
)

// Client is the chat-completion surface the pipeline consumes. Both calls
// return the raw JSON text of the model's message; parsing and validation
// stay with the caller.
type Client interface {
	// ChatJSON requests a completion in JSON object mode.
	ChatJSON(ctx context.Context, system, user string) (string, error)
	// ChatStructured requests a completion constrained by a strict JSON
	// schema derived from the given result type.
	ChatStructured(ctx context.Context, system, user, schemaName string, result any) (string, error)
}

// Config configures the OpenAI-backed client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// OpenAIClient implements Client against the OpenAI chat completions API.
type OpenAIClient struct {
	api    *openai.Client
	config Config
	logger *observability.Logger
}

// NewOpenAIClient validates config and builds a client.
func NewOpenAIClient(cfg Config, logger *observability.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = observability.DefaultLogger()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIClient{
		api:    openai.NewClientWithConfig(apiCfg),
		config: cfg,
		logger: logger,
	}, nil
}

func (c *OpenAIClient) ChatJSON(ctx context.Context, system, user string) (string, error) {
	return c.complete(ctx, system, user, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (c *OpenAIClient) ChatStructured(ctx context.Context, system, user, schemaName string, result any) (string, error) {
	schema, err := jsonschema.GenerateSchemaForType(result)
	if err != nil {
		return "", fmt.Errorf("llm: generate schema %s: %w", schemaName, err)
	}
	return c.complete(ctx, system, user, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   schemaName,
			Schema: schema,
			Strict: true,
		},
	})
}

func (c *OpenAIClient) complete(ctx context.Context, system, user string, format *openai.ChatCompletionResponseFormat) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	started := time.Now()
	resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: chat completion returned no choices")
	}

	c.logger.Debug().
		Str("model", c.config.Model).
		Dur("duration", time.Since(started)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion")
	return resp.Choices[0].Message.Content, nil
}
