package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/nugget/aide/internal/httpkit"
)

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, vLLM, Groq, LM Studio) via the official SDK.
type OpenAIClient struct {
	client openai.Client
	opts   Options
	logger *slog.Logger
}

// NewOpenAIClient creates an OpenAI-compatible client. A non-empty
// baseURL points it at a compatible server.
func NewOpenAIClient(apiKey, baseURL string, opts Options, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpkit.NewClient(httpkit.WithTimeout(0))),
		// Retries are configured once, around every backend.
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		opts:   opts,
		logger: logger.With("provider", "openai"),
	}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(c.opts.Model),
		Messages:            convertToOpenAI(messages),
		MaxCompletionTokens: openai.Int(int64(c.opts.maxTokens())),
	}
	if c.opts.Temperature != nil {
		params.Temperature = openai.Float(*c.opts.Temperature)
	}
	if c.opts.TopP != nil {
		params.TopP = openai.Float(*c.opts.TopP)
	}

	c.logger.Debug("preparing request", "model", c.opts.Model, "messages", len(messages))

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	out := &Completion{
		Text:             resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		StopReason:       resp.Choices[0].FinishReason,
	}
	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.PromptTokens,
		"output_tokens", out.CompletionTokens,
	)
	return out, nil
}

func convertToOpenAI(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
