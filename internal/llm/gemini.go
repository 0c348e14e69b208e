package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/nugget/aide/internal/httpkit"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient talks to the Gemini API through the genai SDK.
type GeminiClient struct {
	client *genai.Client
	opts   Options
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini client. baseURL may be empty.
func NewGeminiClient(ctx context.Context, apiKey, baseURL string, opts Options, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Model == "" {
		opts.Model = DefaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpkit.NewClient(httpkit.WithTimeout(0)),
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &GeminiClient{
		client: gc,
		opts:   opts,
		logger: logger.With("provider", "gemini"),
	}, nil
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	system, convo := splitSystem(messages)
	contents := convertToGemini(convo)
	config := c.buildConfig(system)

	c.logger.Debug("preparing request",
		"model", c.opts.Model,
		"messages", len(contents),
		"system_len", len(system),
	)

	resp, err := c.client.Models.GenerateContent(ctx, c.opts.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResponse
	}

	out := &Completion{Text: text, Model: c.opts.Model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 {
		out.StopReason = string(resp.Candidates[0].FinishReason)
	}

	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.PromptTokens,
		"output_tokens", out.CompletionTokens,
	)
	c.logger.Log(ctx, LevelTrace, "response content", "content", text)
	return out, nil
}

func (c *GeminiClient) buildConfig(system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(c.opts.maxTokens()),
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if c.opts.Temperature != nil {
		temp := float32(*c.opts.Temperature)
		config.Temperature = &temp
	}
	if c.opts.TopP != nil {
		topP := float32(*c.opts.TopP)
		config.TopP = &topP
	}
	return config
}

func convertToGemini(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}
