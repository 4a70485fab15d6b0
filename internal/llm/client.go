// Package llm talks to the text generation backend.
package llm

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/besides-508-potenday/na-T-na-AI/internal/config"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/sync/semaphore"
)

// Request is one generation call.
type Request struct {
	System  string
	User    string
	Profile config.Profile
	Schema  *Schema
}

// Usage is the token accounting reported by the backend.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Completion is a successful generation.
type Completion struct {
	Text     string
	Usage    Usage
	Latency  time.Duration
	Attempts int
}

// Generator produces text for a request. Implementations return a *Failure on error.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Completion, error)
}

type chatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client is a Generator backed by an OpenAI-compatible chat completions API.
type Client struct {
	completions chatCompleter
	model       string
	timeout     time.Duration
	retry       RetryPolicy
	structured  bool
	pool        *semaphore.Weighted
	logger      *slog.Logger

	calls            atomic.Int64
	failures         atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
	latencyMillis    atomic.Int64
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.LLMConfig, logger *slog.Logger) *Client {
	opts := []option.RequestOption{
		option.WithBaseURL(cfg.BaseURL),
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.RequestID != "" {
		opts = append(opts, option.WithHeader("X-NCP-CLOVASTUDIO-REQUEST-ID", cfg.RequestID))
	}
	oc := openai.NewClient(opts...)
	return newClient(&oc.Chat.Completions, cfg, logger)
}

func newClient(completions chatCompleter, cfg config.LLMConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Client{
		completions: completions,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		retry:       RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: 500 * time.Millisecond, MaxDelay: 5 * time.Second},
		structured:  cfg.StructuredOutput,
		pool:        semaphore.NewWeighted(int64(concurrency)),
		logger:      logger,
	}
}

// Generate sends req to the backend. Calls beyond the configured concurrency
// wait for a free slot. Transport failures are retried with backoff.
func (c *Client) Generate(ctx context.Context, req Request) (*Completion, error) {
	if err := c.pool.Acquire(ctx, 1); err != nil {
		return nil, &Failure{Kind: KindCanceled, Err: err}
	}
	defer c.pool.Release(1)

	params := c.params(req)
	start := time.Now()

	var resp *openai.ChatCompletion
	attempts, err := c.retry.Do(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		r, err := c.completions.New(callCtx, params)
		if err != nil {
			return classify(ctx, err)
		}
		resp = r
		return nil
	})
	latency := time.Since(start)

	c.calls.Add(1)
	c.latencyMillis.Add(latency.Milliseconds())
	if err != nil {
		c.failures.Add(1)
		c.logger.Warn("Generation failed", "profile", req.Profile.Name, "attempts", attempts, "latency", latency, "error", err)
		return nil, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.failures.Add(1)
		return nil, &Failure{Kind: KindEmpty}
	}

	usage := Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	c.promptTokens.Add(usage.PromptTokens)
	c.completionTokens.Add(usage.CompletionTokens)

	c.logger.Debug("Generation completed",
		"profile", req.Profile.Name,
		"attempts", attempts,
		"latency", latency,
		"tokens", usage.TotalTokens,
	)

	return &Completion{
		Text:     resp.Choices[0].Message.Content,
		Usage:    usage,
		Latency:  latency,
		Attempts: attempts,
	}, nil
}

func (c *Client) params(req Request) openai.ChatCompletionNewParams {
	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(req.System)}
	if req.User != "" {
		messages = append(messages, openai.UserMessage(req.User))
	}

	p := req.Profile
	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(c.model),
		Messages:         messages,
		Temperature:      openai.Float(p.Temperature),
		TopP:             openai.Float(p.TopP),
		MaxTokens:        openai.Int(int64(p.MaxTokens)),
		FrequencyPenalty: openai.Float(p.FrequencyPenalty),
		PresencePenalty:  openai.Float(p.PresencePenalty),
	}
	if p.Seed != nil {
		params.Seed = openai.Int(*p.Seed)
	}
	if c.structured && req.Schema != nil {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        req.Schema.Name,
					Description: openai.String(req.Schema.Description),
					Schema:      req.Schema.Definition,
					Strict:      openai.Bool(true),
				},
			},
		}
	}
	return params
}

// Stats is a snapshot of backend telemetry.
type Stats struct {
	Calls            int64 `json:"calls"`
	Failures         int64 `json:"failures"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	AvgLatencyMillis int64 `json:"avg_latency_ms"`
}

// Stats returns accumulated telemetry since start.
func (c *Client) Stats() Stats {
	calls := c.calls.Load()
	s := Stats{
		Calls:            calls,
		Failures:         c.failures.Load(),
		PromptTokens:     c.promptTokens.Load(),
		CompletionTokens: c.completionTokens.Load(),
	}
	if calls > 0 {
		s.AvgLatencyMillis = c.latencyMillis.Load() / calls
	}
	return s
}
