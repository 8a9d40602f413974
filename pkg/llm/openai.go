package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/teslashibe/go-speechgate/internal/httpc"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey      string
	BaseURL     string // e.g. "https://api.openai.com/v1"; empty uses the library default
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Option is a functional option for Config.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option { return func(c *Config) { c.APIKey = key } }

// WithBaseURL sets an OpenAI-compatible base URL.
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

// WithModel sets the chat model.
func WithModel(model string) Option { return func(c *Config) { c.Model = model } }

// WithTemperature sets sampling temperature.
func WithTemperature(t float32) Option { return func(c *Config) { c.Temperature = t } }

// WithMaxTokens caps reply length.
func WithMaxTokens(n int) Option { return func(c *Config) { c.MaxTokens = n } }

// WithTimeout sets the HTTP timeout for a whole streamed reply.
func WithTimeout(d time.Duration) Option { return func(c *Config) { c.Timeout = d } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// OpenAI implements Provider with the OpenAI chat completions API.
type OpenAI struct {
	client *openai.Client
	config Config
	logger *slog.Logger
}

// NewOpenAI builds an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := Config{
		Model:       DefaultModel,
		Temperature: 0.8,
		Timeout:     60 * time.Second,
		Logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = httpc.NewClient(cfg.Timeout)

	return &OpenAI{
		client: openai.NewClientWithConfig(oc),
		config: cfg,
		logger: cfg.Logger.With("component", "llm.openai"),
	}, nil
}

// Chat opens a streamed completion for cc.
func (o *OpenAI) Chat(ctx context.Context, cc *ChatContext) (Stream, error) {
	msgs := cc.Messages()
	req := openai.ChatCompletionRequest{
		Model:         o.config.Model,
		Messages:      toOpenAIMessages(msgs),
		Temperature:   o.config.Temperature,
		MaxTokens:     o.config.MaxTokens,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}

	o.logger.Debug("chat request", "model", o.config.Model, "messages", len(msgs))

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm [openai]: create stream: %w", err)
	}
	return &openAIStream{stream: stream}, nil
}

// Close is a no-op; the HTTP client is shared.
func (o *OpenAI) Close() error {
	return nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Text})
	}
	return out
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

// Recv returns the next delta. io.EOF is passed through unchanged.
func (s *openAIStream) Recv() (Chunk, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return Chunk{}, err
	}

	var chunk Chunk
	if len(resp.Choices) > 0 {
		chunk.Delta = resp.Choices[0].Delta.Content
	}
	if resp.Usage != nil {
		chunk.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return chunk, nil
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

var _ Provider = (*OpenAI)(nil)
