// Package llm implements the decision providers on top of an OpenAI-compatible chat
// completion API. All prompt construction and response parsing lives here.
package llm

import (
	"context"
	"net/http"
	"strings"
	"time"

	appErr "arete/pkg/errors"
	"arete/pkg/utils/logger"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultBaseURL          = "https://openrouter.ai/api/v1"
	defaultInterviewerModel = "anthropic/claude-3.5-sonnet"
	defaultFairnessModel    = "google/gemini-3-pro-preview"
	defaultChatModel        = "anthropic/claude-3.5-haiku"
	defaultMaxTokens        = 1024
	defaultChatMaxTokens    = 150
	defaultRequestTimeout   = 30 * time.Second
)

// Config selects the endpoint and models.
type Config struct {
	APIKey           string        `yaml:"apiKey"`
	BaseURL          string        `yaml:"baseURL"`
	InterviewerModel string        `yaml:"interviewerModel"`
	FairnessModel    string        `yaml:"fairnessModel"`
	ChatModel        string        `yaml:"chatModel"`
	Referrer         string        `yaml:"referrer"`
	Title            string        `yaml:"title"`
	MaxTokens        int           `yaml:"maxTokens"`
	RequestTimeout   time.Duration `yaml:"requestTimeout"`
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.InterviewerModel == "" {
		c.InterviewerModel = defaultInterviewerModel
	}
	if c.FairnessModel == "" {
		c.FairnessModel = defaultFairnessModel
	}
	if c.ChatModel == "" {
		c.ChatModel = c.InterviewerModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	return c
}

// ChatCompleter is the subset of the go-openai client the provider uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Provider implements every decision contract with chat completions.
type Provider struct {
	cfg    Config
	client ChatCompleter
}

type headerTransport struct {
	rt      http.RoundTripper
	headers http.Header
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cl := req.Clone(req.Context())
	for k, vs := range t.headers {
		for _, v := range vs {
			cl.Header.Add(k, v)
		}
	}
	return t.rt.RoundTrip(cl)
}

// NewProvider builds a provider talking to cfg.BaseURL.
func NewProvider(cfg Config) *Provider {
	cfg = cfg.WithDefaults()
	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	// OpenRouter attributes traffic through these optional headers.
	if cfg.Referrer != "" || cfg.Title != "" {
		h := http.Header{}
		if cfg.Referrer != "" {
			h.Set("HTTP-Referer", cfg.Referrer)
		}
		if cfg.Title != "" {
			h.Set("X-Title", cfg.Title)
		}
		config.HTTPClient = &http.Client{Transport: headerTransport{rt: http.DefaultTransport, headers: h}}
	}
	return NewProviderWithClient(cfg, openai.NewClientWithConfig(config))
}

// NewProviderWithClient builds a provider over an existing completer.
func NewProviderWithClient(cfg Config, client ChatCompleter) *Provider {
	return &Provider{cfg: cfg.WithDefaults(), client: client}
}

type completion struct {
	model       string
	system      string
	user        []openai.ChatCompletionMessage
	temperature float32
	maxTokens   int
}

func (p *Provider) complete(ctx context.Context, op string, c completion) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
	defer cancel()

	msgs := make([]openai.ChatCompletionMessage, 0, len(c.user)+1)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: c.system})
	msgs = append(msgs, c.user...)
	maxTokens := c.maxTokens
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", appErr.Wrapf(err, appErr.DecisionProviderFailed, "%s completion failed", op)
	}
	if len(resp.Choices) == 0 {
		return "", appErr.Newf(appErr.DecisionProviderFailed, "%s completion returned no choices", op)
	}
	logger.Debug(ctx, "decision completion finished",
		zap.String("op", op),
		zap.String("model", c.model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func userMessage(content string) []openai.ChatCompletionMessage {
	return []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: content}}
}
