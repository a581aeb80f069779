package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/fabfab/nexo/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Request is one chat completion call. MaxTokens of zero leaves the limit to
// the provider.
type Request struct {
	Messages  []Message
	MaxTokens int
}

type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

type Options struct {
	Provider string
	Model    string
	Timeout  time.Duration

	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string
}

func NewClient(cfg config.Config) (Client, error) {
	opts := Options{
		Provider:      cfg.LLM.Provider,
		Model:         cfg.LLM.Model,
		Timeout:       cfg.LLM.Timeout,
		OllamaHost:    cfg.OllamaHost,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
	}

	switch opts.Provider {
	case config.ProviderOllama:
		return NewOllamaClient(opts), nil
	case config.ProviderOpenAI:
		if opts.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai provider selected but OPENAI_API_KEY not set")
		}
		return NewOpenAIClient(opts), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", opts.Provider)
	}
}

// SystemPrompt is a convenience for the single-message prompts used across
// the service.
func SystemPrompt(content string, maxTokens int) Request {
	return Request{
		Messages:  []Message{{Role: RoleSystem, Content: content}},
		MaxTokens: maxTokens,
	}
}
