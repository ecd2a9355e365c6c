package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"ragflow/internal/config"
)

// Provider bundles the chat model and the embedding client of one backend.
type Provider struct {
	Backend  config.Backend
	Model    Model
	Embedder embeddings.EmbedderClient
}

// NewProvider constructs the backend chosen by cfg.Backend().
func NewProvider(cfg config.LLMConfig) (*Provider, error) {
	switch cfg.Backend() {
	case config.BackendOpenAI:
		return newOpenAI(cfg.OpenAI)
	default:
		return newOllama(cfg.Ollama)
	}
}

// NewClientFromConfig builds a Client for p using the call settings in cfg.
func NewClientFromConfig(p *Provider, cfg config.LLMConfig) *Client {
	return NewClient(p.Model, Config{
		Temperature:       cfg.Temperature,
		Timeout:           time.Duration(cfg.TimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})
}

func newOllama(cfg *config.OllamaConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("ollama config missing")
	}
	chat, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.ServerURL))
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	emb := chat
	if cfg.EmbeddingModel != "" && cfg.EmbeddingModel != cfg.Model {
		emb, err = ollama.New(ollama.WithModel(cfg.EmbeddingModel), ollama.WithServerURL(cfg.ServerURL))
		if err != nil {
			return nil, fmt.Errorf("creating ollama embedding client: %w", err)
		}
	}
	return &Provider{Backend: config.BackendOllama, Model: chat, Embedder: emb}, nil
}

func newOpenAI(cfg *config.OpenAIConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("openai config missing")
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	client, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
		openai.WithToken(key),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return &Provider{Backend: config.BackendOpenAI, Model: client, Embedder: client}, nil
}
