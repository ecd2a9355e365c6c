package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Backend selects the generation and embedding provider.
type Backend string

const (
	BackendOllama Backend = "ollama"
	BackendOpenAI Backend = "openai"
)

// BackendEnv is the environment switch that picks the backend.
const BackendEnv = "LLM_TYPE"

// ParseBackend maps a raw switch value to a Backend. Unknown values fall back to ollama.
func ParseBackend(s string) Backend {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case BackendOpenAI:
		return BackendOpenAI
	default:
		return BackendOllama
	}
}

// OllamaConfig holds settings for a local Ollama server.
type OllamaConfig struct {
	ServerURL      string `yaml:"server_url"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// OpenAIConfig holds settings for the hosted OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKeyEnv      string `yaml:"api_key_env"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
}

// LLMConfig selects and configures the text-generation backend.
type LLMConfig struct {
	Type              string        `yaml:"type"`
	Temperature       float64       `yaml:"temperature"`
	TimeoutSecs       int           `yaml:"timeout_secs"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Ollama            *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI            *OpenAIConfig `yaml:"openai,omitempty"`
}

// Backend returns the parsed backend switch.
func (c LLMConfig) Backend() Backend { return ParseBackend(c.Type) }

// EmbedderConfig selects the embedding implementation. An empty type follows the LLM backend.
// Query embeddings are cached for CacheTTLSecs; a negative value disables the cache.
type EmbedderConfig struct {
	Type         string `yaml:"type"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs"`
}

// ChunkerConfig configures how extra corpus files are split.
type ChunkerConfig struct {
	SentencesPerChunk int `yaml:"sentences_per_chunk"`
	OverlapSentences  int `yaml:"overlap_sentences"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL        string `yaml:"url"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	Seed       bool   `yaml:"seed"`
}

// RetrieverConfig selects and configures the retrieval service.
type RetrieverConfig struct {
	Type        string        `yaml:"type"`
	TopK        int           `yaml:"top_k"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Collection  string        `yaml:"collection"`
	Corpus      []string      `yaml:"corpus,omitempty"`
	Qdrant      *QdrantConfig `yaml:"qdrant,omitempty"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragflow/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragflow/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides file settings with environment switches.
func (c *AppConfig) ApplyEnv(getenv func(string) string) {
	if v := getenv(BackendEnv); v != "" {
		c.LLM.Type = v
	}
	c.LLM.Type = string(ParseBackend(c.LLM.Type))
	applyConfigDefaults(c)
}

// Validate reports settings that cannot produce a working pipeline.
func (c *AppConfig) Validate() error {
	if c.LLM.TimeoutSecs <= 0 {
		return errors.New("llm.timeout_secs must be positive")
	}
	if c.LLM.RequestsPerSecond < 0 {
		return errors.New("llm.requests_per_second must not be negative")
	}
	if c.Retriever.TimeoutSecs <= 0 {
		return errors.New("retriever.timeout_secs must be positive")
	}
	if c.Retriever.TopK <= 0 {
		return errors.New("retriever.top_k must be positive")
	}
	switch c.Embedder.Type {
	case "", "tfidf", string(BackendOllama), string(BackendOpenAI):
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	switch c.Retriever.Type {
	case "chromem":
	case "qdrant":
		if c.Retriever.Qdrant == nil || c.Retriever.Qdrant.URL == "" {
			return errors.New("qdrant config missing")
		}
	default:
		return fmt.Errorf("unknown retriever: %s", c.Retriever.Type)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragflow", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		LLM:       LLMConfig{Type: string(BackendOllama)},
		Retriever: RetrieverConfig{Type: "chromem"},
		Chunker:   ChunkerConfig{SentencesPerChunk: 5, OverlapSentences: 1},
		Logging:   LoggingConfig{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.LLM.Type == "" {
		cfg.LLM.Type = string(BackendOllama)
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	switch cfg.LLM.Backend() {
	case BackendOpenAI:
		if cfg.LLM.OpenAI == nil {
			cfg.LLM.OpenAI = &OpenAIConfig{}
		}
		if cfg.LLM.OpenAI.BaseURL == "" {
			cfg.LLM.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.LLM.OpenAI.APIKeyEnv == "" {
			cfg.LLM.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.LLM.OpenAI.Model == "" {
			cfg.LLM.OpenAI.Model = "gpt-4o-mini"
		}
		if cfg.LLM.OpenAI.EmbeddingModel == "" {
			cfg.LLM.OpenAI.EmbeddingModel = "text-embedding-3-small"
		}
	default:
		if cfg.LLM.Ollama == nil {
			cfg.LLM.Ollama = &OllamaConfig{}
		}
		if cfg.LLM.Ollama.ServerURL == "" {
			cfg.LLM.Ollama.ServerURL = "http://localhost:11434"
		}
		if cfg.LLM.Ollama.Model == "" {
			cfg.LLM.Ollama.Model = "llama3.1:8b"
		}
		if cfg.LLM.Ollama.EmbeddingModel == "" {
			cfg.LLM.Ollama.EmbeddingModel = cfg.LLM.Ollama.Model
		}
	}
	if cfg.Retriever.Type == "" {
		cfg.Retriever.Type = "chromem"
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 4
	}
	if cfg.Retriever.TimeoutSecs == 0 {
		cfg.Retriever.TimeoutSecs = 30
	}
	if cfg.Retriever.Collection == "" {
		cfg.Retriever.Collection = "ragflow_default"
	}
	if cfg.Retriever.Type == "qdrant" && cfg.Retriever.Qdrant != nil && cfg.Retriever.Qdrant.Collection == "" {
		cfg.Retriever.Qdrant.Collection = cfg.Retriever.Collection
	}
	if cfg.Embedder.CacheTTLSecs == 0 {
		cfg.Embedder.CacheTTLSecs = 600
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}
