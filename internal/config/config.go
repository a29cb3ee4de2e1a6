package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"document-qa/internal/models"
)

type Config struct {
	EmbedLLM LLMConfig `yaml:"embed_llm"`
	RAG      RAGConfig `yaml:"rag"`
	Log      LogConfig `yaml:"log"`
}

// LLMConfig selects and configures the embedding model.
type LLMConfig struct {
	Provider   string        `yaml:"provider"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Key        string        `yaml:"key"`
	BatchSize  int           `yaml:"batch_size"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// RAGConfig holds segmentation and retrieval parameters.
type RAGConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	TopK         int     `yaml:"top_k"`
	Threshold    float64 `yaml:"threshold"`
	Backend      string  `yaml:"backend"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIURL   = "https://api.openai.com/v1"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultBatchSize   = 32
	defaultMaxRetries  = 3
	defaultRetryDelay  = time.Second
	defaultLogLevel    = "info"
)

// LoadConfig reads a YAML config. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{
		RAG: RAGConfig{
			ChunkSize:    models.DefaultChunkSize,
			ChunkOverlap: models.DefaultChunkOverlap,
			TopK:         models.DefaultTopK,
			Threshold:    models.DefaultThreshold,
		},
	}
	// set here so an explicit max_retries: 0 survives applyDefaults
	cfg.EmbedLLM.MaxRetries = defaultMaxRetries
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.EmbedLLM.Provider == "" {
		c.EmbedLLM.Provider = models.ProviderOllama
	}
	switch c.EmbedLLM.Provider {
	case models.ProviderOllama:
		if c.EmbedLLM.BaseURL == "" {
			c.EmbedLLM.BaseURL = defaultOllamaURL
		}
		if c.EmbedLLM.Model == "" {
			c.EmbedLLM.Model = defaultOllamaModel
		}
	case models.ProviderOpenAI, models.ProviderGoOpenAI:
		if c.EmbedLLM.BaseURL == "" {
			c.EmbedLLM.BaseURL = defaultOpenAIURL
		}
		if c.EmbedLLM.Model == "" {
			c.EmbedLLM.Model = defaultOpenAIModel
		}
	}
	if c.EmbedLLM.BatchSize == 0 {
		c.EmbedLLM.BatchSize = defaultBatchSize
	}
	if c.EmbedLLM.RetryDelay == 0 {
		c.EmbedLLM.RetryDelay = defaultRetryDelay
	}
	if c.RAG.TopK == 0 {
		c.RAG.TopK = models.DefaultTopK
	}
	if c.RAG.Backend == "" {
		c.RAG.Backend = models.BackendBuiltin
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// applyEnv fills the API key from the environment when the file leaves it empty.
func (c *Config) applyEnv() {
	if c.EmbedLLM.Key != "" {
		return
	}
	for _, name := range []string{"EMBED_API_KEY", "OPENAI_API_KEY"} {
		if v := os.Getenv(name); v != "" {
			c.EmbedLLM.Key = v
			return
		}
	}
}

func (c *Config) Validate() error {
	if c.RAG.ChunkSize <= 0 {
		return fmt.Errorf("rag.chunk_size must be positive, got %d", c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be at least 1, got %d", c.RAG.TopK)
	}
	if c.RAG.Threshold < -1 || c.RAG.Threshold > 1 {
		return fmt.Errorf("rag.threshold must be in [-1, 1], got %f", c.RAG.Threshold)
	}
	switch c.RAG.Backend {
	case models.BackendBuiltin, models.BackendChromem:
	default:
		return fmt.Errorf("unknown rag.backend: %s", c.RAG.Backend)
	}
	switch c.EmbedLLM.Provider {
	case models.ProviderOllama, models.ProviderOpenAI, models.ProviderGoOpenAI:
	default:
		return fmt.Errorf("unknown embed_llm.provider: %s", c.EmbedLLM.Provider)
	}
	if c.EmbedLLM.BatchSize < 0 {
		return fmt.Errorf("embed_llm.batch_size must not be negative, got %d", c.EmbedLLM.BatchSize)
	}
	if c.EmbedLLM.MaxRetries < 0 || c.EmbedLLM.MaxRetries > 10 {
		return fmt.Errorf("embed_llm.max_retries must be 0-10, got %d", c.EmbedLLM.MaxRetries)
	}
	return nil
}
