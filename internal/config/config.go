// Package config handles Spinach configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spinach-rag/spinach/internal/paths"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/spinach/config.yaml, /etc/spinach/config.yaml.
func DefaultSearchPaths() []string {
	candidates := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "spinach", "config.yaml"))
	}

	return append(candidates, "/etc/spinach/config.yaml")
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns "" with a nil error when no file exists anywhere: Spinach runs
// on built-in defaults against a local Ollama.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", nil
}

// Config holds all Spinach configuration.
type Config struct {
	Models       ModelsConfig            `yaml:"models"`
	OpenAI       OpenAIConfig            `yaml:"openai"`
	Anthropic    AnthropicConfig         `yaml:"anthropic"`
	Embeddings   EmbeddingsConfig        `yaml:"embeddings"`
	Retrieval    RetrievalConfig         `yaml:"retrieval"`
	News         NewsConfig              `yaml:"news"`
	Search       SearchConfig            `yaml:"search"`
	History      HistoryConfig           `yaml:"history"`
	Pricing      map[string]PricingEntry `yaml:"pricing"`
	Paths        map[string]string       `yaml:"paths"`
	DataDir      string                  `yaml:"data_dir"`
	SystemPrompt string                  `yaml:"system_prompt"`
	LogLevel     string                  `yaml:"log_level"`
	LogFormat    string                  `yaml:"log_format"`
}

// ModelsConfig defines which chat model answers and where it lives.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to the provider that serves it.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // ollama, openai, anthropic
}

// OpenAIConfig defines an OpenAI-compatible chat endpoint (OpenAI,
// LM Studio, llama.cpp server, vLLM).
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Configured reports whether the OpenAI-compatible provider should be
// registered. A base URL alone is enough for local servers.
func (c OpenAIConfig) Configured() bool {
	return c.APIKey != "" || c.BaseURL != ""
}

// AnthropicConfig defines the Anthropic Messages API provider.
type AnthropicConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`   // Embedding model name (e.g., nomic-embed-text)
	BaseURL string `yaml:"baseurl"` // Ollama URL (defaults to models.ollama_url)
}

// RetrievalConfig controls how files are chunked for look and create.
type RetrievalConfig struct {
	// ChunkSize is the number of words per chunk.
	ChunkSize int `yaml:"chunk_size"`
	// Overlap is the number of words shared by consecutive chunks.
	Overlap int `yaml:"overlap"`
	// MaxFileBytes rejects larger files in look.
	MaxFileBytes int64 `yaml:"max_file_bytes"`
	// MaxPageBytes caps a web page download in look <url>.
	MaxPageBytes int64 `yaml:"max_page_bytes"`
	// Workers bounds concurrent embedding requests during create.
	Workers int `yaml:"workers"`
	// DynamicDir holds alias files written by `spinach add`.
	DynamicDir string `yaml:"dynamic_dir"`
}

// NewsConfig defines the NewsAPI integration.
type NewsConfig struct {
	APIKey  string   `yaml:"api_key"`
	BaseURL string   `yaml:"base_url"`
	Sources []string `yaml:"sources"`
	Count   int      `yaml:"count"`
}

// SearchConfig selects and configures the web search provider.
type SearchConfig struct {
	Provider string        `yaml:"provider"` // serper, brave, searxng
	Count    int           `yaml:"count"`
	Serper   SerperConfig  `yaml:"serper"`
	Brave    BraveConfig   `yaml:"brave"`
	SearXNG  SearXNGConfig `yaml:"searxng"`
}

// SerperConfig holds the Serper (Google results) API key.
type SerperConfig struct {
	APIKey string `yaml:"api_key"`
}

// BraveConfig holds the Brave Search API key.
type BraveConfig struct {
	APIKey string `yaml:"api_key"`
}

// SearXNGConfig holds the base URL of a SearXNG instance.
type SearXNGConfig struct {
	URL string `yaml:"url"`
}

// HistoryConfig controls conversation history and transcripts.
type HistoryConfig struct {
	// Persist records every message to <data_dir>/transcripts.db and
	// per-turn token usage to <data_dir>/usage.db.
	Persist bool `yaml:"persist"`
	// MaxMessages caps in-memory history. Zero means unlimited.
	MaxMessages int `yaml:"max_messages"`
}

// PricingEntry is the USD price of a hosted model per million tokens.
// Models without an entry are treated as free.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// Load reads configuration from a YAML file. A .env file next to the
// config and one in the working directory are loaded first, so
// ${VAR} references can be kept out of the YAML. Variables already set
// in the environment win.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration used when no config file
// exists. API keys are still picked up from the environment.
func Default() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		News:    NewsConfig{APIKey: os.Getenv("NEWS_API_KEY")},
		Search:  SearchConfig{Serper: SerperConfig{APIKey: os.Getenv("SERPER_API_KEY")}},
		History: HistoryConfig{Persist: true},
	}
	cfg.applyDefaults()
	return cfg
}

// DefaultNewsSources is the source list used by a bare `news`.
var DefaultNewsSources = []string{"associated-press", "politico", "the-hill", "financial-times"}

func (c *Config) applyDefaults() {
	if c.Models.Default == "" {
		c.Models.Default = "llama3.1"
	}
	if c.Models.OllamaURL == "" {
		c.Models.OllamaURL = "http://localhost:11434"
	}
	for i := range c.Models.Available {
		if c.Models.Available[i].Provider == "" {
			c.Models.Available[i].Provider = "ollama"
		}
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "nomic-embed-text"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = c.Models.OllamaURL
	}
	if c.Retrieval.ChunkSize == 0 {
		c.Retrieval.ChunkSize = 200
	}
	if c.Retrieval.MaxFileBytes == 0 {
		c.Retrieval.MaxFileBytes = 100 << 20
	}
	if c.Retrieval.MaxPageBytes == 0 {
		c.Retrieval.MaxPageBytes = 5 << 20
	}
	if c.Retrieval.Workers == 0 {
		c.Retrieval.Workers = 4
	}
	if c.DataDir == "" {
		c.DataDir = "~/.local/share/spinach"
	}
	c.DataDir = paths.ExpandHome(c.DataDir)
	if c.Retrieval.DynamicDir == "" {
		c.Retrieval.DynamicDir = filepath.Join(c.DataDir, "dynamic")
	}
	c.Retrieval.DynamicDir = paths.ExpandHome(c.Retrieval.DynamicDir)
	if c.News.BaseURL == "" {
		c.News.BaseURL = "https://newsapi.org/v2"
	}
	if len(c.News.Sources) == 0 {
		c.News.Sources = append([]string(nil), DefaultNewsSources...)
	}
	if c.News.Count == 0 {
		c.News.Count = 10
	}
	if c.Search.Provider == "" {
		c.Search.Provider = "serper"
	}
	if c.Search.Count == 0 {
		c.Search.Count = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive, got %d", c.Retrieval.ChunkSize)
	}
	if c.Retrieval.Overlap < 0 || c.Retrieval.Overlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.overlap must be in [0, %d), got %d", c.Retrieval.ChunkSize, c.Retrieval.Overlap)
	}
	if c.Retrieval.MaxPageBytes < 0 {
		return fmt.Errorf("retrieval.max_page_bytes must not be negative, got %d", c.Retrieval.MaxPageBytes)
	}
	if c.Retrieval.Workers < 0 {
		return fmt.Errorf("retrieval.workers must not be negative, got %d", c.Retrieval.Workers)
	}
	switch c.Search.Provider {
	case "serper", "brave", "searxng":
	default:
		return fmt.Errorf("search.provider %q is not one of serper, brave, searxng", c.Search.Provider)
	}
	for _, m := range c.Models.Available {
		switch m.Provider {
		case "ollama", "openai":
		case "anthropic":
			if c.Anthropic.APIKey == "" {
				return fmt.Errorf("models.available[%s]: anthropic.api_key is required", m.Name)
			}
		default:
			return fmt.Errorf("models.available[%s]: unknown provider %q", m.Name, m.Provider)
		}
	}
	for model, p := range c.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("pricing[%s]: prices must not be negative", model)
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("log_format %q is not text or json", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// IndexPath is the SQLite database holding collections built by create.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index.db")
}

// TranscriptPath is the SQLite database holding chat transcripts.
func (c *Config) TranscriptPath() string {
	return filepath.Join(c.DataDir, "transcripts.db")
}

// UsagePath is the SQLite database holding per-turn token usage.
func (c *Config) UsagePath() string {
	return filepath.Join(c.DataDir, "usage.db")
}

// HistoryFile is where the line editor keeps prompt history.
func (c *Config) HistoryFile() string {
	return filepath.Join(c.DataDir, "history")
}
