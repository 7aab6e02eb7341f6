// Package config loads the application configuration: a YAML file with
// defaults for every field, plus SAARTHI_* environment overrides for the
// settings that change between deployments.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LogConfig controls logging output.
type LogConfig struct {
	Level string `yaml:"level"` // debug or info
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	MCP  bool   `yaml:"mcp"` // also serve the MCP tool interface on stdio
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// OllamaConfig configures the local Ollama provider.
type OllamaConfig struct {
	BaseURL    string `yaml:"base_url"`
	ChatModel  string `yaml:"chat_model"`
	EmbedModel string `yaml:"embed_model"`
}

// OpenAIConfig configures an OpenAI-compatible provider. The API key is
// read from the environment variable named by APIKeyEnv.
type OpenAIConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	ChatModel  string `yaml:"chat_model"`
	EmbedModel string `yaml:"embed_model"`
}

// ProviderConfig selects and configures the model provider.
type ProviderConfig struct {
	Type   string       `yaml:"type"` // ollama or openai
	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
}

// RetrievalConfig tunes semantic search.
type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	MinScore      float32 `yaml:"min_score"`
	EmbedCacheLen int     `yaml:"embed_cache_len"`
	EmbedCacheTTL int     `yaml:"embed_cache_ttl_secs"`
}

// CacheConfig tunes the external-content cache.
type CacheConfig struct {
	FreshnessHours int `yaml:"freshness_hours"`
}

// FetchConfig tunes the external fetch stage.
type FetchConfig struct {
	AllowedHosts     []string `yaml:"allowed_hosts"`
	TimeoutSecs      int      `yaml:"timeout_secs"`
	Attempts         int      `yaml:"attempts"`
	MinResults       int      `yaml:"min_results"`
	MinConfidence    float32  `yaml:"min_confidence"`
	BreakerThreshold int      `yaml:"breaker_threshold"`
	BreakerCooldown  int      `yaml:"breaker_cooldown_secs"`
}

// RespondConfig tunes the generation stage.
type RespondConfig struct {
	TimeoutSecs int `yaml:"timeout_secs"`
	Attempts    int `yaml:"attempts"`
}

// SessionConfig tunes session lifetimes.
type SessionConfig struct {
	TTLMinutes   int `yaml:"ttl_minutes"`
	SweepMinutes int `yaml:"sweep_minutes"`
}

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Provider  ProviderConfig  `yaml:"provider"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Cache     CacheConfig     `yaml:"cache"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Respond   RespondConfig   `yaml:"respond"`
	Session   SessionConfig   `yaml:"session"`
}

// Load reads the config from path. A missing file yields the defaults; a
// present file is merged over them. Environment overrides apply last.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		applyDefaults(cfg)
	}

	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "saarthi-data"
	}
	if cfg.Provider.Type == "" {
		cfg.Provider.Type = "ollama"
	}
	if cfg.Provider.Ollama.BaseURL == "" {
		cfg.Provider.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.Provider.Ollama.ChatModel == "" {
		cfg.Provider.Ollama.ChatModel = "llama3.2"
	}
	if cfg.Provider.Ollama.EmbedModel == "" {
		cfg.Provider.Ollama.EmbedModel = "nomic-embed-text"
	}
	if cfg.Provider.OpenAI.APIKeyEnv == "" {
		cfg.Provider.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Provider.OpenAI.ChatModel == "" {
		cfg.Provider.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if cfg.Provider.OpenAI.EmbedModel == "" {
		cfg.Provider.OpenAI.EmbedModel = "text-embedding-3-small"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.MinScore == 0 {
		cfg.Retrieval.MinScore = 0.25
	}
	if cfg.Retrieval.EmbedCacheLen == 0 {
		cfg.Retrieval.EmbedCacheLen = 1024
	}
	if cfg.Retrieval.EmbedCacheTTL == 0 {
		cfg.Retrieval.EmbedCacheTTL = 600
	}
	if cfg.Cache.FreshnessHours == 0 {
		cfg.Cache.FreshnessHours = 24
	}
	if cfg.Fetch.TimeoutSecs == 0 {
		cfg.Fetch.TimeoutSecs = 5
	}
	if cfg.Fetch.Attempts == 0 {
		cfg.Fetch.Attempts = 3
	}
	if cfg.Fetch.MinResults == 0 {
		cfg.Fetch.MinResults = 3
	}
	if cfg.Fetch.MinConfidence == 0 {
		cfg.Fetch.MinConfidence = 0.45
	}
	if cfg.Fetch.BreakerThreshold == 0 {
		cfg.Fetch.BreakerThreshold = 5
	}
	if cfg.Fetch.BreakerCooldown == 0 {
		cfg.Fetch.BreakerCooldown = 30
	}
	if cfg.Respond.TimeoutSecs == 0 {
		cfg.Respond.TimeoutSecs = 10
	}
	if cfg.Respond.Attempts == 0 {
		cfg.Respond.Attempts = 3
	}
	if cfg.Session.TTLMinutes == 0 {
		cfg.Session.TTLMinutes = 30
	}
	if cfg.Session.SweepMinutes == 0 {
		cfg.Session.SweepMinutes = 5
	}
}

// applyEnv overlays SAARTHI_* environment variables on the loaded config.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SAARTHI_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SAARTHI_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SAARTHI_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SAARTHI_PROVIDER"); v != "" {
		cfg.Provider.Type = v
	}
	if v := os.Getenv("SAARTHI_ALLOWED_HOSTS"); v != "" {
		hosts := strings.Split(v, ",")
		for i := range hosts {
			hosts[i] = strings.TrimSpace(hosts[i])
		}
		cfg.Fetch.AllowedHosts = hosts
	}
}

func validate(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info":
	default:
		return fmt.Errorf("config: unknown log level %q", cfg.Log.Level)
	}
	switch cfg.Provider.Type {
	case "ollama", "openai":
	default:
		return fmt.Errorf("config: unknown provider type %q", cfg.Provider.Type)
	}
	return nil
}
