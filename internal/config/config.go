package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const appName = "tutor"

type Config struct {
	Server       ServerConfig                 `mapstructure:"server"`
	Database     DatabaseConfig               `mapstructure:"database"`
	Models       ModelsConfig                 `mapstructure:"models"`
	Providers    map[string]ProviderConfig    `mapstructure:"providers"`
	Auth         AuthConfig                   `mapstructure:"auth"`
	Entitlements map[string]EntitlementConfig `mapstructure:"entitlements"`
	Usage        UsageConfig                  `mapstructure:"usage"`
	Logging      LoggingConfig                `mapstructure:"logging"`
	Tutor        TutorConfig                  `mapstructure:"tutor"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RequestsPerSec  float64       `mapstructure:"requests_per_second"`
	Burst           int           `mapstructure:"burst"`
	StreamTTL       time.Duration `mapstructure:"stream_ttl"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxDuration     time.Duration `mapstructure:"max_duration"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ModelsConfig maps the chat model ids offered to users onto provider:model
// specs, e.g. "chat-model: anthropic:claude-sonnet-4-5".
type ModelsConfig struct {
	Chat    map[string]string `mapstructure:"chat"`
	Title   string            `mapstructure:"title"`
	Default string            `mapstructure:"default"`
}

type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeOllama    ProviderType = "ollama"
	ProviderTypeMock      ProviderType = "mock"
)

type ProviderConfig struct {
	Type    ProviderType `mapstructure:"type"`
	APIKey  string       `mapstructure:"api_key"`
	BaseURL string       `mapstructure:"base_url"`
	Model   string       `mapstructure:"model"`

	// Populated by Load after ResolveValue and env fallbacks.
	ResolvedAPIKey  string `mapstructure:"-"`
	ResolvedBaseURL string `mapstructure:"-"`
}

type AuthConfig struct {
	AllowGuests  bool          `mapstructure:"allow_guests"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
	Tokens       []TokenConfig `mapstructure:"tokens"`
}

type TokenConfig struct {
	Token  string `mapstructure:"token"`
	UserID string `mapstructure:"user_id"`
	Type   string `mapstructure:"type"`
}

type EntitlementConfig struct {
	MaxMessagesPerDay int      `mapstructure:"max_messages_per_day"`
	ChatModels        []string `mapstructure:"chat_models"`
}

type UsageConfig struct {
	CatalogURL string        `mapstructure:"catalog_url"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
	CacheDir   string        `mapstructure:"cache_dir"`
	LogEnabled bool          `mapstructure:"log_enabled"`
	LogDir     string        `mapstructure:"log_dir"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TutorConfig holds terminal client defaults.
type TutorConfig struct {
	Server        string `mapstructure:"server"`
	Token         string `mapstructure:"token"`
	ThinkingDelay int    `mapstructure:"thinking_delay"`
	ProblemType   string `mapstructure:"problem_type"`
	Model         string `mapstructure:"model"`
}

// providerKeyEnv lists the env vars consulted when a provider has no api_key.
var providerKeyEnv = map[ProviderType]string{
	ProviderTypeAnthropic: "ANTHROPIC_API_KEY",
	ProviderTypeOpenAI:    "OPENAI_API_KEY",
	ProviderTypeGemini:    "GEMINI_API_KEY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.requests_per_second", 2.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.stream_ttl", 30*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_duration", 60*time.Second)

	v.SetDefault("models.chat", map[string]string{
		"chat-model":           "anthropic:claude-sonnet-4-5",
		"chat-model-reasoning": "anthropic:claude-sonnet-4-5-thinking",
	})
	v.SetDefault("models.title", "anthropic:claude-haiku-4-5")
	v.SetDefault("models.default", "chat-model")

	v.SetDefault("providers", map[string]any{
		"anthropic": map[string]any{"model": "claude-sonnet-4-5"},
		"openai":    map[string]any{"model": "gpt-5.2"},
		"gemini":    map[string]any{"model": "gemini-3-flash-preview"},
		"ollama":    map[string]any{"model": "llama3.2", "base_url": "http://localhost:11434"},
	})

	v.SetDefault("auth.allow_guests", true)

	v.SetDefault("entitlements", map[string]any{
		"guest":   map[string]any{"max_messages_per_day": 20, "chat_models": []string{"chat-model", "chat-model-reasoning"}},
		"regular": map[string]any{"max_messages_per_day": 100, "chat_models": []string{"chat-model", "chat-model-reasoning"}},
	})

	v.SetDefault("usage.catalog_url", "https://openrouter.ai/api/v1/models")
	v.SetDefault("usage.cache_ttl", 24*time.Hour)
	v.SetDefault("usage.log_enabled", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("tutor.server", "http://127.0.0.1:8080")
	v.SetDefault("tutor.thinking_delay", 5)
	v.SetDefault("tutor.problem_type", "math")
	v.SetDefault("tutor.model", "chat-model")
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error; TUTOR_* environment variables
// override file values (TUTOR_SERVER_ADDR -> server.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(strings.ToUpper(appName))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config dir: %w", err)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() error {
	for name, p := range c.Providers {
		p.Type = InferProviderType(name, p.Type)
		key, err := ResolveValue(p.APIKey)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", name, err)
		}
		if key == "" {
			if env, ok := providerKeyEnv[p.Type]; ok {
				key = os.Getenv(env)
			}
		}
		p.ResolvedAPIKey = key

		baseURL, err := ResolveValue(p.BaseURL)
		if err != nil {
			return fmt.Errorf("provider %s base_url: %w", name, err)
		}
		p.ResolvedBaseURL = baseURL
		c.Providers[name] = p
	}

	for i, t := range c.Auth.Tokens {
		resolved, err := ResolveValue(t.Token)
		if err != nil {
			return fmt.Errorf("auth token %d: %w", i, err)
		}
		c.Auth.Tokens[i].Token = resolved
	}

	if c.Database.Path == "" {
		dir, err := GetDataDir()
		if err != nil {
			return err
		}
		c.Database.Path = filepath.Join(dir, "tutor.db")
	}
	if c.Usage.CacheDir == "" {
		dir, err := GetCacheDir()
		if err != nil {
			return err
		}
		c.Usage.CacheDir = dir
	}
	if c.Usage.LogDir == "" {
		dir, err := GetDataDir()
		if err != nil {
			return err
		}
		c.Usage.LogDir = filepath.Join(dir, "usage")
	}
	return nil
}

// InferProviderType returns explicit when set, otherwise derives the type
// from well-known provider names. Unknown names default to openai, which
// covers OpenAI-compatible endpoints configured with a base_url.
func InferProviderType(name string, explicit ProviderType) ProviderType {
	if explicit != "" {
		return explicit
	}
	switch ProviderType(name) {
	case ProviderTypeAnthropic, ProviderTypeOpenAI, ProviderTypeGemini, ProviderTypeOllama, ProviderTypeMock:
		return ProviderType(name)
	}
	return ProviderTypeOpenAI
}

// ChatModelIDs returns the configured chat model ids in sorted order.
func (c *Config) ChatModelIDs() []string {
	ids := make([]string, 0, len(c.Models.Chat))
	for id := range c.Models.Chat {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetConfigDir returns $XDG_CONFIG_HOME/tutor (or the OS equivalent).
func GetConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// GetConfigPath returns the path where the config file should be located.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// GetDataDir returns $XDG_DATA_HOME/tutor, defaulting to ~/.local/share/tutor.
func GetDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", appName), nil
}

// GetCacheDir returns $XDG_CACHE_HOME/tutor (or the OS equivalent).
func GetCacheDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, appName), nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}
