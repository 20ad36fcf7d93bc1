package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides (FIRETRACK_LLM_PROVIDER, ...).
const EnvPrefix = "FIRETRACK"

// Settings is the typed view of the application configuration.
type Settings struct {
	Database DatabaseSettings
	Logging  LoggingSettings
	LLM      LLMSettings
	Cache    CacheSettings
	Learning LearningSettings
}

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string
}

// LoggingSettings selects the slog handler.
type LoggingSettings struct {
	Level  string
	Format string
}

// LLMSettings configures the AI fallback classifier.
type LLMSettings struct {
	Provider    string
	Model       string
	APIKey      string
	Timeout     time.Duration
	RetryDelay  time.Duration
	Temperature float64
	MaxTokens   int
	DailyLimit  int
	RateLimit   int
	Enabled     bool
}

// CacheSettings holds the reference-data cache lifetimes.
type CacheSettings struct {
	RulesTTL      time.Duration
	CategoriesTTL time.Duration
}

// LearningSettings tunes the correction learning loop.
type LearningSettings struct {
	MinCorrections int
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "$HOME/.local/share/firetrack/firetrack.db")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.retry_delay", 500*time.Millisecond)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.daily_limit", 100)
	v.SetDefault("llm.rate_limit", 60)
	v.SetDefault("cache.rules_ttl", 5*time.Minute)
	v.SetDefault("cache.categories_ttl", 10*time.Minute)
	v.SetDefault("learning.min_corrections", 2)
}

// Load reads Settings from v and validates them.
func Load(v *viper.Viper) (Settings, error) {
	s := Settings{
		Database: DatabaseSettings{
			Path: ExpandPath(v.GetString("database.path")),
		},
		Logging: LoggingSettings{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
		LLM: LLMSettings{
			Enabled:     v.GetBool("llm.enabled"),
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			Model:       v.GetString("llm.model"),
			APIKey:      v.GetString("llm.api_key"),
			Timeout:     v.GetDuration("llm.timeout"),
			RetryDelay:  v.GetDuration("llm.retry_delay"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			DailyLimit:  v.GetInt("llm.daily_limit"),
			RateLimit:   v.GetInt("llm.rate_limit"),
		},
		Cache: CacheSettings{
			RulesTTL:      v.GetDuration("cache.rules_ttl"),
			CategoriesTTL: v.GetDuration("cache.categories_ttl"),
		},
		Learning: LearningSettings{
			MinCorrections: v.GetInt("learning.min_corrections"),
		},
	}

	if s.LLM.APIKey == "" {
		s.LLM.APIKey = providerKeyFromEnv(s.LLM.Provider)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings for values the engine cannot work with.
func (s Settings) Validate() error {
	if s.Database.Path == "" {
		return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
	}
	if s.LLM.DailyLimit < 0 {
		return fmt.Errorf("%w: llm.daily_limit must not be negative", common.ErrInvalidConfig)
	}
	if s.LLM.Timeout <= 0 {
		return fmt.Errorf("%w: llm.timeout must be positive", common.ErrInvalidConfig)
	}
	if s.Learning.MinCorrections < 1 {
		return fmt.Errorf("%w: learning.min_corrections must be at least 1", common.ErrInvalidConfig)
	}
	switch s.LLM.Provider {
	case "anthropic", "openai", "gemini":
	default:
		return fmt.Errorf("%w: unsupported llm.provider %q", common.ErrInvalidConfig, s.LLM.Provider)
	}
	return nil
}

// providerKeyFromEnv falls back to the provider's conventional environment variable.
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "gemini":
		return os.Getenv("GEMINI_API_KEY")
	}
	return ""
}
