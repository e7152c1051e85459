// Package config loads Guidepost configuration from environment
// variables (and an optional .env file in the working directory).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server and CLI need to run.
type Config struct {
	// ServerAddr is the listen address for the HTTP API.
	ServerAddr string

	// DataDir is where Guidepost keeps local state (SQLite database).
	DataDir string

	// DatabasePath is the SQLite database file. Defaults to
	// <DataDir>/guidepost.db.
	DatabasePath string

	// WebhookSecret verifies GitHub webhook signatures. Empty disables
	// signature verification.
	WebhookSecret string

	// GithubTokens are the GitHub API tokens, in rotation order. The
	// first token is used for fetching and posting; spares exist so
	// operators can swap tokens without downtime.
	GithubTokens []string

	// LLMProvider selects the model backend: anthropic, openai or google.
	LLMProvider string

	// LLMModel is the provider-specific model identifier.
	LLMModel string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	GoogleAPIKey    string

	// MaxReflections caps the draft/reflect loop per run.
	MaxReflections int

	// SkipReflection disables the self-review pass entirely.
	SkipReflection bool

	// PostComment controls whether finished roadmaps are posted back to
	// the pull request.
	PostComment bool

	// Slack notification settings. Both must be set to enable.
	SlackBotToken string
	SlackChannel  string

	// Telegram notification settings. Both must be set to enable.
	TelegramBotToken string
	TelegramChatID   int64
}

// Load reads configuration from the environment. A .env file in the
// working directory is merged in first, without overriding variables
// that are already exported.
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := envOr("GUIDEPOST_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	chatID, err := envOrInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}
	maxReflections, err := envOrInt("GUIDEPOST_MAX_REFLECTIONS", 2)
	if err != nil {
		return nil, err
	}
	skipReflection, err := envOrBool("GUIDEPOST_SKIP_REFLECTION", false)
	if err != nil {
		return nil, err
	}
	postComment, err := envOrBool("GUIDEPOST_POST_COMMENT", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ServerAddr:    envOr("GUIDEPOST_ADDR", ":7080"),
		DataDir:       dataDir,
		DatabasePath:  envOr("GUIDEPOST_DB_PATH", filepath.Join(dataDir, "guidepost.db")),
		WebhookSecret: os.Getenv("GUIDEPOST_WEBHOOK_SECRET"),

		GithubTokens: parseTokens(os.Getenv("GUIDEPOST_GITHUB_TOKENS"), os.Getenv("GITHUB_TOKEN")),

		LLMProvider: strings.ToLower(envOr("GUIDEPOST_LLM_PROVIDER", "anthropic")),
		LLMModel:    envOr("GUIDEPOST_LLM_MODEL", "claude-sonnet-4-20250514"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		GoogleAPIKey:    os.Getenv("GOOGLE_API_KEY"),

		MaxReflections: maxReflections,
		SkipReflection: skipReflection,
		PostComment:    postComment,

		SlackBotToken: os.Getenv("SLACK_BOT_TOKEN"),
		SlackChannel:  os.Getenv("SLACK_CHANNEL"),

		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   chatID,
	}
	return cfg, nil
}

// Validate checks that the configuration is complete enough to serve.
func (c *Config) Validate() error {
	if len(c.GithubTokens) == 0 {
		return fmt.Errorf("no GitHub token configured: set GITHUB_TOKEN or GUIDEPOST_GITHUB_TOKENS")
	}
	if c.MaxReflections < 0 {
		return fmt.Errorf("GUIDEPOST_MAX_REFLECTIONS must not be negative, got %d", c.MaxReflections)
	}
	switch c.LLMProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY required for provider %q", c.LLMProvider)
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY required for provider %q", c.LLMProvider)
		}
	case "google":
		if c.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY required for provider %q", c.LLMProvider)
		}
	default:
		return fmt.Errorf("unsupported llm provider: %q", c.LLMProvider)
	}
	return nil
}

// GithubToken returns the primary GitHub token, or "" when none is
// configured.
func (c *Config) GithubToken() string {
	if len(c.GithubTokens) == 0 {
		return ""
	}
	return c.GithubTokens[0]
}

// APIKey returns the API key for the configured LLM provider.
func (c *Config) APIKey() string {
	switch c.LLMProvider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	case "google":
		return c.GoogleAPIKey
	}
	return ""
}

// SlackEnabled reports whether Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// TelegramEnabled reports whether Telegram notifications are configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}

// parseTokens splits a comma-separated token list, trimming whitespace
// and dropping empty entries and duplicates. The single-token fallback
// is appended last so GUIDEPOST_GITHUB_TOKENS takes precedence over
// GITHUB_TOKEN.
func parseTokens(list, fallback string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, t := range strings.Split(list, ",") {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tokens = append(tokens, t)
	}
	if fallback = strings.TrimSpace(fallback); fallback != "" && !seen[fallback] {
		tokens = append(tokens, fallback)
	}
	return tokens
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guidepost"
	}
	return filepath.Join(home, ".guidepost")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envOrInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func envOrBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}
