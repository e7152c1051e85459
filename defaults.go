package guidepost

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/guidepost-ai/guidepost/config"
	"github.com/guidepost-ai/guidepost/eventbus"
	"github.com/guidepost-ai/guidepost/github"
	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/metrics"
	slackNotify "github.com/guidepost-ai/guidepost/notify/slack"
	telegramNotify "github.com/guidepost-ai/guidepost/notify/telegram"
	sqliteStore "github.com/guidepost-ai/guidepost/store/sqlite"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	// Config defaults.
	if b.config == nil {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		b.config = cfg
	}
	if b.config.ServerAddr == "" {
		b.config.ServerAddr = ":7080"
	}
	if b.config.DataDir == "" {
		b.config.DataDir = defaultDataDir()
	}
	if b.config.DatabasePath == "" {
		b.config.DatabasePath = filepath.Join(b.config.DataDir, "guidepost.db")
	}
	if b.config.MaxReflections == 0 {
		b.config.MaxReflections = 2
	}

	// Store.
	if b.store == nil {
		if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		st, err := sqliteStore.New(b.config.DatabasePath)
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		b.store = st
	}

	// Event bus.
	if b.bus == nil {
		b.bus = eventbus.NewInMemoryBus()
	}

	// Metrics.
	if b.metrics == nil {
		b.metrics = metrics.NewRecorder()
	}

	// GitHub client.
	if b.github == nil {
		token := b.config.GithubToken()
		if token == "" {
			return fmt.Errorf("no GitHub token configured: set GITHUB_TOKEN or use WithGitHub")
		}
		b.github = github.NewClient(token)
	}

	// LLM client. The default client is instrumented so /metrics sees
	// request counts and latencies per provider.
	if b.llm == nil {
		client, err := llm.New(context.Background(), llm.Config{
			Provider: b.config.LLMProvider,
			Model:    b.config.LLMModel,
			APIKey:   b.config.APIKey(),
		})
		if err != nil {
			return fmt.Errorf("initializing llm client: %w", err)
		}
		b.llm = b.metrics.InstrumentLLM(client, b.config.LLMProvider)
	}

	// Notifiers from config, unless the caller supplied their own.
	if b.notifiers == nil {
		if b.config.SlackEnabled() {
			b.notifiers = append(b.notifiers, slackNotify.New(b.config.SlackBotToken, b.config.SlackChannel))
			log.Printf("Slack notifications enabled (channel %s)", b.config.SlackChannel)
		}
		if b.config.TelegramEnabled() {
			tg, err := telegramNotify.New(b.config.TelegramBotToken, b.config.TelegramChatID)
			if err != nil {
				log.Printf("Warning: failed to initialize Telegram notifier: %v", err)
			} else {
				b.notifiers = append(b.notifiers, tg)
				log.Printf("Telegram notifications enabled")
			}
		}
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".guidepost"
	}
	return filepath.Join(home, ".guidepost")
}
