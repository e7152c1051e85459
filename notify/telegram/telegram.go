// Package telegram sends roadmap completion notices to a Telegram chat.
package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/guidepost-ai/guidepost/model"
)

// Notifier sends one message per finished run to a fixed chat.
type Notifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

// New creates a Telegram notifier. The token is validated against the Bot
// API immediately.
func New(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating Telegram bot: %w", err)
	}
	return &Notifier{api: api, chatID: chatID}, nil
}

// RoadmapReady sends a MarkdownV2 message describing the finished run,
// retrying as plain text if Telegram rejects the markup.
func (n *Notifier) RoadmapReady(_ context.Context, run *model.Run) error {
	msg := tgbotapi.NewMessage(n.chatID, formatMessage(run))
	msg.ParseMode = "MarkdownV2"

	if _, err := n.api.Send(msg); err != nil {
		msg.ParseMode = ""
		msg.Text = plainMessage(run)
		if _, err := n.api.Send(msg); err != nil {
			return fmt.Errorf("sending Telegram message: %w", err)
		}
	}
	return nil
}

func formatMessage(run *model.Run) string {
	if run.CommentURL != "" {
		return fmt.Sprintf(
			"🗺 *Review roadmap ready\\!*\n\n[%s \\#%d](%s)\n\nRun `%s` \\| %d reflection pass\\(es\\)",
			escapeMarkdown(run.Repo),
			run.PRNumber,
			escapeMarkdown(run.CommentURL),
			run.ID,
			run.ReflectionIterations,
		)
	}
	return fmt.Sprintf(
		"🗺 *Review roadmap ready\\!*\n\n`%s` \\#%d \\(comment not posted\\)\n\nRun `%s`",
		escapeMarkdown(run.Repo),
		run.PRNumber,
		run.ID,
	)
}

func plainMessage(run *model.Run) string {
	if run.CommentURL != "" {
		return fmt.Sprintf("Review roadmap ready for %s #%d: %s", run.Repo, run.PRNumber, run.CommentURL)
	}
	return fmt.Sprintf("Review roadmap ready for %s #%d (run %s)", run.Repo, run.PRNumber, run.ID)
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	replacer := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"]", "\\]",
		"(", "\\(",
		")", "\\)",
		"~", "\\~",
		"`", "\\`",
		">", "\\>",
		"#", "\\#",
		"+", "\\+",
		"-", "\\-",
		"=", "\\=",
		"|", "\\|",
		"{", "\\{",
		"}", "\\}",
		".", "\\.",
		"!", "\\!",
	)
	return replacer.Replace(s)
}
