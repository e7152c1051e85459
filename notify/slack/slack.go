// Package slack posts roadmap completion notices to a Slack channel.
package slack

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/guidepost-ai/guidepost/model"
)

// Notifier posts one message per finished run via chat.postMessage.
type Notifier struct {
	api     *slack.Client
	channel string
}

// New creates a Slack notifier for the given bot token and channel.
func New(botToken, channel string) *Notifier {
	return &Notifier{
		api:     slack.New(botToken),
		channel: channel,
	}
}

// RoadmapReady posts a Block Kit message for the finished run. If the rich
// message fails to send, it falls back to plain text.
func (n *Notifier) RoadmapReady(ctx context.Context, run *model.Run) error {
	headerText := slack.NewTextBlockObject(slack.MarkdownType, headline(run), false, false)
	headerSection := slack.NewSectionBlock(headerText, nil, nil)

	contextBlock := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("Run `%s` | Repo `%s` | %d reflection pass(es)",
				run.ID, run.Repo, run.ReflectionIterations),
			false, false),
	)

	_, _, err := n.api.PostMessageContext(ctx, n.channel,
		slack.MsgOptionBlocks(headerSection, slack.NewDividerBlock(), contextBlock),
	)
	if err != nil {
		_, _, err = n.api.PostMessageContext(ctx, n.channel,
			slack.MsgOptionText(plainHeadline(run), false),
		)
	}
	if err != nil {
		return fmt.Errorf("posting to %s: %w", n.channel, err)
	}
	return nil
}

// headline builds the mrkdwn first line. Linking the comment only works
// when one was actually posted.
func headline(run *model.Run) string {
	if run.CommentURL != "" {
		return fmt.Sprintf(":world_map: *Review roadmap ready* for `%s` #%d\n<%s|View the roadmap comment>",
			run.Repo, run.PRNumber, run.CommentURL)
	}
	return fmt.Sprintf(":world_map: *Review roadmap ready* for `%s` #%d (comment not posted)",
		run.Repo, run.PRNumber)
}

func plainHeadline(run *model.Run) string {
	if run.CommentURL != "" {
		return fmt.Sprintf("Review roadmap ready for %s #%d: %s", run.Repo, run.PRNumber, run.CommentURL)
	}
	return fmt.Sprintf("Review roadmap ready for %s #%d", run.Repo, run.PRNumber)
}
