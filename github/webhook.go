package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// RoadmapCommand is the slash command that requests a roadmap in a PR
// comment.
const RoadmapCommand = "/roadmap"

// WebhookEvent represents a parsed GitHub webhook event that should
// trigger a roadmap run.
type WebhookEvent struct {
	// Action is the webhook action (e.g. "created", "opened").
	Action string

	// Repo is the full repository name ("owner/repo").
	Repo string

	// PRNumber is the pull request number.
	PRNumber int

	// CommentBody is the text of the triggering comment, if any.
	CommentBody string

	// CommentUser is the GitHub login of the commenter, if any.
	CommentUser string

	// CommentID is the GitHub ID of the triggering comment, if any.
	CommentID int64
}

// ParseWebhook parses a GitHub webhook request into a WebhookEvent.
// It supports:
//   - "issue_comment" events on pull requests whose body carries the
//     /roadmap command
//   - "pull_request" events for newly opened or ready-for-review PRs
//
// If secret is non-empty, the request signature is verified.
// Returns nil if the event does not call for a roadmap.
func ParseWebhook(r *http.Request, secret string) (*WebhookEvent, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	// Verify signature if a secret is configured.
	if secret != "" {
		sig := r.Header.Get("X-Hub-Signature-256")
		if sig == "" {
			return nil, fmt.Errorf("missing webhook signature")
		}
		if !verifySignature(body, sig, secret) {
			return nil, fmt.Errorf("invalid webhook signature")
		}
	}

	switch r.Header.Get("X-GitHub-Event") {
	case "issue_comment":
		return parseIssueComment(body)
	case "pull_request":
		return parsePullRequest(body)
	default:
		// Not an event we handle.
		return nil, nil
	}
}

func parseIssueComment(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Action string `json:"action"`
		Issue  struct {
			Number      int `json:"number"`
			PullRequest *struct {
				URL string `json:"url"`
			} `json:"pull_request"`
		} `json:"issue"`
		Comment struct {
			ID   int64  `json:"id"`
			Body string `json:"body"`
			User struct {
				Login string `json:"login"`
			} `json:"user"`
		} `json:"comment"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing issue_comment payload: %w", err)
	}

	// Only handle comments on pull requests (not plain issues).
	if payload.Issue.PullRequest == nil {
		return nil, nil
	}

	// Only handle newly created comments.
	if payload.Action != "created" {
		return nil, nil
	}

	if !HasRoadmapCommand(payload.Comment.Body) {
		return nil, nil
	}

	return &WebhookEvent{
		Action:      payload.Action,
		Repo:        payload.Repository.FullName,
		PRNumber:    payload.Issue.Number,
		CommentBody: payload.Comment.Body,
		CommentUser: payload.Comment.User.Login,
		CommentID:   payload.Comment.ID,
	}, nil
}

func parsePullRequest(body []byte) (*WebhookEvent, error) {
	var payload struct {
		Action      string `json:"action"`
		PullRequest struct {
			Number int  `json:"number"`
			Draft  bool `json:"draft"`
		} `json:"pull_request"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parsing pull_request payload: %w", err)
	}

	switch payload.Action {
	case "opened":
		// Draft PRs get their roadmap when they become ready.
		if payload.PullRequest.Draft {
			return nil, nil
		}
	case "ready_for_review":
	default:
		return nil, nil
	}

	return &WebhookEvent{
		Action:   payload.Action,
		Repo:     payload.Repository.FullName,
		PRNumber: payload.PullRequest.Number,
	}, nil
}

// HasRoadmapCommand reports whether any line of the comment starts with
// the /roadmap command as its own word.
func HasRoadmapCommand(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == RoadmapCommand {
			return true
		}
	}
	return false
}

// verifySignature checks the HMAC-SHA256 signature from GitHub.
func verifySignature(payload []byte, signature, secret string) bool {
	sig := strings.TrimPrefix(signature, "sha256=")
	decoded, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	return hmac.Equal(decoded, expected)
}
