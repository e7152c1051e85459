// Package github provides GitHub API integration: fetching pull request
// context, posting roadmap comments, checking write access, and webhook
// parsing.
package github

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	gogh "github.com/google/go-github/v68/github"

	"github.com/guidepost-ai/guidepost/model"
)

// RoadmapPrefix marks roadmap comments posted by Guidepost. Minimization
// finds previous roadmaps by this prefix.
const RoadmapPrefix = "🗺️ **Auto-Generated Review Roadmap**"

// AccessStatus is the outcome of a write-access check.
type AccessStatus string

const (
	AccessGranted   AccessStatus = "granted"
	AccessDenied    AccessStatus = "denied"
	AccessUncertain AccessStatus = "uncertain"
)

// AccessCheck describes whether the configured token can post to a
// repository, and why.
type AccessCheck struct {
	Status AccessStatus

	// FineGrainedPAT is true when the token sends no X-OAuth-Scopes
	// header, which only fine-grained tokens omit.
	FineGrainedPAT bool

	// Message explains the outcome in operator terms.
	Message string
}

// Client wraps the GitHub API for roadmap operations.
type Client struct {
	gh *gogh.Client
}

// NewClient creates a GitHub client authenticated with the given token.
func NewClient(token string) *Client {
	return &Client{
		gh: gogh.NewClient(nil).WithAuthToken(token),
	}
}

// newClientForToken is a seam for tests.
var newClientForToken = NewClient

// FetchPRContext gathers everything a roadmap run needs: PR metadata, the
// changed files with diffs, and the existing discussion. Comment listing
// failures degrade to an empty list; metadata and file failures abort.
func (c *Client) FetchPRContext(ctx context.Context, owner, repo string, number int) (*model.PRContext, error) {
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request: %w", err)
	}

	files, err := c.listChangedFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("listing changed files: %w", err)
	}

	comments := c.listIssueComments(ctx, owner, repo, number)
	comments = append(comments, c.listReviewComments(ctx, owner, repo, number)...)

	return &model.PRContext{
		Number:      pr.GetNumber(),
		Title:       pr.GetTitle(),
		Description: pr.GetBody(),
		Author:      pr.GetUser().GetLogin(),
		BaseBranch:  pr.GetBase().GetRef(),
		HeadBranch:  pr.GetHead().GetRef(),
		HeadSHA:     pr.GetHead().GetSHA(),
		RepoURL:     pr.GetBase().GetRepo().GetHTMLURL(),
		Draft:       pr.GetDraft(),
		Files:       files,
		Comments:    comments,
	}, nil
}

func (c *Client) listChangedFiles(ctx context.Context, owner, repo string, number int) ([]model.ChangedFile, error) {
	var files []model.ChangedFile
	opts := &gogh.ListOptions{PerPage: 100}
	for {
		page, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range page {
			files = append(files, model.ChangedFile{
				Path:      f.GetFilename(),
				Status:    model.FileStatus(f.GetStatus()),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			return files, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) listIssueComments(ctx context.Context, owner, repo string, number int) []model.Comment {
	var comments []model.Comment
	opts := &gogh.IssueListCommentsOptions{ListOptions: gogh.ListOptions{PerPage: 100}}
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			log.Printf("listing issue comments for %s/%s#%d: %v", owner, repo, number, err)
			return comments
		}
		for _, ic := range page {
			comments = append(comments, model.Comment{
				ID:        ic.GetID(),
				Author:    ic.GetUser().GetLogin(),
				Body:      ic.GetBody(),
				CreatedAt: ic.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return comments
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) listReviewComments(ctx context.Context, owner, repo string, number int) []model.Comment {
	var comments []model.Comment
	opts := &gogh.PullRequestListCommentsOptions{ListOptions: gogh.ListOptions{PerPage: 100}}
	for {
		page, resp, err := c.gh.PullRequests.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			log.Printf("listing review comments for %s/%s#%d: %v", owner, repo, number, err)
			return comments
		}
		for _, rc := range page {
			comments = append(comments, model.Comment{
				ID:        rc.GetID(),
				Author:    rc.GetUser().GetLogin(),
				Body:      rc.GetBody(),
				Path:      rc.GetPath(),
				Line:      rc.GetLine(),
				CreatedAt: rc.GetCreatedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			return comments
		}
		opts.Page = resp.NextPage
	}
}

// FetchFileContent returns the decoded content of a repository file at a
// specific ref.
func (c *Client) FetchFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &gogh.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("fetching %s@%s: %w", path, ref, err)
	}
	if file == nil {
		return "", fmt.Errorf("%s is a directory, not a file", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("decoding %s: %w", path, err)
	}
	return content, nil
}

// PostRoadmapComment posts the roadmap as a PR comment and returns the
// comment's URL.
func (c *Client) PostRoadmapComment(ctx context.Context, owner, repo string, number int, body string) (string, error) {
	comment, _, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, &gogh.IssueComment{
		Body: gogh.Ptr(body),
	})
	if err != nil {
		return "", fmt.Errorf("posting comment: %w", err)
	}
	return comment.GetHTMLURL(), nil
}

// CheckWriteAccess reports whether the token can post comments to the
// repository. Classic tokens are verified through the X-OAuth-Scopes
// header; fine-grained tokens (which send no such header) are verified
// with a live probe that creates and deletes an "eyes" reaction on the
// PR. With no PR number the fine-grained case stays uncertain.
func (c *Client) CheckWriteAccess(ctx context.Context, owner, repo string, prNumber int) (*AccessCheck, error) {
	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetching repository: %w", err)
	}

	perms := r.GetPermissions()
	if !perms["push"] && !perms["admin"] {
		return &AccessCheck{
			Status:  AccessDenied,
			Message: "user account does not have write access to this repository",
		}, nil
	}

	// Classic tokens and OAuth apps always send X-OAuth-Scopes, even
	// when it is empty. Fine-grained tokens never do.
	scopesHeader, classic := resp.Header[http.CanonicalHeaderKey("X-OAuth-Scopes")]
	if classic {
		return checkClassicScopes(scopesHeader, r.GetPrivate()), nil
	}

	if prNumber > 0 {
		if c.probeReaction(ctx, owner, repo, prNumber) {
			return &AccessCheck{
				Status:         AccessGranted,
				FineGrainedPAT: true,
				Message:        "fine-grained token write access verified via live probe",
			}, nil
		}
		return &AccessCheck{
			Status:         AccessDenied,
			FineGrainedPAT: true,
			Message:        fmt.Sprintf("write probe failed; grant the token 'Pull requests: Read and write' for %s/%s", owner, repo),
		}, nil
	}

	return &AccessCheck{
		Status:         AccessUncertain,
		FineGrainedPAT: true,
		Message:        fmt.Sprintf("fine-grained token detected; cannot verify write access to %s/%s without a pull request", owner, repo),
	}, nil
}

func checkClassicScopes(header []string, private bool) *AccessCheck {
	var scopes []string
	for _, v := range header {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				scopes = append(scopes, s)
			}
		}
	}

	has := func(want string) bool {
		for _, s := range scopes {
			if s == want {
				return true
			}
		}
		return false
	}

	required := "repo"
	ok := has("repo")
	if !private {
		required = "repo or public_repo"
		ok = ok || has("public_repo")
	}
	if ok {
		return &AccessCheck{Status: AccessGranted, Message: "classic token scopes verified"}
	}

	current := strings.Join(scopes, ", ")
	if current == "" {
		current = "none"
	}
	return &AccessCheck{
		Status:  AccessDenied,
		Message: fmt.Sprintf("token lacks required scope (%s); current scopes: %s", required, current),
	}
}

// probeReaction creates an "eyes" reaction on the PR and deletes it again.
// The reaction is unobtrusive if cleanup fails.
func (c *Client) probeReaction(ctx context.Context, owner, repo string, number int) bool {
	reaction, _, err := c.gh.Reactions.CreateIssueReaction(ctx, owner, repo, number, "eyes")
	if err != nil {
		return false
	}
	if id := reaction.GetID(); id != 0 {
		if _, err := c.gh.Reactions.DeleteIssueReaction(ctx, owner, repo, number, id); err != nil {
			log.Printf("deleting probe reaction on %s/%s#%d: %v", owner, repo, number, err)
		}
	}
	return true
}

// MinimizeOldRoadmapComments collapses previous roadmap comments on the PR
// so only the newest roadmap stays expanded. Comments are matched by prefix
// and minimized as OUTDATED through the GraphQL API. Failures are counted,
// never fatal; a failed comment listing minimizes nothing.
func (c *Client) MinimizeOldRoadmapComments(ctx context.Context, owner, repo string, number int, prefix string) (minimized, errors int) {
	var nodeIDs []string
	opts := &gogh.IssueListCommentsOptions{ListOptions: gogh.ListOptions{PerPage: 100}}
	for {
		page, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			log.Printf("listing comments to minimize on %s/%s#%d: %v", owner, repo, number, err)
			return 0, 0
		}
		for _, ic := range page {
			if strings.HasPrefix(ic.GetBody(), prefix) {
				nodeIDs = append(nodeIDs, ic.GetNodeID())
			}
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	for _, id := range nodeIDs {
		if err := c.minimizeComment(ctx, id); err != nil {
			log.Printf("minimizing comment %s: %v", id, err)
			errors++
			continue
		}
		minimized++
	}
	return minimized, errors
}

const minimizeCommentMutation = `mutation($id: ID!) {
  minimizeComment(input: {subjectId: $id, classifier: OUTDATED}) {
    minimizedComment { isMinimized }
  }
}`

func (c *Client) minimizeComment(ctx context.Context, nodeID string) error {
	body := struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}{
		Query:     minimizeCommentMutation,
		Variables: map[string]any{"id": nodeID},
	}

	req, err := c.gh.NewRequest(http.MethodPost, "graphql", body)
	if err != nil {
		return err
	}

	var result struct {
		Data struct {
			MinimizeComment struct {
				MinimizedComment struct {
					IsMinimized bool `json:"isMinimized"`
				} `json:"minimizedComment"`
			} `json:"minimizeComment"`
		} `json:"data"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if _, err := c.gh.Do(ctx, req, &result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return fmt.Errorf("graphql: %s", result.Errors[0].Message)
	}
	if !result.Data.MinimizeComment.MinimizedComment.IsMinimized {
		return fmt.Errorf("comment %s not minimized", nodeID)
	}
	return nil
}

// TokenSearch reports the outcome of trying each configured token against
// a repository.
type TokenSearch struct {
	// Token is the first token with verified write access, "" when none.
	Token string

	// Check is the access check for the returned token, or the last
	// failure when no token worked.
	Check *AccessCheck

	// Tried is how many tokens were tried.
	Tried int
}

// FindWorkingToken tries each token in order and returns the first one
// with verified write access to the repository. Tokens that error (for
// example revoked credentials) are skipped.
func FindWorkingToken(ctx context.Context, tokens []string, owner, repo string, prNumber int) *TokenSearch {
	if len(tokens) == 0 {
		return &TokenSearch{
			Check: &AccessCheck{
				Status:  AccessDenied,
				Message: "no GitHub tokens configured",
			},
		}
	}

	search := &TokenSearch{}
	for _, token := range tokens {
		search.Tried++
		check, err := newClientForToken(token).CheckWriteAccess(ctx, owner, repo, prNumber)
		if err != nil {
			log.Printf("write access check for %s/%s (token %d of %d): %v", owner, repo, search.Tried, len(tokens), err)
			search.Check = &AccessCheck{Status: AccessDenied, Message: err.Error()}
			continue
		}
		search.Check = check
		if check.Status == AccessGranted {
			search.Token = token
			return search
		}
	}
	return search
}

// ParseRepoURL extracts owner and repo from a repository URL, taking the
// last two path segments.
func ParseRepoURL(repoURL string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimRight(repoURL, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", "", fmt.Errorf("malformed repo url %q", repoURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// SplitRepo splits an "owner/repo" name into its parts.
func SplitRepo(fullName string) (owner, repo string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo format %q, expected \"owner/repo\"", fullName)
	}
	return parts[0], parts[1], nil
}
