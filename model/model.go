// Package model defines the core domain types shared across all Guidepost packages.
// It has zero dependencies on other Guidepost packages.
package model

import "time"

// Status represents the current state of a roadmap run.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
)

// FileStatus is the change status GitHub reports for a file in a PR.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileRemoved  FileStatus = "removed"
	FileRenamed  FileStatus = "renamed"
)

// PRContext is the complete input for one roadmap generation: PR metadata,
// the changed files, and the existing discussion. The GitHub client assembles
// it once per run; nothing mutates it afterward.
type PRContext struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	BaseBranch  string `json:"base_branch"`
	HeadBranch  string `json:"head_branch"`
	HeadSHA     string `json:"head_sha"`
	RepoURL     string `json:"repo_url"`
	Draft       bool   `json:"draft"`

	Files    []ChangedFile `json:"files"`
	Comments []Comment     `json:"comments"`
}

// ChangedFile is one file touched by the PR. Patch is the unified diff for
// this file only; GitHub omits it for binary or oversized files.
type ChangedFile struct {
	Path      string     `json:"path"`
	Status    FileStatus `json:"status"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Patch     string     `json:"patch,omitempty"`
}

// Comment is a PR discussion entry. Path=="" means a general conversation
// comment; Path and Line set means an inline review comment.
type Comment struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	Path      string    `json:"path,omitempty"`
	Line      int       `json:"line,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Inline reports whether the comment is attached to a specific diff location.
func (c Comment) Inline() bool {
	return c.Path != ""
}

// Run represents a single roadmap generation request and its outcome.
type Run struct {
	ID                   string    `json:"id"`
	Repo                 string    `json:"repo"` // "owner/repo"
	PRNumber             int       `json:"pr_number"`
	Status               Status    `json:"status"`
	SkipReflection       bool      `json:"skip_reflection"`
	Roadmap              string    `json:"roadmap,omitempty"`
	ReflectionPassed     bool      `json:"reflection_passed"`
	ReflectionIterations int       `json:"reflection_iterations"`
	CommentURL           string    `json:"comment_url,omitempty"`
	Error                string    `json:"error,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Event represents a single event in a run's lifecycle.
type Event struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"` // "status", "step", "output", "error", "done"
	Data      string    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Truncate shortens a string to maxLen runes, adding "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 3 {
		r := []rune(s)
		if len(r) <= maxLen {
			return s
		}
		return string(r[:maxLen])
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
