package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/guidepost-ai/guidepost/model"
)

// Prompt assembly budgets. Oversized content is cut from the front, never
// reordered, and always marked as truncated.
const (
	// maxDiffChars caps a single file's diff.
	maxDiffChars = 1500
	// maxTotalDiffChars caps all diffs combined.
	maxTotalDiffChars = 80000
	// maxFetchedPreview caps one fetched file's preview.
	maxFetchedPreview = 2000
)

// DeepLink returns the PR diff anchor for a file: the files view of the PR
// plus a fragment derived from the SHA-256 of the path.
func DeepLink(repoURL string, prNumber int, path string) string {
	sum := sha256.Sum256([]byte(path))
	return fmt.Sprintf("%s/pull/%d/files#diff-%s", repoURL, prNumber, hex.EncodeToString(sum[:]))
}

// LineLink returns a deep link anchored to a specific line on the new side
// of the diff.
func LineLink(repoURL string, prNumber int, path string, line int) string {
	return fmt.Sprintf("%sR%d", DeepLink(repoURL, prNumber, path), line)
}

// FilesWithLinks renders one line per changed file with its diff deep link.
func FilesWithLinks(files []model.ChangedFile, repoURL string, prNumber int) []string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", f.Path, f.Status, DeepLink(repoURL, prNumber, f.Path)))
	}
	return lines
}

// CommentsBlock renders existing PR comments, preserving their order.
// Inline comments carry their file:line location, general comments "(General)".
func CommentsBlock(comments []model.Comment) []string {
	lines := make([]string, 0, len(comments))
	for _, c := range comments {
		location := "(General)"
		if c.Path != "" {
			location = fmt.Sprintf("(%s:%d)", c.Path, c.Line)
		}
		lines = append(lines, fmt.Sprintf("- %s %s: %s", c.Author, location, c.Body))
	}
	return lines
}

// DiffsBlock renders every file's unified diff under a per-file heading.
// Files without a patch get a placeholder instead of a fence. Once the total
// budget is exceeded the remaining files are summarized in a single marker
// line and rendering stops.
func DiffsBlock(files []model.ChangedFile) string {
	if len(files) == 0 {
		return "No files changed."
	}

	var parts []string
	total := 0

	for _, f := range files {
		var section string
		if f.Patch == "" {
			section = fmt.Sprintf("### %s (%s, +%d/-%d)\n[No diff available - binary or large file]\n",
				f.Path, f.Status, f.Additions, f.Deletions)
		} else {
			diff := f.Patch
			if n := utf8.RuneCountInString(diff); n > maxDiffChars {
				r := []rune(diff)
				diff = string(r[:maxDiffChars]) + fmt.Sprintf("\n... (truncated, %d chars total)", n)
			}
			section = fmt.Sprintf("### %s (%s, +%d/-%d)\n```diff\n%s\n```\n",
				f.Path, f.Status, f.Additions, f.Deletions, diff)
		}

		if total+utf8.RuneCountInString(section) > maxTotalDiffChars {
			remaining := len(files) - len(parts)
			parts = append(parts, fmt.Sprintf("\n... (%d more files not shown due to size limits)\n", remaining))
			break
		}

		parts = append(parts, section)
		total += utf8.RuneCountInString(section)
	}

	return strings.Join(parts, "\n")
}

// FetchedContentBlock renders fetched file contents for the drafting prompt.
// An empty map produces an empty string so the prompt carries no dangling
// header. Paths are sorted for a stable prompt.
func FetchedContentBlock(fetched map[string]string) string {
	if len(fetched) == 0 {
		return ""
	}

	paths := make([]string, 0, len(fetched))
	for p := range fetched {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	b.WriteString("\n\nfetched_content:\n")
	for _, p := range paths {
		content := fetched[p]
		preview := content
		if r := []rune(content); len(r) > maxFetchedPreview {
			preview = string(r[:maxFetchedPreview]) + "\n... (truncated)"
		}
		fmt.Fprintf(&b, "\n--- File: %s ---\n%s\n", p, preview)
	}
	return b.String()
}

// fileSummaryLines renders the compact per-file summary used by the analyze
// step and the diff headings.
func fileSummaryLines(files []model.ChangedFile) []string {
	lines := make([]string, 0, len(files))
	for _, f := range files {
		lines = append(lines, fmt.Sprintf("- %s (%s, +%d/-%d)", f.Path, f.Status, f.Additions, f.Deletions))
	}
	return lines
}

// analyzeInput builds the user message for the analyze step.
func analyzeInput(st *State) string {
	return fmt.Sprintf("PR Title: %s\n\nFiles:\n%s",
		st.PR.Title, strings.Join(fileSummaryLines(st.PR.Files), "\n"))
}

// expandInput builds the user message for the context expansion step.
func expandInput(st *State) string {
	lines := make([]string, 0, len(st.PR.Files))
	for _, f := range st.PR.Files {
		lines = append(lines, fmt.Sprintf("- %s (%s)", f.Path, f.Status))
	}
	return fmt.Sprintf("PR Title: %s\n\nFiles:\n%s\n\nTopology Analysis:\n%s\n\nComments:\n%d existing comments.",
		st.PR.Title, strings.Join(lines, "\n"), st.Analysis(), len(st.PR.Comments))
}

// DraftInput builds the user message for the drafting step: the full PR
// context plus, on retries, the previous reflection feedback. Exported so
// callers can estimate the prompt size of a finished run.
func DraftInput(st *State) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Title: %s\n", st.PR.Title)
	fmt.Fprintf(&b, "Description: %s\n", st.PR.Description)
	fmt.Fprintf(&b, "Author: %s\n", st.PR.Author)
	fmt.Fprintf(&b, "Repo URL: %s\n", st.PR.RepoURL)
	fmt.Fprintf(&b, "PR Number: %d\n\n", st.PR.Number)

	fmt.Fprintf(&b, "Topology Analysis:\n%s\n\n", st.Analysis())

	fmt.Fprintf(&b, "Files (with deep links for review):\n%s\n\n",
		strings.Join(FilesWithLinks(st.PR.Files, st.PR.RepoURL, st.PR.Number), "\n"))

	fmt.Fprintf(&b, "## File Diffs (actual code changes)\n%s\n\n", DiffsBlock(st.PR.Files))

	comments := CommentsBlock(st.PR.Comments)
	if len(comments) == 0 {
		b.WriteString("Existing Comments:\nNo comments found.\n")
	} else {
		fmt.Fprintf(&b, "Existing Comments:\n%s\n", strings.Join(comments, "\n"))
	}

	b.WriteString(FetchedContentBlock(st.FetchedContent))

	if st.ReflectionFeedback != "" {
		fmt.Fprintf(&b, "\n\n## Self-Review Feedback (address these issues in your revision)\n%s\n", st.ReflectionFeedback)
	}

	return b.String()
}

// reflectInput builds the user message for the self-review step.
func reflectInput(st *State) string {
	lines := make([]string, 0, len(st.PR.Files))
	for _, f := range st.PR.Files {
		lines = append(lines, "- "+f.Path)
	}

	feedback := st.ReflectionFeedback
	if feedback == "" {
		feedback = "None - first review"
	}

	return fmt.Sprintf("## PR Context\nTitle: %s\nChanged Files:\n%s\n\n## Generated Roadmap\n%s\n\n## Previous Feedback (if any)\n%s\n",
		st.PR.Title, strings.Join(lines, "\n"), st.Roadmap, feedback)
}
