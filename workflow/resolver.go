package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/guidepost-ai/guidepost/llm"
)

// ContentFetcher fetches a repository file's content at a specific commit.
type ContentFetcher interface {
	FetchFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
}

// ReadFileToolName is the single tool offered during context expansion.
const ReadFileToolName = "read_file"

// ReadFileTool defines the read_file tool given to the model.
var ReadFileTool = llm.ToolDef{
	Name:        ReadFileToolName,
	Description: "Read the full content of a file from the repository at the PR's head commit. Works for any file in the repository, not just files changed in the PR.",
	Properties: map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Repository-relative path of the file to read.",
		},
	},
	Required: []string{"path"},
}

// ResolveToolCalls fetches file content for every read_file invocation in
// order. A failed fetch is recorded as an error string under the same path
// and does not stop the remaining fetches. Calls naming other tools, or
// read_file without a usable path, are skipped. Later duplicates overwrite
// earlier results.
func ResolveToolCalls(ctx context.Context, calls []llm.ToolCall, fetcher ContentFetcher, owner, repo, ref string) map[string]string {
	fetched := make(map[string]string)

	for _, call := range calls {
		if call.Name != ReadFileToolName {
			continue
		}
		path, _ := call.Args["path"].(string)
		if path == "" {
			continue
		}

		content, err := fetcher.FetchFileContent(ctx, owner, repo, path, ref)
		if err != nil {
			log.Printf("fetch %s@%s: %v", path, ref, err)
			fetched[path] = "Error fetching content: " + err.Error()
			continue
		}
		fetched[path] = content
	}

	return fetched
}

// parseRepoInfo extracts owner and repo from a repository URL, taking the
// last two path segments.
func parseRepoInfo(repoURL string) (owner, repo string, err error) {
	parts := strings.Split(strings.TrimRight(repoURL, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", "", fmt.Errorf("malformed repo url %q", repoURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
