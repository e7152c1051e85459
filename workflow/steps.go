package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/model"
)

// analyzeStructure groups the changed files into logical components. The
// model's answer is stored verbatim as the topology analysis.
func (c *Controller) analyzeStructure(ctx context.Context, st *State) (*Update, error) {
	response, err := c.llm.Complete(ctx, c.analyzePrompt, analyzeInput(st))
	if err != nil {
		return nil, fmt.Errorf("analyze structure: %w", err)
	}
	return &Update{Topology: map[string]string{"analysis": response}}, nil
}

// expandContext offers the model the read_file tool and resolves whatever it
// asks for at the PR's head commit. No tool calls means no extra context,
// which is the common case.
func (c *Controller) expandContext(ctx context.Context, st *State) (*Update, error) {
	resp, err := c.llm.CompleteWithTools(ctx, c.expandPrompt, expandInput(st), []llm.ToolDef{ReadFileTool})
	if err != nil {
		return nil, fmt.Errorf("expand context: %w", err)
	}

	fetched := make(map[string]string)
	if len(resp.ToolCalls) > 0 {
		owner, repo, err := parseRepoInfo(st.PR.RepoURL)
		if err != nil {
			return nil, fmt.Errorf("expand context: %w", err)
		}
		log.Printf("expand context: fetching %d file(s)", len(resp.ToolCalls))
		fetched = ResolveToolCalls(ctx, resp.ToolCalls, c.fetcher, owner, repo, st.PR.HeadSHA)
	}

	return &Update{FetchedContent: fetched}, nil
}

// draftRoadmap generates the Markdown roadmap from everything gathered so
// far. Each invocation replaces the previous roadmap entirely.
func (c *Controller) draftRoadmap(ctx context.Context, st *State) (*Update, error) {
	response, err := c.llm.Complete(ctx, c.draftPrompt, DraftInput(st))
	if err != nil {
		return nil, fmt.Errorf("draft roadmap: %w", err)
	}
	return &Update{Roadmap: &response}, nil
}

// reflectOnRoadmap self-reviews the drafted roadmap. The model's verdict is
// expected as JSON; anything unparseable counts as a pass so a flaky
// reviewer never blocks a finished roadmap.
func (c *Controller) reflectOnRoadmap(ctx context.Context, st *State) (*Update, error) {
	response, err := c.llm.Complete(ctx, c.reflectPrompt, reflectInput(st))
	if err != nil {
		return nil, fmt.Errorf("reflect on roadmap: %w", err)
	}

	r := parseReflection(response)
	if r.Passed {
		log.Printf("reflection passed: %s", r.Notes)
	} else {
		log.Printf("reflection failed: %s", r.Feedback)
	}

	return &Update{Reflection: &r}, nil
}

// Models often wrap the verdict JSON in a Markdown code fence, sometimes
// without the closing fence when the response got cut off.
var (
	completeFenceRE = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")
	openFenceRE     = regexp.MustCompile("^```(?:json)?\\s*\\n?")
	closeFenceRE    = regexp.MustCompile("\\n?```$")
)

// stripCodeFence removes a surrounding Markdown code fence, tolerating a
// missing closing fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if m := completeFenceRE.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(s, "```") {
		s = openFenceRE.ReplaceAllString(s, "")
		s = closeFenceRE.ReplaceAllString(s, "")
		return strings.TrimSpace(s)
	}
	return s
}

// parseReflection decodes the self-review verdict. A response that is not
// valid JSON is treated as a pass, never as a failed run.
func parseReflection(response string) Reflection {
	content := stripCodeFence(response)

	var r Reflection
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		log.Printf("reflection response not valid JSON, accepting roadmap: %q", model.Truncate(response, 200))
		return Reflection{Passed: true, Notes: "Self-review: completed (non-JSON response)"}
	}
	return r
}
