// End-to-end tests for the Guidepost server stack.
//
// These tests exercise the full stack behind the HTTP API:
//   - Real HTTP router (chi)
//   - Real SQLite store (WAL mode, temp dir)
//   - Real event bus (in-memory pub/sub)
//   - Fake GitHub API (serves a canned PR)
//   - Fake LLM (deterministic responses)
//
// Only the GitHub and LLM backends are simulated. Routing, engine
// orchestration, store persistence and event streaming are all real
// production code. Does NOT require API keys or network access.
package guidepost_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guidepost-ai/guidepost"
	"github.com/guidepost-ai/guidepost/config"
	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/metrics"
	"github.com/guidepost-ai/guidepost/model"
)

// ---------------------------------------------------------------------------
// Fake GitHub API
// ---------------------------------------------------------------------------

type fakeGitHub struct {
	mu      sync.Mutex
	fetches int
}

func (g *fakeGitHub) FetchPRContext(_ context.Context, owner, repo string, number int) (*model.PRContext, error) {
	g.mu.Lock()
	g.fetches++
	g.mu.Unlock()
	return &model.PRContext{
		Number:     number,
		Title:      "Add rate limiting to /api/users",
		Author:     "alice",
		BaseBranch: "main",
		HeadBranch: "feature/rate-limit",
		HeadSHA:    "abc123",
		RepoURL:    fmt.Sprintf("https://github.com/%s/%s", owner, repo),
		Files: []model.ChangedFile{
			{Path: "api/limiter.go", Status: model.FileAdded, Additions: 90, Patch: "@@ -0,0 +1 @@\n+package api"},
			{Path: "api/handler.go", Status: model.FileModified, Additions: 8, Deletions: 2},
		},
	}, nil
}

func (g *fakeGitHub) FetchFileContent(_ context.Context, _, _, path, _ string) (string, error) {
	return "package api\n\n// content of " + path + "\n", nil
}

func (g *fakeGitHub) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

// ---------------------------------------------------------------------------
// Fake LLM
// ---------------------------------------------------------------------------

type fakeLLM struct{}

func (f *fakeLLM) Complete(_ context.Context, system, _ string) (string, error) {
	lower := strings.ToLower(system)
	if strings.Contains(lower, "reviewing a pr review roadmap") {
		return `{"passed": true, "notes": "Self-review: ordering is clear"}`, nil
	}
	if strings.Contains(lower, "markdown roadmap") {
		return "# Review Roadmap\n\n1. Start with api/limiter.go\n2. Then api/handler.go", nil
	}
	if strings.Contains(lower, "logical components") {
		return `{"components": [{"name": "API", "files": ["api/limiter.go", "api/handler.go"]}]}`, nil
	}
	return "ok", nil
}

func (f *fakeLLM) CompleteWithTools(_ context.Context, _, _ string, _ []llm.ToolDef) (*llm.Response, error) {
	return &llm.Response{Text: "DONE"}, nil
}

// ---------------------------------------------------------------------------
// Capturing notifier
// ---------------------------------------------------------------------------

type captureNotifier struct {
	mu   sync.Mutex
	runs []string
}

func (n *captureNotifier) RoadmapReady(_ context.Context, run *model.Run) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run.ID)
	return nil
}

func (n *captureNotifier) notified() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.runs)
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type e2eHarness struct {
	svc      *guidepost.Service
	gh       *fakeGitHub
	notifier *captureNotifier
}

func setupE2E(t *testing.T) *e2eHarness {
	t.Helper()

	// Comment posting is off so no run ever reaches for the network.
	cfg := &config.Config{
		DataDir:        t.TempDir(),
		GithubTokens:   []string{"e2e-token"},
		LLMProvider:    "anthropic",
		MaxReflections: 2,
		PostComment:    false,
	}

	gh := &fakeGitHub{}
	notifier := &captureNotifier{}

	svc, err := guidepost.NewBuilder().
		WithConfig(cfg).
		WithGitHub(gh).
		WithLLM(&fakeLLM{}).
		WithMetrics(metrics.NewRecorderWith(prometheus.NewRegistry())).
		WithNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc.Engine().Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = svc.Close()
	})

	return &e2eHarness{svc: svc, gh: gh, notifier: notifier}
}

// do executes an HTTP request against the handler and returns the response
// recorder. No TCP socket needed.
func (h *e2eHarness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.svc.Handler().Router().ServeHTTP(w, req)
	return w
}

// waitForRun polls GET /api/runs/:id until the run reaches a terminal state.
func (h *e2eHarness) waitForRun(t *testing.T, id string, timeout time.Duration) model.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		w := h.do("GET", "/api/runs/"+id, "")
		var run model.Run
		json.NewDecoder(w.Body).Decode(&run)
		if run.Status == model.StatusComplete || run.Status == model.StatusError {
			return run
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("run %s did not finish within %v", id, timeout)
	return model.Run{}
}

// ---------------------------------------------------------------------------
// E2E Tests
// ---------------------------------------------------------------------------

// TestE2E_RunFullLifecycle tests the happy path:
// POST run -> engine runs analyze -> expand -> draft -> reflect -> complete.
// Then verifies GET run, the roadmap endpoint, events (SSE), and the list.
func TestE2E_RunFullLifecycle(t *testing.T) {
	h := setupE2E(t)

	// 1. Create run via API.
	w := h.do("POST", "/api/runs", `{"repo":"myorg/myapp","pr":41}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created model.Run
	json.NewDecoder(w.Body).Decode(&created)
	if created.ID == "" {
		t.Fatal("expected non-empty run ID")
	}
	t.Logf("Created run %s for %s#%d", created.ID, created.Repo, created.PRNumber)

	// 2. Wait for completion.
	run := h.waitForRun(t, created.ID, 10*time.Second)
	if run.Status != model.StatusComplete {
		t.Fatalf("expected 'complete', got %q (error: %s)", run.Status, run.Error)
	}
	if run.Roadmap == "" {
		t.Fatal("expected the run to carry a roadmap")
	}
	if !run.ReflectionPassed {
		t.Fatal("expected reflection to pass")
	}
	if run.ReflectionIterations != 1 {
		t.Fatalf("expected 1 reflection iteration, got %d", run.ReflectionIterations)
	}
	if h.gh.fetchCount() != 1 {
		t.Fatalf("expected 1 PR context fetch, got %d", h.gh.fetchCount())
	}

	// 3. Verify the roadmap endpoint serves the Markdown.
	w = h.do("GET", "/api/runs/"+created.ID+"/roadmap", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from roadmap endpoint, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "# Review Roadmap") {
		t.Fatalf("unexpected roadmap body: %q", w.Body.String())
	}

	// 4. Verify events stored in the database.
	events, err := h.svc.Engine().Store().GetEvents(created.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	eventTypes := map[string]int{}
	for _, ev := range events {
		eventTypes[ev.Type]++
	}
	if eventTypes["status"] == 0 {
		t.Fatal("expected 'status' events")
	}
	if eventTypes["step"] < 4 {
		t.Fatalf("expected at least 4 'step' events, got %d", eventTypes["step"])
	}
	if eventTypes["done"] == 0 {
		t.Fatal("expected 'done' event")
	}
	t.Logf("Events stored: %v (total %d)", eventTypes, len(events))

	// 5. Verify the SSE endpoint streams historical events. The handler is
	// long-lived, so we run it with a context we cancel after the replay.
	sseCtx, sseCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sseCancel()
	sseReq := httptest.NewRequest("GET", "/api/runs/"+created.ID+"/events", nil)
	sseReq = sseReq.WithContext(sseCtx)
	sseW := httptest.NewRecorder()

	sseDone := make(chan struct{})
	go func() {
		defer close(sseDone)
		h.svc.Handler().Router().ServeHTTP(sseW, sseReq)
	}()
	<-sseDone

	sseEventCount := 0
	sseScanner := bufio.NewScanner(sseW.Body)
	for sseScanner.Scan() {
		if strings.HasPrefix(sseScanner.Text(), "data: ") {
			sseEventCount++
		}
	}
	if sseEventCount == 0 {
		t.Fatal("expected SSE endpoint to stream historical events")
	}
	t.Logf("SSE streamed %d historical events", sseEventCount)

	// 6. Verify the run in the list endpoint.
	w = h.do("GET", "/api/runs", "")
	var runs []model.Run
	json.NewDecoder(w.Body).Decode(&runs)
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != created.ID {
		t.Fatalf("expected run %s, got %s", created.ID, runs[0].ID)
	}

	// 7. Verify the notifier fired once.
	if h.notifier.notified() != 1 {
		t.Fatalf("expected 1 notification, got %d", h.notifier.notified())
	}
}

// TestE2E_WebhookCreatesRun verifies that a "/roadmap" PR comment delivered
// via the GitHub webhook produces a finished roadmap.
func TestE2E_WebhookCreatesRun(t *testing.T) {
	h := setupE2E(t)

	payload := `{
		"action": "created",
		"issue": {"number": 7, "pull_request": {"url": "https://api.github.com/repos/acme/api/pulls/7"}},
		"comment": {"id": 555, "body": "/roadmap please", "user": {"login": "alice"}},
		"repository": {"full_name": "acme/api"}
	}`
	req := httptest.NewRequest("POST", "/api/webhooks/github", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "issue_comment")
	w := httptest.NewRecorder()
	h.svc.Handler().Router().ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var created model.Run
	json.NewDecoder(w.Body).Decode(&created)
	if created.Repo != "acme/api" || created.PRNumber != 7 {
		t.Fatalf("expected a run for acme/api#7, got %s#%d", created.Repo, created.PRNumber)
	}

	run := h.waitForRun(t, created.ID, 10*time.Second)
	if run.Status != model.StatusComplete {
		t.Fatalf("expected 'complete', got %q (error: %s)", run.Status, run.Error)
	}
	if run.Roadmap == "" {
		t.Fatal("expected the run to carry a roadmap")
	}
}

// TestE2E_SkipReflectionFlowsThroughAPI verifies that the per-run
// skip_reflection flag turns off the self-review pass.
func TestE2E_SkipReflectionFlowsThroughAPI(t *testing.T) {
	h := setupE2E(t)

	w := h.do("POST", "/api/runs", `{"repo":"myorg/myapp","pr":41,"skip_reflection":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created model.Run
	json.NewDecoder(w.Body).Decode(&created)
	if !created.SkipReflection {
		t.Fatal("expected skip_reflection to be recorded on the run")
	}

	run := h.waitForRun(t, created.ID, 10*time.Second)
	if run.Status != model.StatusComplete {
		t.Fatalf("expected 'complete', got %q (error: %s)", run.Status, run.Error)
	}
	if run.ReflectionIterations != 0 {
		t.Fatalf("expected 0 reflection iterations, got %d", run.ReflectionIterations)
	}
	if run.Roadmap == "" {
		t.Fatal("expected the run to carry a roadmap")
	}
}

// TestE2E_RunNotFound verifies 404 for non-existent runs.
func TestE2E_RunNotFound(t *testing.T) {
	h := setupE2E(t)

	w := h.do("GET", "/api/runs/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

// TestE2E_HealthCheck verifies the /health endpoint.
func TestE2E_HealthCheck(t *testing.T) {
	h := setupE2E(t)

	w := h.do("GET", "/health", "")
	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Fatalf("expected 'ok', got %q", w.Body.String())
	}
}
