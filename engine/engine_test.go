package engine

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guidepost-ai/guidepost/eventbus"
	"github.com/guidepost-ai/guidepost/github"
	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/metrics"
	"github.com/guidepost-ai/guidepost/model"
	sqliteStore "github.com/guidepost-ai/guidepost/store/sqlite"
)

// --- stubs ---

type stubGitHub struct {
	pr      *model.PRContext
	prErr   error
	fetches int
}

func (s *stubGitHub) FetchPRContext(_ context.Context, _, _ string, _ int) (*model.PRContext, error) {
	s.fetches++
	if s.prErr != nil {
		return nil, s.prErr
	}
	return s.pr, nil
}

func (s *stubGitHub) FetchFileContent(_ context.Context, _, _, _, _ string) (string, error) {
	return "package cache\n", nil
}

// scriptedLLM returns canned responses in call order: analyze, then draft,
// then reflect. The expansion step goes through CompleteWithTools and never
// asks for files.
type scriptedLLM struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedLLM) Complete(_ context.Context, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

func (s *scriptedLLM) CompleteWithTools(_ context.Context, _, _ string, _ []llm.ToolDef) (*llm.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Text: "No additional context needed."}, nil
}

type stubPoster struct {
	minimizeCalls int
	postedBody    string
	postErr       error
}

func (s *stubPoster) MinimizeOldRoadmapComments(_ context.Context, _, _ string, _ int, _ string) (int, int) {
	s.minimizeCalls++
	return 1, 0
}

func (s *stubPoster) PostRoadmapComment(_ context.Context, _, _ string, _ int, body string) (string, error) {
	s.postedBody = body
	if s.postErr != nil {
		return "", s.postErr
	}
	return "https://github.com/acme/api/pull/7#issuecomment-99", nil
}

type stubNotifier struct {
	notified []*model.Run
	err      error
}

func (s *stubNotifier) RoadmapReady(_ context.Context, run *model.Run) error {
	s.notified = append(s.notified, run)
	return s.err
}

// --- helpers ---

const sampleRoadmap = "# Review Roadmap\n\n1. Start with cache/cache.go"

func samplePR() *model.PRContext {
	return &model.PRContext{
		Number:     7,
		Title:      "Add session cache",
		Author:     "alice",
		BaseBranch: "main",
		HeadBranch: "feature/cache",
		HeadSHA:    "abc123",
		RepoURL:    "https://github.com/acme/api",
		Files: []model.ChangedFile{
			{Path: "cache/cache.go", Status: model.FileAdded, Additions: 120, Patch: "@@ -0,0 +1 @@\n+package cache"},
			{Path: "api/handler.go", Status: model.FileModified, Additions: 12, Deletions: 4},
		},
	}
}

func happyLLM() *scriptedLLM {
	return &scriptedLLM{responses: []string{
		"Core changes introduce a cache package wired into the API handler.",
		sampleRoadmap,
		`{"passed": true, "feedback": "", "notes": "clear ordering"}`,
	}}
}

func testEngine(t *testing.T, cfg Config, gh GitHubAPI, client llm.Client) *Engine {
	t.Helper()
	st, err := sqliteStore.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return New(cfg, st, eventbus.NewInMemoryBus(), gh, client, nil)
}

func defaultConfig() Config {
	return Config{
		GithubTokens:   []string{"tok"},
		MaxReflections: 2,
		PostComment:    true,
	}
}

// grantPoster routes the engine's posting path to the given stub.
func grantPoster(eng *Engine, poster RoadmapPoster) {
	eng.findToken = func(_ context.Context, _ []string, _, _ string, _ int) *github.TokenSearch {
		return &github.TokenSearch{
			Token: "tok",
			Check: &github.AccessCheck{Status: github.AccessGranted},
			Tried: 1,
		}
	}
	eng.posterFor = func(string) RoadmapPoster { return poster }
}

func eventTypes(events []*model.Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func containsEvent(events []*model.Event, eventType, dataSubstr string) bool {
	for _, ev := range events {
		if ev.Type == eventType && strings.Contains(ev.Data, dataSubstr) {
			return true
		}
	}
	return false
}

// --- tests ---

func TestCreateRun(t *testing.T) {
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, happyLLM())
	grantPoster(eng, &stubPoster{})

	run, err := eng.CreateRun("acme/api", 7, false)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == "" {
		t.Fatal("expected non-empty run ID")
	}
	if run.Repo != "acme/api" {
		t.Fatalf("expected repo 'acme/api', got %q", run.Repo)
	}
	if run.PRNumber != 7 {
		t.Fatalf("expected PR number 7, got %d", run.PRNumber)
	}
	if run.Status != model.StatusPending {
		t.Fatalf("expected status 'pending', got %q", run.Status)
	}

	// Wait for the background goroutine to finish the run.
	time.Sleep(300 * time.Millisecond)

	got, err := eng.Store().GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.StatusComplete {
		t.Fatalf("expected status 'complete', got %q (error: %s)", got.Status, got.Error)
	}
}

func TestCreateRunInvalidRepo(t *testing.T) {
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, happyLLM())

	if _, err := eng.CreateRun("not-a-repo", 1, false); err == nil {
		t.Fatal("expected error for malformed repo")
	}

	runs, err := eng.Store().ListRuns()
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected no runs to be stored, got %d", len(runs))
	}
}

func TestRunHappyPath(t *testing.T) {
	client := happyLLM()
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, client)
	poster := &stubPoster{}
	grantPoster(eng, poster)

	run, err := eng.CreateRun("acme/api", 7, false)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	time.Sleep(300 * time.Millisecond)

	got, err := eng.Store().GetRun(run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != model.StatusComplete {
		t.Fatalf("expected status 'complete', got %q (error: %s)", got.Status, got.Error)
	}
	if got.Roadmap != sampleRoadmap {
		t.Fatalf("expected roadmap to be persisted, got %q", got.Roadmap)
	}
	if !got.ReflectionPassed {
		t.Fatal("expected reflection to pass")
	}
	if got.ReflectionIterations != 1 {
		t.Fatalf("expected 1 reflection iteration, got %d", got.ReflectionIterations)
	}
	if got.CommentURL == "" {
		t.Fatal("expected comment URL to be set")
	}

	if poster.minimizeCalls != 1 {
		t.Fatalf("expected old comments to be minimized once, got %d", poster.minimizeCalls)
	}
	if !strings.HasPrefix(poster.postedBody, github.RoadmapPrefix) {
		t.Fatalf("expected posted comment to start with the roadmap prefix, got %q", poster.postedBody)
	}
	if !strings.Contains(poster.postedBody, sampleRoadmap) {
		t.Fatal("expected posted comment to contain the roadmap")
	}

	events, err := eng.Store().GetEvents(run.ID, 0)
	if err != nil {
		t.Fatalf("GetEvents: %v", err)
	}
	types := eventTypes(events)
	for _, step := range []string{"analyze_structure", "expand_context", "draft_roadmap", "reflect_on_roadmap"} {
		if !containsEvent(events, "step", step) {
			t.Fatalf("expected a step event for %s, got %v", step, types)
		}
	}
	if !containsEvent(events, "done", "") {
		t.Fatalf("expected a done event, got %v", types)
	}
}

func TestRunNotifiesOnCompletion(t *testing.T) {
	st, err := sqliteStore.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	notifier := &stubNotifier{}
	failing := &stubNotifier{err: errors.New("channel archived")}
	eng := New(defaultConfig(), st, eventbus.NewInMemoryBus(), &stubGitHub{pr: samplePR()}, happyLLM(), nil, notifier, failing)
	grantPoster(eng, &stubPoster{})

	if _, err := eng.CreateRun("acme/api", 7, false); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if len(notifier.notified) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.notified))
	}
	got := notifier.notified[0]
	if got.Status != model.StatusComplete {
		t.Fatalf("expected notifier to see a complete run, got %q", got.Status)
	}
	if got.CommentURL == "" {
		t.Fatal("expected notifier to see the comment URL")
	}
	// The failing notifier must not prevent the others from being called.
	if len(failing.notified) != 1 {
		t.Fatalf("expected failing notifier to be invoked once, got %d", len(failing.notified))
	}
}

func TestRunFetchFailure(t *testing.T) {
	gh := &stubGitHub{prErr: errors.New("api down")}
	eng := testEngine(t, defaultConfig(), gh, happyLLM())

	tokenSearched := false
	eng.findToken = func(_ context.Context, _ []string, _, _ string, _ int) *github.TokenSearch {
		tokenSearched = true
		return &github.TokenSearch{}
	}

	run, err := eng.CreateRun("acme/api", 7, false)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusError {
		t.Fatalf("expected status 'error', got %q", got.Status)
	}
	if !strings.Contains(got.Error, "failed to fetch PR context") {
		t.Fatalf("expected fetch failure in error, got %q", got.Error)
	}
	if tokenSearched {
		t.Fatal("expected no token search for a failed run")
	}

	events, _ := eng.Store().GetEvents(run.ID, 0)
	if !containsEvent(events, "error", "api down") {
		t.Fatalf("expected an error event, got %v", eventTypes(events))
	}
}

func TestRunWorkflowFailure(t *testing.T) {
	client := &scriptedLLM{err: errors.New("model overloaded")}
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, client)

	run, err := eng.CreateRun("acme/api", 7, false)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusError {
		t.Fatalf("expected status 'error', got %q", got.Status)
	}
	if !strings.Contains(got.Error, "roadmap generation failed") {
		t.Fatalf("expected workflow failure in error, got %q", got.Error)
	}
}

func TestRunCommentDenied(t *testing.T) {
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, happyLLM())

	eng.findToken = func(_ context.Context, _ []string, _, _ string, _ int) *github.TokenSearch {
		return &github.TokenSearch{
			Check: &github.AccessCheck{Status: github.AccessDenied, Message: "token lacks required scope (repo)"},
			Tried: 1,
		}
	}
	eng.posterFor = func(string) RoadmapPoster {
		t.Error("expected no poster for a denied token")
		return &stubPoster{}
	}

	run, _ := eng.CreateRun("acme/api", 7, false)
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusComplete {
		t.Fatalf("expected the run to complete without posting, got %q", got.Status)
	}
	if got.CommentURL != "" {
		t.Fatalf("expected no comment URL, got %q", got.CommentURL)
	}
	if got.Roadmap == "" {
		t.Fatal("expected roadmap to be persisted despite denied access")
	}

	events, _ := eng.Store().GetEvents(run.ID, 0)
	if !containsEvent(events, "status", "Skipping roadmap comment") {
		t.Fatalf("expected a skip notice event, got %v", eventTypes(events))
	}
}

func TestRunPostCommentDisabled(t *testing.T) {
	cfg := defaultConfig()
	cfg.PostComment = false
	eng := testEngine(t, cfg, &stubGitHub{pr: samplePR()}, happyLLM())

	eng.findToken = func(_ context.Context, _ []string, _, _ string, _ int) *github.TokenSearch {
		t.Error("expected no token search when posting is disabled")
		return &github.TokenSearch{}
	}

	run, _ := eng.CreateRun("acme/api", 7, false)
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusComplete {
		t.Fatalf("expected status 'complete', got %q", got.Status)
	}
	if got.CommentURL != "" {
		t.Fatalf("expected no comment URL, got %q", got.CommentURL)
	}
}

func TestRunPostFailureStillCompletes(t *testing.T) {
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, happyLLM())
	poster := &stubPoster{postErr: errors.New("502 from github")}
	grantPoster(eng, poster)

	run, _ := eng.CreateRun("acme/api", 7, false)
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusComplete {
		t.Fatalf("expected the run to complete despite post failure, got %q", got.Status)
	}
	if got.CommentURL != "" {
		t.Fatalf("expected no comment URL, got %q", got.CommentURL)
	}

	events, _ := eng.Store().GetEvents(run.ID, 0)
	if !containsEvent(events, "status", "Failed to post roadmap comment") {
		t.Fatalf("expected a post failure event, got %v", eventTypes(events))
	}
}

func TestRunSkipReflectionFromConfig(t *testing.T) {
	cfg := defaultConfig()
	cfg.SkipReflection = true
	client := happyLLM()
	eng := testEngine(t, cfg, &stubGitHub{pr: samplePR()}, client)
	grantPoster(eng, &stubPoster{})

	run, err := eng.CreateRun("acme/api", 7, false)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if !run.SkipReflection {
		t.Fatal("expected the engine-wide skip to apply to the run")
	}
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusComplete {
		t.Fatalf("expected status 'complete', got %q (error: %s)", got.Status, got.Error)
	}
	if got.ReflectionIterations != 0 {
		t.Fatalf("expected no reflection iterations, got %d", got.ReflectionIterations)
	}
	// Analyze and draft only; the reflect prompt is never sent.
	if client.calls != 2 {
		t.Fatalf("expected 2 completions, got %d", client.calls)
	}
}

func TestStartSweepsInterruptedRuns(t *testing.T) {
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, happyLLM())

	stale := &model.Run{ID: "stale001", Repo: "acme/api", PRNumber: 3, Status: model.StatusRunning}
	finished := &model.Run{ID: "done0001", Repo: "acme/api", PRNumber: 4, Status: model.StatusComplete}
	if err := eng.Store().CreateRun(stale); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := eng.Store().CreateRun(finished); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	eng.Start(context.Background())
	defer eng.Stop()

	got, _ := eng.Store().GetRun("stale001")
	if got.Status != model.StatusError {
		t.Fatalf("expected interrupted run to be failed, got %q", got.Status)
	}
	if !strings.Contains(got.Error, "interrupted") {
		t.Fatalf("expected interruption error, got %q", got.Error)
	}

	untouched, _ := eng.Store().GetRun("done0001")
	if untouched.Status != model.StatusComplete {
		t.Fatalf("expected finished run to be untouched, got %q", untouched.Status)
	}
}

func TestEngineStartAndStop(t *testing.T) {
	eng := testEngine(t, defaultConfig(), &stubGitHub{pr: samplePR()}, happyLLM())

	ctx, cancel := context.WithCancel(context.Background())
	eng.Start(ctx)

	cancel()
	eng.Stop()

	// Should not panic or hang.
}

func TestRunWithMetricsRecorder(t *testing.T) {
	st, err := sqliteStore.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	rec := metrics.NewRecorderWith(prometheus.NewRegistry())
	eng := New(defaultConfig(), st, eventbus.NewInMemoryBus(), &stubGitHub{pr: samplePR()}, happyLLM(), rec)
	grantPoster(eng, &stubPoster{})

	run, err := eng.CreateRun("acme/api", 7, false)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	got, _ := eng.Store().GetRun(run.ID)
	if got.Status != model.StatusComplete {
		t.Fatalf("expected status 'complete', got %q (error: %s)", got.Status, got.Error)
	}
}
