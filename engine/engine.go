// Package engine provides the run orchestration logic for Guidepost.
// It depends only on interfaces (store, eventbus, llm, notify, and a
// narrow slice of the GitHub API) so runs can be tested with stubs.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/guidepost-ai/guidepost/eventbus"
	"github.com/guidepost-ai/guidepost/github"
	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/metrics"
	"github.com/guidepost-ai/guidepost/model"
	"github.com/guidepost-ai/guidepost/notify"
	"github.com/guidepost-ai/guidepost/store"
	"github.com/guidepost-ai/guidepost/tokens"
	"github.com/guidepost-ai/guidepost/workflow"
)

// Config holds engine-specific configuration.
type Config struct {
	// GithubTokens is the token rotation list used when posting the
	// roadmap comment. The first token with verified write access wins.
	GithubTokens []string

	// MaxReflections caps the draft/reflect retry loop per run.
	MaxReflections int

	// SkipReflection disables the self-review pass for all runs.
	SkipReflection bool

	// PostComment controls whether finished roadmaps are posted back to
	// the pull request.
	PostComment bool

	// WebhookSecret verifies incoming GitHub webhook signatures.
	WebhookSecret string
}

// GitHubAPI is the read path of the GitHub API the engine depends on.
// *github.Client satisfies it, and so does any test stub. It doubles as
// the workflow's content fetcher.
type GitHubAPI interface {
	FetchPRContext(ctx context.Context, owner, repo string, number int) (*model.PRContext, error)
	FetchFileContent(ctx context.Context, owner, repo, path, ref string) (string, error)
}

// RoadmapPoster is the write path: minimizing stale roadmap comments and
// posting the new one. *github.Client satisfies it.
type RoadmapPoster interface {
	MinimizeOldRoadmapComments(ctx context.Context, owner, repo string, number int, prefix string) (minimized, errors int)
	PostRoadmapComment(ctx context.Context, owner, repo string, number int, body string) (string, error)
}

// Engine orchestrates Guidepost run lifecycle.
type Engine struct {
	config    Config
	store     store.RunStore
	bus       eventbus.Bus
	github    GitHubAPI
	llm       llm.Client
	metrics   *metrics.Recorder
	notifiers []notify.Notifier

	// findToken and posterFor are replaced in tests; production wiring
	// uses the real GitHub client.
	findToken func(ctx context.Context, tokens []string, owner, repo string, prNumber int) *github.TokenSearch
	posterFor func(token string) RoadmapPoster

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Engine with all dependencies. rec may be nil to
// disable metrics; notifiers may be empty.
func New(
	cfg Config,
	st store.RunStore,
	bus eventbus.Bus,
	gh GitHubAPI,
	client llm.Client,
	rec *metrics.Recorder,
	notifiers ...notify.Notifier,
) *Engine {
	return &Engine{
		config:    cfg,
		store:     st,
		bus:       bus,
		github:    gh,
		llm:       client,
		metrics:   rec,
		notifiers: notifiers,
		findToken: github.FindWorkingToken,
		posterFor: func(token string) RoadmapPoster { return github.NewClient(token) },
	}
}

// Start prepares the engine for background work. Runs left pending or
// running by a previous process are marked failed so they don't show as
// live forever. Call Stop to shut down.
func (e *Engine) Start(ctx context.Context) {
	e.ctx, e.cancel = context.WithCancel(ctx)

	runs, err := e.store.ListRuns()
	if err != nil {
		log.Printf("Warning: could not sweep interrupted runs: %v", err)
		return
	}
	for _, run := range runs {
		if run.Status != model.StatusPending && run.Status != model.StatusRunning {
			continue
		}
		run.Status = model.StatusError
		run.Error = "interrupted by server restart"
		e.store.UpdateRun(run)
		e.emitEvent(run.ID, "error", run.Error)
	}
}

// Stop cancels all background work and waits for run goroutines to finish.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
}

// Store returns the run store.
func (e *Engine) Store() store.RunStore { return e.store }

// Bus returns the event bus.
func (e *Engine) Bus() eventbus.Bus { return e.bus }

// WebhookSecret returns the configured webhook secret.
func (e *Engine) WebhookSecret() string { return e.config.WebhookSecret }

// CreateRun creates a roadmap run and starts generating in the background.
// repo must be in "owner/repo" form. skipReflection disables self-review
// for this run on top of the engine-wide setting.
func (e *Engine) CreateRun(repo string, prNumber int, skipReflection bool) (*model.Run, error) {
	if _, _, err := github.SplitRepo(repo); err != nil {
		return nil, err
	}

	id := uuid.New().String()[:8]
	now := time.Now().UTC()

	run := &model.Run{
		ID:             id,
		Repo:           repo,
		PRNumber:       prNumber,
		Status:         model.StatusPending,
		SkipReflection: skipReflection || e.config.SkipReflection,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.CreateRun(run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.runRoadmap(run.ID)
	}()

	return run, nil
}

func (e *Engine) runRoadmap(runID string) {
	ctx := e.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	run, err := e.store.GetRun(runID)
	if err != nil {
		log.Printf("run %s not found while starting: %v", runID, err)
		return
	}
	started := time.Now()

	run.Status = model.StatusRunning
	e.store.UpdateRun(run)
	e.emitEvent(run.ID, "status", fmt.Sprintf("Generating review roadmap for %s#%d...", run.Repo, run.PRNumber))

	owner, repo, err := github.SplitRepo(run.Repo)
	if err != nil {
		e.failRun(run, started, err.Error())
		return
	}

	pr, err := e.github.FetchPRContext(ctx, owner, repo, run.PRNumber)
	if err != nil {
		e.failRun(run, started, fmt.Sprintf("failed to fetch PR context: %v", err))
		return
	}
	e.emitEvent(run.ID, "status", fmt.Sprintf("Fetched PR context: %d files, %d comments", len(pr.Files), len(pr.Comments)))

	// A second draft means reflection rejected the first one.
	drafts := 0
	ctrl := workflow.NewController(e.llm, e.github, workflow.Options{
		MaxIterations: e.config.MaxReflections,
		OnStep: func(step workflow.Step) {
			e.emitEvent(run.ID, "step", string(step))
			if e.metrics == nil {
				return
			}
			e.metrics.StepStarted(string(step))
			if step == workflow.StepDraft {
				drafts++
				if drafts > 1 {
					e.metrics.ReflectionRetry()
				}
			}
		},
	})

	state, err := ctrl.Run(ctx, pr, run.SkipReflection)
	if err != nil {
		e.failRun(run, started, fmt.Sprintf("roadmap generation failed: %v", err))
		return
	}

	run.Roadmap = state.Roadmap
	run.ReflectionPassed = state.ReflectionPassed
	run.ReflectionIterations = state.ReflectionIterations
	e.store.UpdateRun(run)

	if n, err := tokens.Count(workflow.DraftInput(state)); err == nil {
		log.Printf("[%s] draft prompt size: %d tokens", run.ID, n)
	} else {
		log.Printf("[%s] token estimate unavailable: %v", run.ID, err)
	}
	e.emitEvent(run.ID, "status", fmt.Sprintf("Roadmap generated (%d chars, %d reflection pass(es))",
		len(run.Roadmap), run.ReflectionIterations))

	if e.config.PostComment && run.Roadmap != "" {
		e.publishRoadmap(ctx, run, owner, repo)
	}

	run.Status = model.StatusComplete
	e.store.UpdateRun(run)

	done := run.CommentURL
	if done == "" {
		done = fmt.Sprintf("Roadmap for %s#%d ready", run.Repo, run.PRNumber)
	}
	e.emitEvent(run.ID, "done", done)

	if e.metrics != nil {
		e.metrics.RunFinished(model.StatusComplete, time.Since(started))
	}

	for _, n := range e.notifiers {
		if err := n.RoadmapReady(ctx, run); err != nil {
			log.Printf("[%s] notifier %T failed: %v", run.ID, n, err)
		}
	}
}

// publishRoadmap posts the roadmap back to the PR: find a token with write
// access, collapse roadmap comments from earlier runs, post the new one.
// Posting failures are logged and reported as events but never fail the
// run; the roadmap itself is already persisted.
func (e *Engine) publishRoadmap(ctx context.Context, run *model.Run, owner, repo string) {
	search := e.findToken(ctx, e.config.GithubTokens, owner, repo, run.PRNumber)
	if search.Check == nil || search.Check.Status == github.AccessDenied {
		msg := "write access denied"
		if search.Check != nil && search.Check.Message != "" {
			msg = search.Check.Message
		}
		log.Printf("[%s] skipping roadmap comment after trying %d token(s): %s", run.ID, search.Tried, msg)
		e.emitEvent(run.ID, "status", fmt.Sprintf("Skipping roadmap comment: %s", msg))
		return
	}

	poster := e.posterFor(search.Token)

	minimized, minimizeErrs := poster.MinimizeOldRoadmapComments(ctx, owner, repo, run.PRNumber, github.RoadmapPrefix)
	if minimized > 0 || minimizeErrs > 0 {
		log.Printf("[%s] minimized %d old roadmap comment(s), %d error(s)", run.ID, minimized, minimizeErrs)
	}

	body := fmt.Sprintf("%s\n\n%s\n\n---\n*Posted by [Guidepost](https://github.com/guidepost-ai/guidepost) run `%s`*",
		github.RoadmapPrefix, run.Roadmap, run.ID)

	url, err := poster.PostRoadmapComment(ctx, owner, repo, run.PRNumber, body)
	if err != nil {
		log.Printf("[%s] failed to post roadmap comment: %v", run.ID, err)
		e.emitEvent(run.ID, "status", fmt.Sprintf("Failed to post roadmap comment: %v", err))
		return
	}

	run.CommentURL = url
	e.store.UpdateRun(run)
	e.emitEvent(run.ID, "status", fmt.Sprintf("Roadmap comment posted: %s", url))
}

// --- Helpers ---

func (e *Engine) failRun(run *model.Run, started time.Time, errMsg string) {
	log.Printf("[%s] run failed: %s", run.ID, errMsg)
	run.Status = model.StatusError
	run.Error = errMsg
	e.store.UpdateRun(run)
	e.emitEvent(run.ID, "error", errMsg)
	if e.metrics != nil {
		e.metrics.RunFinished(model.StatusError, time.Since(started))
	}
}

func (e *Engine) emitEvent(runID, eventType, data string) {
	event := &model.Event{
		RunID:     runID,
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AddEvent(event); err != nil {
		log.Printf("Error storing event: %v", err)
	}
	e.bus.Publish(runID, event)
}
