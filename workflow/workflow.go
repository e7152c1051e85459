// Package workflow drives the multi-step roadmap generation for one PR:
// analyze the change structure, optionally expand context by reading extra
// files, draft the roadmap, then self-review it with a bounded retry loop.
package workflow

import (
	"context"
	"fmt"
	"log"

	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/model"
)

// Step identifies one node of the roadmap workflow.
type Step string

const (
	StepAnalyze Step = "analyze_structure"
	StepExpand  Step = "expand_context"
	StepDraft   Step = "draft_roadmap"
	StepReflect Step = "reflect_on_roadmap"
	StepDone    Step = "done"
)

// transitions lists the legal successors of each step. Run validates every
// move against this table; reaching StepDone ends the run.
var transitions = map[Step][]Step{
	StepAnalyze: {StepExpand},
	StepExpand:  {StepDraft},
	StepDraft:   {StepReflect, StepDone},
	StepReflect: {StepDraft, StepDone},
}

func canTransition(from, to Step) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Controller runs a single PR through the workflow. It is stateless between
// runs; every Run builds its own State.
type Controller struct {
	llm           llm.Client
	fetcher       ContentFetcher
	maxIterations int
	onStep        func(Step)

	analyzePrompt string
	expandPrompt  string
	draftPrompt   string
	reflectPrompt string
}

// Options tunes a Controller. Zero values select the defaults.
type Options struct {
	// MaxIterations is the number of reflection attempts before the roadmap
	// is accepted as-is. Defaults to DefaultMaxIterations.
	MaxIterations int
	// OnStep, when set, is called right before each step executes.
	OnStep func(Step)

	// System prompt overrides; empty means the package default.
	AnalyzePrompt string
	ExpandPrompt  string
	DraftPrompt   string
	ReflectPrompt string
}

// NewController creates a workflow controller. The model client and content
// fetcher are injected; everything in opts falls back to defaults.
func NewController(client llm.Client, fetcher ContentFetcher, opts Options) *Controller {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.AnalyzePrompt == "" {
		opts.AnalyzePrompt = DefaultAnalyzePrompt
	}
	if opts.ExpandPrompt == "" {
		opts.ExpandPrompt = DefaultExpandPrompt
	}
	if opts.DraftPrompt == "" {
		opts.DraftPrompt = DefaultDraftPrompt
	}
	if opts.ReflectPrompt == "" {
		opts.ReflectPrompt = DefaultReflectPrompt
	}
	return &Controller{
		llm:           client,
		fetcher:       fetcher,
		maxIterations: opts.MaxIterations,
		onStep:        opts.OnStep,
		analyzePrompt: opts.AnalyzePrompt,
		expandPrompt:  opts.ExpandPrompt,
		draftPrompt:   opts.DraftPrompt,
		reflectPrompt: opts.ReflectPrompt,
	}
}

// Run executes the workflow for one PR and returns the final state. The
// roadmap may be returned even when reflection never passed; only model
// invocation failures and illegal transitions abort the run.
func (c *Controller) Run(ctx context.Context, pr *model.PRContext, skipReflection bool) (*State, error) {
	if pr == nil {
		return nil, fmt.Errorf("run workflow: nil PR context")
	}

	st := NewState(pr, skipReflection)
	step := StepAnalyze

	for step != StepDone {
		c.notify(step)

		update, err := c.execute(ctx, step, st)
		if err != nil {
			return nil, err
		}
		st.apply(update)

		next := c.nextStep(step, st)
		if !canTransition(step, next) {
			return nil, fmt.Errorf("illegal transition %s -> %s", step, next)
		}
		step = next
	}

	return st, nil
}

func (c *Controller) execute(ctx context.Context, step Step, st *State) (*Update, error) {
	switch step {
	case StepAnalyze:
		return c.analyzeStructure(ctx, st)
	case StepExpand:
		return c.expandContext(ctx, st)
	case StepDraft:
		return c.draftRoadmap(ctx, st)
	case StepReflect:
		return c.reflectOnRoadmap(ctx, st)
	}
	return nil, fmt.Errorf("unknown step %q", step)
}

// nextStep is the conditional routing of the workflow. Draft either ends the
// run or hands off to reflection; reflection either accepts, retries the
// draft, or gives up once the iteration budget is spent.
func (c *Controller) nextStep(step Step, st *State) Step {
	switch step {
	case StepAnalyze:
		return StepExpand
	case StepExpand:
		return StepDraft
	case StepDraft:
		if st.SkipReflection {
			log.Printf("reflection skipped: disabled for this run")
			return StepDone
		}
		return StepReflect
	case StepReflect:
		if st.ReflectionPassed {
			return StepDone
		}
		if st.ReflectionIterations >= c.maxIterations {
			log.Printf("max reflection iterations reached (%d), accepting roadmap", st.ReflectionIterations)
			return StepDone
		}
		return StepDraft
	}
	return StepDone
}

func (c *Controller) notify(step Step) {
	if c.onStep != nil {
		c.onStep(step)
	}
}
