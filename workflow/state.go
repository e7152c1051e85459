package workflow

import "github.com/guidepost-ai/guidepost/model"

// State is the accumulated data for one roadmap run. The controller owns it;
// step functions read it and return partial Updates which the controller
// merges. A State is never shared across runs.
type State struct {
	// PR is the immutable input, set once at entry.
	PR *model.PRContext

	// Topology holds the structural analysis under the "analysis" key.
	Topology map[string]string
	// FetchedContent maps repository paths to file content, or to an error
	// string when the fetch failed.
	FetchedContent map[string]string

	// Roadmap is the full Markdown roadmap, overwritten on every draft.
	Roadmap string

	ReflectionPassed     bool
	ReflectionFeedback   string
	ReflectionIterations int
	SkipReflection       bool
}

// NewState builds the initial state for a run.
func NewState(pr *model.PRContext, skipReflection bool) *State {
	return &State{
		PR:             pr,
		Topology:       make(map[string]string),
		FetchedContent: make(map[string]string),
		SkipReflection: skipReflection,
	}
}

// Analysis returns the stored topology analysis, or "No analysis" when the
// analyze step has not populated it.
func (s *State) Analysis() string {
	if v, ok := s.Topology["analysis"]; ok {
		return v
	}
	return "No analysis"
}

// Reflection is the parsed outcome of the self-review step.
type Reflection struct {
	Passed   bool   `json:"passed"`
	Feedback string `json:"feedback"`
	Notes    string `json:"notes"`
}

// Update is the partial state change produced by one step. Nil fields leave
// the state untouched.
type Update struct {
	Topology       map[string]string
	FetchedContent map[string]string
	Roadmap        *string
	Reflection     *Reflection
}

// apply merges an update into the state. Applying a Reflection also counts
// the iteration, whatever its outcome.
func (s *State) apply(u *Update) {
	if u == nil {
		return
	}
	if u.Topology != nil {
		s.Topology = u.Topology
	}
	if u.FetchedContent != nil {
		s.FetchedContent = u.FetchedContent
	}
	if u.Roadmap != nil {
		s.Roadmap = *u.Roadmap
	}
	if u.Reflection != nil {
		s.ReflectionPassed = u.Reflection.Passed
		s.ReflectionFeedback = u.Reflection.Feedback
		s.ReflectionIterations++
	}
}
