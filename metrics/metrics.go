// Package metrics provides Prometheus-based metrics recording for roadmap
// runs and LLM requests.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/model"
)

// Recorder holds the Guidepost metric families.
type Recorder struct {
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	stepsTotal        *prometheus.CounterVec
	reflectionRetries prometheus.Counter
	llmRequests       *prometheus.CounterVec
	llmDuration       *prometheus.HistogramVec
}

// NewRecorder registers the metric families with the default registerer.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith registers the metric families with reg.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guidepost_runs_total",
				Help: "Total number of finished roadmap runs by status",
			},
			[]string{"status"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "guidepost_run_duration_seconds",
				Help:    "Wall-clock duration of roadmap runs",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guidepost_workflow_steps_total",
				Help: "Total number of workflow step executions by step",
			},
			[]string{"step"},
		),
		reflectionRetries: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "guidepost_reflection_retries_total",
				Help: "Total number of roadmap redrafts after a failed self-review",
			},
		),
		llmRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guidepost_llm_requests_total",
				Help: "Total number of LLM requests by provider and status",
			},
			[]string{"provider", "status"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "guidepost_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
	}
}

// RunFinished records a completed or failed run with its duration.
func (r *Recorder) RunFinished(status model.Status, duration time.Duration) {
	r.runsTotal.WithLabelValues(string(status)).Inc()
	r.runDuration.Observe(duration.Seconds())
}

// StepStarted counts a workflow step execution.
func (r *Recorder) StepStarted(step string) {
	r.stepsTotal.WithLabelValues(step).Inc()
}

// ReflectionRetry counts a redraft forced by a failed self-review.
func (r *Recorder) ReflectionRetry() {
	r.reflectionRetries.Inc()
}

func (r *Recorder) observeLLM(provider string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.llmRequests.WithLabelValues(provider, status).Inc()
	r.llmDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// InstrumentLLM wraps an LLM client so every request is counted and timed
// under the given provider label.
func (r *Recorder) InstrumentLLM(client llm.Client, provider string) llm.Client {
	return &instrumentedLLM{inner: client, rec: r, provider: provider}
}

type instrumentedLLM struct {
	inner    llm.Client
	rec      *Recorder
	provider string
}

func (l *instrumentedLLM) Complete(ctx context.Context, system, user string) (string, error) {
	start := time.Now()
	out, err := l.inner.Complete(ctx, system, user)
	l.rec.observeLLM(l.provider, err, time.Since(start))
	return out, err
}

func (l *instrumentedLLM) CompleteWithTools(ctx context.Context, system, user string, tools []llm.ToolDef) (*llm.Response, error) {
	start := time.Now()
	resp, err := l.inner.CompleteWithTools(ctx, system, user, tools)
	l.rec.observeLLM(l.provider, err, time.Since(start))
	return resp, err
}
