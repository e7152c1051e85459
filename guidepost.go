// Package guidepost is the top-level entry point for the Guidepost server.
//
// Use the Builder to compose a Guidepost service:
//
//	svc, err := guidepost.NewBuilder().Build()
//	svc.Start(ctx)
//
// Or customize every component:
//
//	svc, err := guidepost.NewBuilder().
//	    WithConfig(cfg).
//	    WithStore(myStore).
//	    WithGitHub(myClient).
//	    Build()
package guidepost

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/guidepost-ai/guidepost/config"
	"github.com/guidepost-ai/guidepost/engine"
	"github.com/guidepost-ai/guidepost/eventbus"
	"github.com/guidepost-ai/guidepost/httpapi"
	"github.com/guidepost-ai/guidepost/llm"
	"github.com/guidepost-ai/guidepost/metrics"
	"github.com/guidepost-ai/guidepost/notify"
	"github.com/guidepost-ai/guidepost/store"
)

// Builder constructs a Guidepost Service.
type Builder struct {
	config    *config.Config
	store     store.RunStore
	bus       eventbus.Bus
	github    engine.GitHubAPI
	llm       llm.Client
	metrics   *metrics.Recorder
	notifiers []notify.Notifier
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration. When omitted the
// configuration is loaded from the environment.
func (b *Builder) WithConfig(cfg *config.Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the run store implementation.
func (b *Builder) WithStore(s store.RunStore) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// WithGitHub sets the GitHub client used to fetch PR context and file
// contents.
func (b *Builder) WithGitHub(gh engine.GitHubAPI) *Builder {
	b.github = gh
	return b
}

// WithLLM sets the model client used by the roadmap workflow. A client
// supplied here is used as-is, without metrics instrumentation.
func (b *Builder) WithLLM(client llm.Client) *Builder {
	b.llm = client
	return b
}

// WithMetrics sets the metrics recorder. Useful in tests to register on a
// private Prometheus registry.
func (b *Builder) WithMetrics(rec *metrics.Recorder) *Builder {
	b.metrics = rec
	return b
}

// WithNotifier adds a completion notifier (Slack, Telegram, etc.).
// Supplying any notifier disables the config-driven ones.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifiers = append(b.notifiers, n)
	return b
}

// Build creates the Service. Missing components are filled with defaults.
func (b *Builder) Build() (*Service, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	eng := engine.New(
		engine.Config{
			GithubTokens:   b.config.GithubTokens,
			MaxReflections: b.config.MaxReflections,
			SkipReflection: b.config.SkipReflection,
			PostComment:    b.config.PostComment,
			WebhookSecret:  b.config.WebhookSecret,
		},
		b.store,
		b.bus,
		b.github,
		b.llm,
		b.metrics,
		b.notifiers...,
	)

	handler := httpapi.New(eng)

	return &Service{
		config:  b.config,
		engine:  eng,
		handler: handler,
	}, nil
}

// Service is a composed Guidepost application.
type Service struct {
	config  *config.Config
	engine  *engine.Engine
	handler *httpapi.Handler
}

// Engine returns the underlying engine for direct access.
func (s *Service) Engine() *engine.Engine { return s.engine }

// Handler returns the HTTP API handler, for mounting into a larger router.
func (s *Service) Handler() *httpapi.Handler { return s.handler }

// Start starts the HTTP server. Blocks until ctx is done, then shuts down
// gracefully and releases the store.
func (s *Service) Start(ctx context.Context) error {
	s.engine.Start(ctx)

	srv := &http.Server{
		Addr:    s.config.ServerAddr,
		Handler: s.handler.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Guidepost server listening on %s", s.config.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	s.engine.Stop()
	return s.engine.Store().Close()
}

// Close stops the engine and releases the store. Only needed for services
// that are built but never started; Start does this itself on shutdown.
func (s *Service) Close() error {
	s.engine.Stop()
	return s.engine.Store().Close()
}
