// Package httpapi provides the HTTP API handler for Guidepost.
// It delegates all business logic to the engine.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/guidepost-ai/guidepost/engine"
	"github.com/guidepost-ai/guidepost/github"
	"github.com/guidepost-ai/guidepost/model"
)

// Handler provides the HTTP API for Guidepost.
type Handler struct {
	engine *engine.Engine
	router chi.Router
}

// New creates a new HTTP API handler.
func New(eng *engine.Engine) *Handler {
	h := &Handler{engine: eng}
	h.router = h.buildRouter()
	return h
}

// Router returns the HTTP router.
func (h *Handler) Router() chi.Router {
	return h.router
}

func (h *Handler) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Post("/runs", h.handleCreateRun)
			r.Get("/runs", h.handleListRuns)
			r.Get("/runs/{id}", h.handleGetRun)
			r.Get("/runs/{id}/roadmap", h.handleGetRoadmap)
		})
		// The SSE stream stays open as long as the client does; no timeout.
		r.Get("/runs/{id}/events", h.handleRunEvents)
	})

	r.Post("/api/webhooks/github", h.handleGitHubWebhook)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// --- Request/Response types ---

type createRunRequest struct {
	Repo           string `json:"repo"`
	PR             int    `json:"pr"`
	SkipReflection bool   `json:"skip_reflection,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Handlers ---

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Repo = strings.TrimSpace(req.Repo)
	if req.Repo == "" {
		writeError(w, http.StatusBadRequest, "repo is required")
		return
	}
	if !isValidRepo(req.Repo) {
		writeError(w, http.StatusBadRequest, "repo must be in owner/repo format")
		return
	}
	if req.PR < 1 {
		writeError(w, http.StatusBadRequest, "pr must be a positive pull request number")
		return
	}

	run, err := h.engine.CreateRun(req.Repo, req.PR, req.SkipReflection)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create run")
		log.Printf("Error creating run: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.engine.Store().ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		log.Printf("Error listing runs: %v", err)
		return
	}
	if runs == nil {
		runs = []*model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.engine.Store().GetRun(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleGetRoadmap(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.engine.Store().GetRun(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if run.Status != model.StatusComplete || run.Roadmap == "" {
		writeError(w, http.StatusNotFound, "roadmap not ready")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(run.Roadmap))
}

func (h *Handler) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := h.engine.Store().GetRun(id); err != nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	events, err := h.engine.Store().GetEvents(id, 0)
	if err != nil {
		log.Printf("failed to load events for run %s: %v", id, err)
		events = nil
	}
	for _, e := range events {
		writeSSE(w, e)
	}
	flusher.Flush()

	ch := h.engine.Bus().Subscribe(id)
	defer h.engine.Bus().Unsubscribe(id, ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
		}
	}
}

func (h *Handler) handleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	event, err := github.ParseWebhook(r, h.engine.WebhookSecret())
	if err != nil {
		log.Printf("Webhook parse error: %v", err)
		writeError(w, http.StatusBadRequest, "invalid webhook")
		return
	}

	if event == nil {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
		return
	}

	// Our own roadmap comments must not trigger new runs.
	if event.CommentUser == "guidepost[bot]" || event.CommentUser == "Guidepost" {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
		return
	}

	// Webhook deliveries repeat; a PR with a live run doesn't get another.
	if existing, err := h.engine.Store().GetRunByPR(event.Repo, event.PRNumber); err == nil {
		if existing.Status == model.StatusPending || existing.Status == model.StatusRunning {
			log.Printf("Webhook: run %s already live for %s#%d", existing.ID, event.Repo, event.PRNumber)
			writeJSON(w, http.StatusOK, existing)
			return
		}
	}

	log.Printf("Webhook: %s on %s#%d triggered a roadmap run", event.Action, event.Repo, event.PRNumber)

	run, err := h.engine.CreateRun(event.Repo, event.PRNumber, false)
	if err != nil {
		log.Printf("Webhook: failed to create run: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create run")
		return
	}

	writeJSON(w, http.StatusAccepted, run)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeSSE(w http.ResponseWriter, event *model.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("writeSSE marshal error: %v", err)
		return
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.ID, event.Type, string(data)); err != nil {
		log.Printf("writeSSE write error: %v", err)
	}
}

func isValidRepo(repo string) bool {
	parts := strings.Split(repo, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}
