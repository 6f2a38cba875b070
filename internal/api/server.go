package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sdqueue/internal/models"
	"sdqueue/internal/queue"
	"sdqueue/internal/ratelimit"
	"sdqueue/internal/telemetry"
)

const maxBodyBytes = 64 << 10

// Server wires HTTP handlers for the prompt producer API.
type Server struct {
	store   *queue.Store
	limiter ratelimit.Limiter
	logger  zerolog.Logger
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(st *queue.Store, limiter ratelimit.Limiter, logger zerolog.Logger) *Server {
	return &Server{
		store:   st,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/prompts", s.handleEnqueue)
	r.Get("/prompts", s.handleList)
	return r
}

type enqueueRequest struct {
	Prompt    string `json:"prompt"`
	ModelType string `json:"model_type"`
}

type enqueueResponse struct {
	Name      string           `json:"name"`
	ModelType models.ModelType `json:"model_type"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	if s.limiter != nil {
		client := clientKey(r)
		decision, err := s.limiter.Allow(r.Context(), client)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("client", client).Msg("rate limiter unavailable, allowing request")
		case !decision.Allowed:
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	modelType := models.ParseModelType(req.ModelType)
	name, err := s.store.Enqueue(r.Context(), req.Prompt, modelType)
	if err != nil {
		if errors.Is(err, queue.ErrEmptyPrompt) {
			writeError(w, http.StatusBadRequest, "prompt is required")
			return
		}
		s.logger.Error().Err(err).Msg("enqueue failed")
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	telemetry.PromptsEnqueued.Inc()
	s.logger.Info().Str("file", name).Str("model_type", string(modelType)).Msg("prompt enqueued")

	writeJSON(w, http.StatusAccepted, enqueueResponse{Name: name, ModelType: modelType})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request) {
	names, err := s.store.ListPending()
	if err != nil {
		s.logger.Error().Err(err).Msg("list queue failed")
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": names})
}

// clientKey identifies the caller for rate limiting: first X-Forwarded-For hop, else the remote host.
func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if v := strings.TrimSpace(first); v != "" {
			return v
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
