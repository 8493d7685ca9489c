package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/yanun0323/logs"

	"orchestrator/internal/journal"
	"orchestrator/internal/pipeline"
	"orchestrator/pkg/exception"
)

// Service is the command surface of the engine.
type Service interface {
	CreatePipeline(ctx context.Context, w pipeline.WirePipeline, params pipeline.Params) (pipeline.Pipeline, error)
	GetPipeline(ctx context.Context, userID string, id uuid.UUID) (pipeline.Pipeline, error)
	DeletePipeline(ctx context.Context, userID string, id uuid.UUID) error
}

// ExecutionLister reads the execution journal.
type ExecutionLister interface {
	Executions(ctx context.Context, userID, pipelineID string) ([]journal.Row, error)
}

type identityKey struct{}

// Server is the HTTP adapter in front of the command bridge.
type Server struct {
	service    Service
	identities IdentityResolver
	metrics    *Metrics
	executions ExecutionLister
}

// NewServer creates a server. executions may be nil when no journal is configured.
func NewServer(service Service, identities IdentityResolver, metrics *Metrics, executions ExecutionLister) *Server {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Server{
		service:    service,
		identities: identities,
		metrics:    metrics,
		executions: executions,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/healthz", s.healthz)
	r.Handle("/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/api/pipeline", s.createPipeline)
		r.Get("/api/pipeline/{id}", s.getPipeline)
		r.Delete("/api/pipeline/{id}", s.deletePipeline)
		r.Get("/api/pipeline/{id}/executions", s.listExecutions)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	s.write(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			s.fail(w, r, ErrUnauthorized)
			return
		}
		params, err := s.identities.Resolve(r.Context(), token)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, params)))
	})
}

func identity(r *http.Request) pipeline.Params {
	params, _ := r.Context().Value(identityKey{}).(pipeline.Params)
	return params
}

func (s *Server) createPipeline(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.metrics.creationAttempts.Inc()

	var body pipeline.WirePipeline
	if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&body); err != nil {
		s.metrics.observeCreation(start, "decode")
		s.fail(w, r, exception.ErrInvalidArgument)
		return
	}

	p, err := s.service.CreatePipeline(r.Context(), body, identity(r))
	if err != nil {
		s.metrics.observeCreation(start, reason(err))
		s.fail(w, r, err)
		return
	}

	s.metrics.observeCreation(start, "")
	s.write(w, r, http.StatusCreated, p)
}

func (s *Server) getPipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, err := s.service.GetPipeline(r.Context(), identity(r).UserID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, p)
}

func (s *Server) deletePipeline(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	if err := s.service.DeletePipeline(r.Context(), identity(r).UserID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(r, http.StatusNoContent)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	if s.executions == nil {
		s.fail(w, r, exception.ErrEngineUnavailable)
		return
	}
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	userID := identity(r).UserID
	// ownership goes through the engine so foreign ids stay not found
	if _, err := s.service.GetPipeline(r.Context(), userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.executions.Executions(r.Context(), userID, id.String())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.write(w, r, http.StatusOK, rows)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, exception.ErrInvalidArgument)
		return uuid.Nil, false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := status(err)
	if code >= http.StatusInternalServerError {
		logs.Errorf("%s %s, err: %+v", r.Method, r.URL.Path, err)
	}
	s.write(w, r, code, errorBody{Error: err.Error()})
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, code int, v any) {
	s.record(r, code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := sonic.ConfigDefault.NewEncoder(w).Encode(v); err != nil {
		logs.Warnf("encode response, err: %+v", err)
	}
}

func (s *Server) record(r *http.Request, code int) {
	route := r.URL.Path
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		route = rctx.RoutePattern()
	}
	s.metrics.requestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func status(err error) int {
	switch {
	case stderrors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case stderrors.Is(err, exception.ErrPipelineNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, exception.ErrPipelineDuplicate):
		return http.StatusConflict
	case stderrors.Is(err, exception.ErrPipelineInvalid),
		stderrors.Is(err, exception.ErrPipelineRejected),
		stderrors.Is(err, exception.ErrInvalidArgument):
		return http.StatusBadRequest
	case stderrors.Is(err, exception.ErrEngineTimeout):
		return http.StatusGatewayTimeout
	case stderrors.Is(err, exception.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func reason(err error) string {
	switch status(err) {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "duplicate"
	case http.StatusBadRequest:
		return "validation"
	case http.StatusGatewayTimeout:
		return "timeout"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}
