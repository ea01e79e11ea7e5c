package httpadapter

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"yarad/internal/domain"
	"yarad/internal/services/dispatch"
	"yarad/internal/services/registry"
)

// Server exposes the agent-facing API plus a small admin surface. Internal
// failures never cross the boundary as anything richer than a terse JSON
// error.
type Server struct {
	dispatch   *dispatch.Service
	registry   *registry.Service
	adminToken string
}

func New(d *dispatch.Service, r *registry.Service, adminToken string) *Server {
	return &Server{dispatch: d, registry: r, adminToken: adminToken}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/authorize", s.handleAuthorize)
		r.Group(func(r chi.Router) {
			r.Use(s.agentAuth)
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleJobDetails)
			r.Post("/jobs/{jobID}/claim", s.handleClaim)
			r.Post("/results", s.handleSubmit)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Post("/agents", s.handleRegisterAgent)
		r.Post("/jobs", s.handleCreateJob)
	})

	return r
}

type ctxKey int

const agentIDKey ctxKey = 0

// agentAuth resolves the bearer credential on every request; the resolved
// identity is the only one downstream handlers trust.
func (s *Server) agentAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID, err := s.dispatch.Authorize(r.Context(), bearerToken(r))
		if errors.Is(err, domain.ErrNotAuthorized) {
			writeError(w, http.StatusUnauthorized, "not authorized")
			return
		}
		if err != nil {
			slog.Error("credential resolution failed", "err", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), agentIDKey, agentID)))
	})
}

func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusForbidden, "admin API disabled")
			return
		}
		if subtle.ConstantTimeCompare([]byte(bearerToken(r)), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "not authorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Auth string `json:"auth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agentID, err := s.dispatch.Authorize(r.Context(), req.Auth)
	if errors.Is(err, domain.ErrNotAuthorized) {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}
	if err != nil {
		slog.Error("credential resolution failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"agent_id": agentID})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.dispatch.ListJobs(r.Context())
	if err != nil {
		slog.Error("job listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if jobs == nil {
		jobs = []domain.AvailableJob{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleJobDetails(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	found, d, err := s.dispatch.JobDetails(r.Context(), jobID)
	if err != nil {
		slog.Error("job detail fetch failed", "job_id", jobID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"notify_email": d.NotifyEmail,
		"rules":        string(d.Rules),
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	jobID, ok := jobIDParam(w, r)
	if !ok {
		return
	}
	a, err := s.dispatch.Claim(r.Context(), agentID(r), jobID)
	if err != nil {
		slog.Error("claim failed", "job_id", jobID, "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !a.Accepted {
		writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "accepted",
		"rules":  string(a.Rules),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Report domain.CompletionReport `json:"report"`
		Status domain.JobStatus        `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Terminal() {
		writeError(w, http.StatusBadRequest, "status must be done or error")
		return
	}
	err := s.dispatch.Submit(r.Context(), agentID(r), req.Report, req.Status)
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error())
		return
	}
	if err != nil {
		slog.Error("result submission failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agent, err := s.registry.RegisterAgent(r.Context(), req.Name)
	if err != nil {
		slog.Error("agent registration failed", "err", err)
		writeError(w, http.StatusBadRequest, "could not register agent")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"agent_id": agent.ID,
		"auth":     agent.Auth,
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description json.RawMessage `json:"description"`
		Rules       string          `json:"rules"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	jobID, err := s.registry.CreateJob(r.Context(), req.Description, []byte(req.Rules))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"job_id": jobID})
}

func agentID(r *http.Request) int64 {
	id, _ := r.Context().Value(agentIDKey).(int64)
	return id
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "jobID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
