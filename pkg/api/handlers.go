package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zen-systems/finroute/pkg/fallback"
	"github.com/zen-systems/finroute/pkg/router"
)

type RouteRequest struct {
	Query   string        `json:"query"`
	Locale  string        `json:"locale,omitempty"`
	History []router.Turn `json:"history,omitempty"`
	// ContextWindow is the number of earlier user turns considered for a
	// follow-up. Zero uses the default.
	ContextWindow int `json:"context_window,omitempty"`
}

type RouteResponse struct {
	Decision router.Decision `json:"decision"`
	// RoutedQuery is set when history changed the text that was routed.
	RoutedQuery string `json:"routed_query,omitempty"`
}

type AttemptResponse struct {
	Provider   string `json:"provider"`
	Kind       string `json:"kind"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

type ErrorResponse struct {
	Error    string            `json:"error"`
	Attempts []AttemptResponse `json:"attempts,omitempty"`
}

type ProvidersResponse struct {
	Live    []string `json:"live"`
	Dropped []string `json:"dropped,omitempty"`
}

type HealthResponse struct {
	Status    string             `json:"status"`
	Threshold float64            `json:"threshold"`
	Providers *ProvidersResponse `json:"providers,omitempty"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	query := req.Query
	if len(req.History) > 0 {
		turns := req.History
		if strings.TrimSpace(req.Query) != "" {
			turns = append(turns, router.Turn{Role: router.RoleUser, Content: req.Query})
		}
		query = s.router.Matcher().QueryWithContext(turns, req.ContextWindow)
	}

	decision, err := s.router.Route(r.Context(), query, router.WithLocale(req.Locale))
	if err != nil {
		s.writeRouteError(w, r, err)
		return
	}

	resp := RouteResponse{Decision: decision}
	if query != req.Query {
		resp.RoutedQuery = query
	}
	s.writeJSON(w, resp)
}

func (s *Server) writeRouteError(w http.ResponseWriter, r *http.Request, err error) {
	var exhausted *fallback.ExhaustedError
	switch {
	case errors.Is(err, router.ErrEmptyQuery):
		s.writeError(w, "query is required", http.StatusBadRequest)
	case errors.As(err, &exhausted):
		s.logger.Error().Err(err).Msg("all providers failed")
		attempts := make([]AttemptResponse, len(exhausted.Attempts))
		for i, a := range exhausted.Attempts {
			attempts[i] = AttemptResponse{
				Provider:   a.Provider,
				Kind:       string(a.Kind),
				Error:      a.Message(),
				DurationMS: a.Duration.Milliseconds(),
			}
		}
		s.writeJSONStatus(w, ErrorResponse{Error: err.Error(), Attempts: attempts}, http.StatusBadGateway)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn().Err(err).Bool("client_gone", r.Context().Err() != nil).Msg("route canceled")
		s.writeError(w, "routing canceled", http.StatusServiceUnavailable)
	case errors.Is(err, router.ErrLLMUnavailable):
		s.writeError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.logger.Error().Err(err).Msg("route error")
		s.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Threshold: s.router.Threshold()}
	if s.holder != nil {
		resp.Providers = providersOf(s.holder.Load())
	}
	s.writeJSON(w, resp)
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.router.Matcher().Rules().Rules())
}

func (s *Server) handleReprobe(w http.ResponseWriter, r *http.Request) {
	if s.holder == nil {
		s.writeError(w, "no provider chain configured", http.StatusNotImplemented)
		return
	}
	chain, err := s.holder.Rebuild(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("reprobe failed")
		s.writeJSONStatus(w, struct {
			Error     string             `json:"error"`
			Providers *ProvidersResponse `json:"providers"`
		}{err.Error(), providersOf(chain)}, http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, providersOf(chain))
}

func providersOf(chain *fallback.Chain) *ProvidersResponse {
	if chain == nil {
		return &ProvidersResponse{Live: []string{}}
	}
	resp := &ProvidersResponse{Live: chain.Names()}
	for _, h := range chain.Dropped() {
		resp.Dropped = append(resp.Dropped, h.Name)
	}
	return resp
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	s.writeJSONStatus(w, data, http.StatusOK)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug().Err(err).Msg("write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, message string, status int) {
	s.writeJSONStatus(w, ErrorResponse{Error: message}, status)
}
