package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gibster/internal/api"
	"gibster/internal/history"
	"gibster/internal/models"
	"gibster/internal/orchestrator"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Syncer interface {
	Snapshot() orchestrator.Snapshot
	StartSync(ctx context.Context) error
	Cancel() error
}

type History interface {
	Jobs() []models.SyncJob
	Refresh(ctx context.Context, limit int) ([]models.SyncJob, error)
	FetchLogs(ctx context.Context, jobID string, q models.LogQuery) (*models.SyncJobLogPage, error)
}

// Server exposes orchestrator state and history to a UI.
type Server struct {
	syncer       Syncer
	history      History
	hub          *Hub
	historyLimit int
	logger       *zerolog.Logger

	// syncs outlive the request that started them
	baseCtx context.Context
	server  *http.Server
}

func NewServer(baseCtx context.Context, addr string, syncer Syncer, hist History, hub *Hub, historyLimit int, logger *zerolog.Logger) *Server {
	s := &Server{
		syncer:       syncer,
		history:      hist,
		hub:          hub,
		historyLimit: historyLimit,
		logger:       logger,
		baseCtx:      baseCtx,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/sync", s.handleStartSync)
		r.Post("/sync/cancel", s.handleCancelSync)
		r.Get("/history", s.handleHistory)
		r.Get("/history/{id}/logs", s.handleLogs)
	})

	return r
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("State feed listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.syncer.Snapshot())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.hub.Serve(w, r, func() Message {
		snap := s.syncer.Snapshot()
		return Message{Type: msgState, State: &snap}
	})
}

func (s *Server) handleStartSync(w http.ResponseWriter, r *http.Request) {
	err := s.syncer.StartSync(s.baseCtx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.syncer.Snapshot())
	case errors.Is(err, orchestrator.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, api.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Warn().Err(err).Msg("Sync start failed")
		writeJSON(w, http.StatusBadGateway, s.syncer.Snapshot())
	}
}

func (s *Server) handleCancelSync(w http.ResponseWriter, r *http.Request) {
	if err := s.syncer.Cancel(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.syncer.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	jobs := s.history.Jobs()
	if r.URL.Query().Get("refresh") == "true" || jobs == nil {
		fresh, err := s.history.Refresh(r.Context(), limit)
		if err != nil {
			s.writeUpstreamError(w, err)
			return
		}
		jobs = fresh
	}
	if jobs == nil {
		jobs = []models.SyncJob{}
	}
	writeJSON(w, http.StatusOK, models.SyncHistory{Jobs: jobs})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := models.LogQuery{Level: models.LogLevel(q.Get("level"))}
	for name, dst := range map[string]*int{"page": &query.Page, "limit": &query.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	page, err := s.history.FetchLogs(r.Context(), chi.URLParam(r, "id"), query)
	if err != nil {
		s.writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	var statusErr *api.StatusError
	switch {
	case errors.Is(err, history.ErrInvalidLogQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, history.ErrStaleLogPage):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, api.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound:
		writeError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Warn().Err(err).Msg("Upstream request failed")
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
