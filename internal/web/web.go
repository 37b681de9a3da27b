package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cyclecal/internal/config"
	"cyclecal/internal/forecast"
	"cyclecal/internal/ics"
	appLog "cyclecal/internal/log"
	"cyclecal/internal/model"
	"cyclecal/internal/predictor"
	"cyclecal/internal/store"
)

// Store is the subset of the event store the API needs.
type Store interface {
	List(ctx context.Context) ([]model.Record, error)
	Add(ctx context.Context, rec model.Record) (model.Record, error)
	Update(ctx context.Context, rec model.Record) (model.Record, error)
	Delete(ctx context.Context, id string) error
}

// Server exposes forecasts, statistics, the event store and the
// calendar feed over HTTP.
type Server struct {
	cfg      *config.Config
	store    Store
	forecast *forecast.Service
	gatherer prometheus.Gatherer
	mux      *http.ServeMux
}

// NewServer constructs a Server. gatherer may be nil to use the default
// Prometheus registry.
func NewServer(cfg *config.Config, st Store, svc *forecast.Service, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:      cfg,
		store:    st,
		forecast: svc,
		gatherer: gatherer,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler, wrapped in Basic Auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// An empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware protects every path except /health.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="cyclecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		appLog.Info("HTTP server stopped")
		return nil
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/forecast", s.handleForecast)
	s.mux.HandleFunc("POST /api/forecast/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/statistics", s.handleStatistics)
	s.mux.HandleFunc("GET /api/phase", s.handlePhase)
	s.mux.HandleFunc("POST /api/advice", s.handleAdvice)
	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleAddEvent)
	s.mux.HandleFunc("PUT /api/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// forecastResponse wraps a forecast result with the projected cycles.
type forecastResponse struct {
	forecast.Result
	LowConfidence bool             `json:"low_confidence"`
	Upcoming      []model.Forecast `json:"upcoming"`
}

// handleForecast returns the latest forecast.
//
// GET /api/forecast?source=model&cycles=3
//   - source: "model" skips any cached external result
//   - cycles: number of projected cycles (default from config)
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	var res forecast.Result
	var err error
	if q.Get("source") == "model" {
		res, err = s.forecast.Model(ctx)
	} else {
		res, err = s.forecast.Current(ctx)
	}
	if err != nil {
		appLog.Error("api forecast failed", err)
		writeError(w, http.StatusInternalServerError, "failed to compute forecast")
		return
	}
	s.writeForecast(w, res, parseIntDefault(q.Get("cycles"), s.cfg.ProjectedCycles))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.forecast.Refresh(r.Context())
	if err != nil {
		appLog.Error("api refresh failed", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh forecast")
		return
	}
	s.writeForecast(w, res, s.cfg.ProjectedCycles)
}

func (s *Server) writeForecast(w http.ResponseWriter, res forecast.Result, cycles int) {
	upcoming, err := s.forecast.Project(res, cycles)
	if err != nil {
		appLog.Error("api forecast projection failed", err)
		upcoming = []model.Forecast{res.Forecast}
	}
	writeJSON(w, http.StatusOK, forecastResponse{
		Result:        res,
		LowConfidence: res.LowConfidence(),
		Upcoming:      upcoming,
	})
}

type statisticsResponse struct {
	Available bool              `json:"available"`
	Stats     *model.CycleStats `json:"statistics,omitempty"`
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	res, err := s.forecast.Model(r.Context())
	if err != nil {
		appLog.Error("api statistics failed", err)
		writeError(w, http.StatusInternalServerError, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, statisticsResponse{Available: res.Stats != nil, Stats: res.Stats})
}

func (s *Server) handlePhase(w http.ResponseWriter, r *http.Request) {
	res, err := s.forecast.Phase(r.Context())
	if err != nil {
		appLog.Error("api phase failed", err)
		writeError(w, http.StatusInternalServerError, "failed to compute phase")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleAdvice asks the text source for advice.
//
// POST /api/advice?kind=health|symptoms|mood|stats (default health)
func (s *Server) handleAdvice(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("kind")
	if raw == "" {
		raw = string(predictor.AdviceHealth)
	}
	kind, err := predictor.ParseAdviceKind(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	adv, err := s.forecast.Advice(r.Context(), kind)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, adv)
	case errors.Is(err, forecast.ErrNoSource):
		writeError(w, http.StatusServiceUnavailable, "text generation is not enabled")
	default:
		writeError(w, http.StatusBadGateway, "advice request failed")
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context())
	if err != nil {
		appLog.Error("api list events failed", err)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var rec model.Record
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	added, err := s.store.Add(r.Context(), rec)
	if err != nil {
		s.writeStoreError(w, "add", err)
		return
	}
	s.forecast.Invalidate()
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	var rec model.Record
	if err := decodeBody(w, r, &rec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec.ID = r.PathValue("id")
	updated, err := s.store.Update(r.Context(), rec)
	if err != nil {
		s.writeStoreError(w, "update", err)
		return
	}
	s.forecast.Invalidate()
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeStoreError(w, "delete", err)
		return
	}
	s.forecast.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

// handleCalendar serves the projected cycles as an iCalendar feed that a
// calendar app can subscribe to.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	res, err := s.forecast.Current(r.Context())
	if err != nil {
		appLog.Error("calendar feed failed", err)
		http.Error(w, "failed to compute forecast", http.StatusInternalServerError)
		return
	}
	upcoming, err := s.forecast.Project(res, s.cfg.ProjectedCycles)
	if err != nil {
		appLog.Error("calendar projection failed", err)
		upcoming = []model.Forecast{res.Forecast}
	}
	feed := ics.BuildFeed(upcoming, ics.FeedOptions{
		Reminders: ics.ReminderOptions{
			Period:    s.cfg.Reminders.Period,
			Ovulation: s.cfg.Reminders.Ovulation,
			Fertile:   s.cfg.Reminders.Fertile,
			Hour:      s.cfg.Reminders.Hour,
		},
		Stamp: res.ComputedAt,
	})
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(feed))
}

func (s *Server) writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalidRecord):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("api store failure", err, "op", op)
		writeError(w, http.StatusInternalServerError, "failed to "+op+" event")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
