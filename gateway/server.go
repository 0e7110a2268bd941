// Package gateway exposes component data over HTTP and pushes every data
// update to websocket subscribers.
//
// Routes:
//
//	GET  /api/v1/components/{id}/data              cached per-source data
//	POST /api/v1/components/{id}/execute           run the component now
//	PUT  /api/v1/components/{id}/config/{section}  replace one config section
//	GET  /api/v1/stats                             runtime statistics
//	GET  /ws                                       data-update push stream
//	GET  /health                                   aggregated health
//
// A PUT with ?skipExecution=true stores the section without triggering a
// data source re-run.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/c360/semwidgets/bridge"
	"github.com/c360/semwidgets/errors"
	"github.com/c360/semwidgets/eventbus"
	"github.com/c360/semwidgets/health"
	"github.com/c360/semwidgets/metric"
	"github.com/c360/semwidgets/widgetstore"
)

// DataSource is the read side of the data bridge. *bridge.Bridge satisfies it.
type DataSource interface {
	GetComponentData(componentID string) (map[string]any, bool)
	OnDataUpdate(fn bridge.UpdateFunc) (unsubscribe func())
}

// Runner executes a registered component. *flow.Flow satisfies it.
type Runner interface {
	ExecuteDataSource(ctx context.Context, componentID string) (bridge.DataResult, bool)
}

// ConfigEditor applies section updates. *widgetstore.Editor satisfies it.
type ConfigEditor interface {
	UpdateSection(ctx context.Context, componentID, section string,
		newConfig, evContext map[string]any) (*widgetstore.Widget, error)
}

// StatsFunc returns one named entry of the stats document.
type StatsFunc func() any

// Server is the HTTP and websocket gateway.
type Server struct {
	config  Config
	data    DataSource
	runner  Runner
	editor  ConfigEditor
	stats   map[string]StatsFunc
	health  *health.Monitor
	limiter *rate.Limiter
	hub     *hub
	metrics *gatewayMetrics
	logger  *slog.Logger

	unsubscribe func()

	mu     sync.Mutex
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithRunner enables POST execute.
func WithRunner(r Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithEditor enables PUT config.
func WithEditor(e ConfigEditor) Option {
	return func(s *Server) { s.editor = e }
}

// WithStats adds a named entry to GET /api/v1/stats.
func WithStats(name string, fn StatsFunc) Option {
	return func(s *Server) {
		if fn != nil {
			s.stats[name] = fn
		}
	}
}

// WithHealth reports the monitor's aggregate on GET /health. Without it the
// route is a plain liveness check.
func WithHealth(m *health.Monitor) Option {
	return func(s *Server) { s.health = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a gateway and subscribes it to data updates.
func New(cfg Config, data DataSource, registry *metric.MetricsRegistry, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Gateway", "New", "config validation")
	}
	if data == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Gateway", "New", "data source is required")
	}
	m, err := newGatewayMetrics(registry)
	if err != nil {
		return nil, errors.Wrap(err, "Gateway", "New", "register metrics")
	}

	s := &Server{
		config:  cfg,
		data:    data,
		stats:   make(map[string]StatsFunc),
		metrics: m,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cfg.ExecuteRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.ExecuteRate), cfg.ExecuteBurst)
	}
	s.hub = newHub(cfg.ClientBuffer, s.checkOrigin, m, s.logger)
	s.unsubscribe = data.OnDataUpdate(s.hub.broadcast)
	s.stats["websocket"] = func() any { return map[string]int{"clients": s.hub.count()} }
	return s, nil
}

// Handler returns the gateway routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/components/{id}/data", s.route("data", s.handleGetData))
	mux.HandleFunc("POST /api/v1/components/{id}/execute", s.route("execute", s.handleExecute))
	mux.HandleFunc("PUT /api/v1/components/{id}/config/{section}", s.route("config", s.handleUpdateConfig))
	mux.HandleFunc("GET /api/v1/stats", s.route("stats", s.handleStats))
	mux.HandleFunc("GET /ws", s.hub.serveWS)
	mux.HandleFunc("GET /health", s.handleHealth)
	return s.cors(mux)
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Gateway", "Start", "check running state")
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.server = server
	s.mu.Unlock()

	s.logger.Info("gateway listening", "port", s.config.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.WrapFatal(err, "Gateway", "Start", fmt.Sprintf("listen on port %d", s.config.Port))
	}
	return nil
}

// Stop disconnects websocket clients, stops the HTTP server and detaches
// from data updates.
func (s *Server) Stop(ctx context.Context) error {
	s.unsubscribe()
	s.hub.close()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return errors.WrapTransient(err, "Gateway", "Stop", "shutdown HTTP server")
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// route adds a request id, access logging and request metrics.
func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		h(rec, r)

		s.metrics.recordRequest(name, rec.code)
		s.logger.Debug("gateway request",
			"request_id", requestID, "route", name, "method", r.Method,
			"path", r.URL.Path, "status", rec.code, "duration", time.Since(start))
	}
}

func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, ok := s.data.GetComponentData(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no cached data for component %s", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"componentId": id, "data": data})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusNotImplemented, "execution is not enabled")
		return
	}
	if s.limiter != nil && !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "execute rate limit exceeded")
		return
	}
	id := r.PathValue("id")
	ctx, cancel := context.WithTimeout(r.Context(), s.config.ExecuteTimeout)
	defer cancel()

	res, executed := s.runner.ExecuteDataSource(ctx, id)
	switch {
	case executed:
		writeJSON(w, http.StatusOK, res)
	case res.ErrorCode != "":
		writeError(w, http.StatusNotFound, res.Error)
	default:
		writeError(w, http.StatusConflict, fmt.Sprintf("component %s is already executing", id))
	}
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	if s.editor == nil {
		writeError(w, http.StatusNotImplemented, "configuration editing is not enabled")
		return
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxRequestSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxRequestSize {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("request body exceeds maximum size of %d bytes", s.config.MaxRequestSize))
		return
	}
	var section map[string]any
	if err := json.Unmarshal(body, &section); err != nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	var evContext map[string]any
	if skip, _ := strconv.ParseBool(r.URL.Query().Get("skipExecution")); skip {
		evContext = map[string]any{eventbus.ContextSkipExecution: true}
	}

	widget, err := s.editor.UpdateSection(r.Context(), r.PathValue("id"), r.PathValue("section"), section, evContext)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, widget)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]any, len(s.stats))
	for name, fn := range s.stats {
		out[name] = fn()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if !s.config.EnableCORS {
		return true
	}
	return s.originAllowed(r.Header.Get("Origin"))
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (s *Server) cors(next http.Handler) http.Handler {
	if !s.config.EnableCORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if s.originAllowed(origin) {
			if origin == "" {
				origin = "*"
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps classified errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case stderrors.Is(err, errors.ErrNotFound), stderrors.Is(err, errors.ErrNotRegistered):
		return http.StatusNotFound
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if s.health == nil {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	report := s.health.Report("semwidgets")
	code := http.StatusOK
	if report.State == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, report)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg, "status": code})
}
