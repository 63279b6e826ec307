package transport

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/martinemde/chatagent/metrics"
)

// maxRequestBody bounds JSON request bodies.
const maxRequestBody = 1 << 20

// GatewayConfig configures the HTTP gateway.
type GatewayConfig struct {
	Addr      string
	APIToken  string  // bearer token required on /api routes other than health; empty disables auth
	RateLimit float64 // chat requests per second per user; zero disables limiting
	RateBurst int
}

// HTTPGateway exposes the agent over a small JSON API.
type HTTPGateway struct {
	agent    Agent
	commands *Commands
	config   GatewayConfig
	limiter  *userLimiter
	metrics  *metrics.Metrics
	logger   *slog.Logger

	httpServer *http.Server
}

// GatewayOption configures an HTTPGateway.
type GatewayOption func(*HTTPGateway)

// WithGatewayMetrics records request metrics and serves /metrics.
func WithGatewayMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *HTTPGateway) {
		g.metrics = m
	}
}

// WithGatewayLogger sets the gateway's logger.
func WithGatewayLogger(logger *slog.Logger) GatewayOption {
	return func(g *HTTPGateway) {
		g.logger = logger
	}
}

// NewHTTPGateway creates a gateway. Call Start to listen.
func NewHTTPGateway(agent Agent, commands *Commands, cfg GatewayConfig, opts ...GatewayOption) *HTTPGateway {
	g := &HTTPGateway{
		agent:    agent,
		commands: commands,
		config:   cfg,
		limiter:  newUserLimiter(cfg.RateLimit, cfg.RateBurst),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.commands == nil {
		g.commands = NewCommands(agent, nil)
	}
	return g
}

// Handler builds the router.
func (g *HTTPGateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(g.loggingMiddleware)
	if g.metrics != nil {
		r.Use(g.metricsMiddleware)
	}

	r.Get("/api/health", g.handleHealth)
	if g.metrics != nil {
		r.Get("/metrics", g.metrics.Handler().ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(g.authMiddleware)
		r.Post("/api/chat", g.handleChat)
		r.Post("/api/clear", g.handleClear)
		r.Get("/api/stats", g.handleStats)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (g *HTTPGateway) Start(ctx context.Context) error {
	g.httpServer = &http.Server{
		Addr:              g.config.Addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP gateway listening", "addr", g.config.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP gateway failed: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return g.Stop(shutdownCtx)
}

// Stop shuts the server down.
func (g *HTTPGateway) Stop(ctx context.Context) error {
	if g.httpServer == nil {
		return nil
	}
	g.logger.Info("Shutting down HTTP gateway...")
	if err := g.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP gateway: %w", err)
	}
	g.logger.Info("HTTP gateway stopped")
	return nil
}

type chatRequest struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

type chatResponse struct {
	Response string   `json:"response"`
	Chunks   []string `json:"chunks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *HTTPGateway) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id and message are required"})
		return
	}
	if !g.limiter.Allow(req.UserID) {
		g.logger.Warn("rate limit exceeded", "user_id", req.UserID)
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: RateLimitReply})
		return
	}

	reply, ok := g.commands.Handle(req.UserID, req.Name, req.Message)
	if !ok {
		reply = g.agent.ProcessMessage(r.Context(), req.UserID, req.Message)
	}
	writeJSON(w, http.StatusOK, chatResponse{
		Response: reply,
		Chunks:   SplitMessage(reply, MaxMessageLength),
	})
}

func (g *HTTPGateway) handleClear(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": g.commands.Clear(req.UserID)})
}

func (g *HTTPGateway) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, g.agent.Stats())
}

func (g *HTTPGateway) authMiddleware(next http.Handler) http.Handler {
	if g.config.APIToken == "" {
		return next
	}
	want := []byte(g.config.APIToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), want) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="chatagent"`)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *HTTPGateway) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

func (g *HTTPGateway) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		g.metrics.ObserveHTTPRequest(r.Method, getRoutePattern(r), wrapped.statusCode, time.Since(start), wrapped.size)
	})
}

// getRoutePattern returns the matched chi pattern, or the raw path outside
// a chi router.
func getRoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
