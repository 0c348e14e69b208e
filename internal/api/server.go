// Package api implements the HTTP surface: a synchronous chat endpoint,
// conversation history, usage and health reporting, a live event
// stream, and the Slack Events API webhook.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/nugget/aide/internal/agent"
	"github.com/nugget/aide/internal/buildinfo"
	"github.com/nugget/aide/internal/connwatch"
	"github.com/nugget/aide/internal/events"
	"github.com/nugget/aide/internal/memory"
	"github.com/nugget/aide/internal/prompts"
	"github.com/nugget/aide/internal/usage"
)

// writeJSON encodes v as JSON to w. Encoding errors are logged at
// debug level because the client has usually gone away.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Runner answers one turn synchronously.
type Runner interface {
	Run(ctx context.Context, req *agent.Request) (*agent.Response, error)
}

// UsageReporter summarizes recorded token usage.
type UsageReporter interface {
	Summary(ctx context.Context, start, end time.Time) (*usage.Summary, error)
	SummaryByIdentity(ctx context.Context, start, end time.Time) (map[string]*usage.Summary, error)
}

// HealthReporter reports backend reachability.
type HealthReporter interface {
	Status() []connwatch.Status
}

// Config holds the server's collaborators. Only Turns is required;
// endpoints whose dependency is nil answer 503.
type Config struct {
	Address string
	Port    int

	// AutocertDomain serves HTTPS on :443 with Let's Encrypt
	// certificates for the domain; Port is then ignored.
	AutocertDomain   string
	AutocertCacheDir string

	Turns   Runner
	Store   memory.ConversationStore
	Usage   UsageReporter
	Health  HealthReporter
	Bus     *events.Bus
	Slack   http.Handler
	Logger  *slog.Logger
	Timeout time.Duration
}

// Server is the HTTP API server.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	server   *http.Server
	redirect *http.Server
	nowFunc  func() time.Time
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger, nowFunc: time.Now}
}

// Handler returns the routed handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/conversations", s.handleConversationList)
	mux.HandleFunc("GET /v1/conversations/{identity}", s.handleConversationGet)
	mux.HandleFunc("GET /v1/usage", s.handleUsage)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleRoot)

	if s.cfg.Slack != nil {
		mux.Handle("POST /slack/events", s.cfg.Slack)
	}

	return s.withLogging(mux)
}

// Start serves until Shutdown is called. It returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Chat turns run the model several times.
		WriteTimeout: 5 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	if s.cfg.AutocertDomain != "" {
		return s.startAutocert()
	}

	addr := s.cfg.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.server.Addr = net.JoinHostPort(s.cfg.Address, strconv.Itoa(s.cfg.Port))
	s.logger.Info("starting API server", "address", addr, "port", s.cfg.Port)
	return s.server.ListenAndServe()
}

func (s *Server) startAutocert() error {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(s.cfg.AutocertDomain),
	}
	if s.cfg.AutocertCacheDir != "" {
		m.Cache = autocert.DirCache(s.cfg.AutocertCacheDir)
	}

	s.redirect = &http.Server{
		Addr:              ":80",
		Handler:           m.HTTPHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := s.redirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("ACME challenge listener failed", "error", err)
		}
	}()

	s.server.Addr = ":443"
	s.server.TLSConfig = &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
	}
	s.logger.Info("starting API server with autocert", "domain", s.cfg.AutocertDomain)
	return s.server.ListenAndServeTLS("", "")
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.redirect != nil {
		s.redirect.Shutdown(ctx)
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "aide",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

// healthResponse is the /health body. Status is "degraded" when any
// watched backend is unreachable; the endpoint still answers 200 so
// the process is not restarted over a remote outage.
type healthResponse struct {
	Status   string             `json:"status"`
	Uptime   string             `json:"uptime"`
	Backends []connwatch.Status `json:"backends,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "healthy",
		Uptime: buildinfo.Uptime().Truncate(time.Second).String(),
	}
	if s.cfg.Health != nil {
		resp.Backends = s.cfg.Health.Status()
		for _, b := range resp.Backends {
			if !b.Ready {
				resp.Status = "degraded"
				break
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	// Identity keys conversation history. Required.
	Identity string `json:"identity"`
	Message  string `json:"message"`
	Channel  string `json:"channel,omitempty"`
	Thread   string `json:"thread,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Identity = strings.TrimSpace(req.Identity)
	if req.Identity == "" {
		s.errorResponse(w, http.StatusBadRequest, "identity is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.Channel == "" {
		req.Channel = "api"
	}

	ctx := r.Context()
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	resp, err := s.cfg.Turns.Run(ctx, &agent.Request{
		Identity: req.Identity,
		Channel:  req.Channel,
		Thread:   req.Thread,
		Text:     req.Message,
		Source:   "api",
	})
	if err != nil && !(errors.Is(err, agent.ErrIterationLimit) && resp != nil) {
		s.logger.Error("turn failed", "identity", req.Identity, "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		s.errorResponse(w, code, prompts.FailureNotice)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}
	ids, err := s.cfg.Store.Identities(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if ids == nil {
		ids = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"identities": ids,
		"count":      len(ids),
	}, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "conversation store not configured")
		return
	}

	identity := r.PathValue("identity")
	limit := parseIntParam(r, "limit", 50)
	msgs, err := s.cfg.Store.Recent(r.Context(), identity, limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(msgs) == 0 {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"identity": identity,
		"messages": msgs,
		"count":    len(msgs),
	}, s.logger)
}

// usageResponse is the body of GET /v1/usage.
type usageResponse struct {
	Since      time.Time                 `json:"since"`
	Until      time.Time                 `json:"until"`
	Total      *usage.Summary            `json:"total"`
	ByIdentity map[string]*usage.Summary `json:"by_identity"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Usage == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "usage store not configured")
		return
	}
	hours := parseIntParam(r, "hours", 24)
	end := s.nowFunc()
	start := end.Add(-time.Duration(hours) * time.Hour)

	total, err := s.cfg.Usage.Summary(r.Context(), start, end)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	byID, err := s.cfg.Usage.SummaryByIdentity(r.Context(), start, end)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, usageResponse{Since: start, Until: end, Total: total, ByIdentity: byID}, s.logger)
}

// handleEvents streams bus events as server-sent events until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bus == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := s.cfg.Bus.Subscribe(64)
	defer s.cfg.Bus.Unsubscribe(ch)

	rc := http.NewResponseController(w)
	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e, ok := <-ch:
			if !ok {
				return
			}
			// Streams outlive the server write timeout.
			_ = rc.SetWriteDeadline(time.Now().Add(time.Minute))
			if !s.writeSSE(w, e) {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, e events.Event) bool {
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Debug("failed to marshal SSE event", "error", err)
		return true
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data); err != nil {
		s.logger.Debug("failed to write SSE event", "error", err)
		return false
	}
	return true
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
