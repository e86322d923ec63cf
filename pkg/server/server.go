package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/config"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/security/auth"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/server/middleware"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/health"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/logging"
	"github.com/Protocol-Embedded-Compliance/example-with-policy-cards/pkg/telemetry/tracing"
)

// BuildInfo is reported by /version.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// Server is the HTTP API server.
type Server struct {
	config       *config.ServerConfig
	auditor      Auditor
	telemetry    *telemetry.Telemetry
	build        BuildInfo
	pretty       bool
	defaultLimit int
	maxLimit     int
	log          *slog.Logger

	// keys is nil when authentication is disabled.
	keys    *auth.APIKeyValidator
	limiter *middleware.RateLimiter

	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// Option configures a Server.
type Option func(*Server)

// WithTelemetry wires logging, metrics, tracing and health endpoints. Without
// it the server logs through slog.Default and serves no /metrics or /ready.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(s *Server) { s.telemetry = t }
}

// WithBuildInfo sets the values reported by /version.
func WithBuildInfo(info BuildInfo) Option {
	return func(s *Server) { s.build = info }
}

// WithPrettyJSON indents JSON reports.
func WithPrettyJSON(pretty bool) Option {
	return func(s *Server) { s.pretty = pretty }
}

// WithQueryLimits sets the evidence page size used when limit is omitted and
// the largest page a client may request.
func WithQueryLimits(defaultLimit, maxLimit int) Option {
	return func(s *Server) {
		s.defaultLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// New creates a server for a.
func New(cfg *config.ServerConfig, a Auditor, opts ...Option) *Server {
	s := &Server{
		config:       cfg,
		auditor:      a,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = slog.Default()
	if s.telemetry != nil {
		s.log = s.telemetry.Logger()
	}
	s.log = s.log.With("component", "server")

	if cfg.Auth.Enabled {
		s.keys = auth.NewAPIKeyValidator(nil)
		for _, k := range cfg.Auth.Keys {
			secret := k.Secret()
			if secret == "" {
				s.log.Warn("API key has no secret, skipping", "key_id", k.ID, "key_env", k.KeyEnv)
				continue
			}
			s.keys.Add(&auth.APIKey{ID: k.ID, Key: secret, Scopes: k.Scopes, Disabled: k.Disabled})
		}
		s.log.Info("API key authentication enabled", "keys", s.keys.Len())
	}
	s.limiter = middleware.NewRateLimiter(cfg.RateLimit, clientKey)
	return s
}

// Start listens on the configured address and serves until ctx is cancelled
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		ln.Close()
		return errors.New("server is already running")
	}
	select {
	case <-s.shutdownChan:
		s.mu.Unlock()
		ln.Close()
		return http.ErrServerClosed
	default:
	}
	s.isRunning = true
	s.addr = ln.Addr()
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(s.log.Handler(), slog.LevelWarn),
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting API server", "address", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	case <-s.shutdownChan:
		return nil
	}
}

// Shutdown gracefully stops the server, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		httpServer := s.httpServer
		s.mu.Unlock()
		defer close(s.shutdownChan)

		if !running || httpServer == nil {
			return
		}

		s.log.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())
		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.log.Info("API server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once serving.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}

// Handler returns the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	s.route(mux, "/v1/evaluate", s.api(auth.ScopeEvaluate, s.handleEvaluate))
	s.route(mux, "/v1/report", s.api(auth.ScopeRead, s.handleReport))
	s.route(mux, "/v1/policy", s.api(auth.ScopeRead, s.handlePolicy))
	s.route(mux, "/v1/policy/reload", s.api(auth.ScopeAdmin, s.handleReload))
	s.route(mux, "/v1/evidence", s.api(auth.ScopeRead, s.handleEvidence))
	s.route(mux, "/version", health.VersionHandler(s.build.Version, s.build.Commit, s.build.BuildTime))

	if s.telemetry != nil {
		tcfg := s.telemetry.Config()
		if tcfg.Health.Enabled {
			s.route(mux, tcfg.Health.LivenessPath, s.telemetry.Health().LivenessHandler())
			s.route(mux, tcfg.Health.ReadinessPath, s.telemetry.Health().ReadinessHandler())
		}
		if tcfg.Metrics.Enabled {
			s.route(mux, tcfg.Metrics.Path, s.telemetry.Metrics().Handler())
		}
	} else {
		s.route(mux, "/health", health.New(0).LivenessHandler())
	}

	var handler http.Handler = mux
	handler = middleware.BodyLimit(s.config.MaxBodyBytes)(handler)
	handler = middleware.CORS(s.config.CORS)(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(s.log)(handler)
	return handler
}

// route registers h on pattern with per-route logging, metrics and tracing.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.Handler) {
	var obs middleware.RequestObserver
	if s.telemetry != nil && s.telemetry.Config().Metrics.Enabled {
		obs = s.telemetry.Metrics()
	}
	h = middleware.Instrument(pattern, s.log, obs)(h)
	h = tracing.HTTPMiddleware(pattern, h)
	mux.Handle(pattern, h)
}

// api guards a /v1 handler with authentication and rate limiting.
func (s *Server) api(scope string, h http.HandlerFunc) http.Handler {
	return s.authorize(scope, s.limiter.Middleware(h))
}

// clientKey charges authenticated requests to their key and anonymous ones
// to the remote host.
func clientKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return "key:" + p.KeyID
	}
	return "addr:" + middleware.RemoteHost(r)
}

// authorize requires a key holding scope when authentication is enabled.
// Preflight requests pass through so CORS can answer them.
func (s *Server) authorize(scope string, h http.Handler) http.Handler {
	if s.keys == nil {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			h.ServeHTTP(w, r)
			return
		}
		p, err := s.keys.Authenticate(r, scope)
		switch {
		case errors.Is(err, auth.ErrForbidden):
			s.logger(r).Warn("request forbidden", "key_id", p.KeyID, "scope", scope)
			writeError(w, r, http.StatusForbidden, CodeForbidden, "key lacks the "+scope+" scope")
			return
		case err != nil:
			s.logger(r).Debug("request unauthorized", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="policycard"`)
			writeError(w, r, http.StatusUnauthorized, CodeUnauthorized, "a valid API key is required")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = logging.WithAttrs(ctx, "key_id", p.KeyID)
		h.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) logger(r *http.Request) *slog.Logger {
	return logging.FromContext(r.Context(), s.log)
}
