package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/scriptgate/internal/api/http"
	"github.com/GriffinCanCode/scriptgate/internal/api/middleware"
	"github.com/GriffinCanCode/scriptgate/internal/api/ws"
	"github.com/GriffinCanCode/scriptgate/internal/broker"
	"github.com/GriffinCanCode/scriptgate/internal/domain/metadata"
	"github.com/GriffinCanCode/scriptgate/internal/domain/policy"
	"github.com/GriffinCanCode/scriptgate/internal/domain/scripts"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/config"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/logging"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/scriptgate/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/scriptgate/internal/providers/cookies"
	"github.com/GriffinCanCode/scriptgate/internal/providers/deps"
	"github.com/GriffinCanCode/scriptgate/internal/providers/download"
	httpx "github.com/GriffinCanCode/scriptgate/internal/providers/http"
	"github.com/GriffinCanCode/scriptgate/internal/providers/notify"
	"github.com/GriffinCanCode/scriptgate/internal/providers/storage"
)

const (
	shutdownTimeout   = 10 * time.Second
	notificationLimit = 100
	minTokenLength    = 16
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	manager    *scripts.Manager
	broker     *broker.Broker
	ws         *ws.Handler
	tracer     *tracing.Tracer
	logger     *logging.Logger
	config     *config.Config
	metrics    *monitoring.Metrics
	token      string
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development)
	}
	log := logger.Logger

	log.Info("Initializing scriptgate",
		zap.String("addr", cfg.Addr()),
		zap.Strings("locales", cfg.Locale.Preferred),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New(broker.HandlerName, log)

	engine, err := newPolicyEngine(cfg.Policy)
	if err != nil {
		return nil, err
	}

	store := storage.NewMemory()
	if cfg.Storage.GrantsFile != "" {
		if store, err = store.WithGrantFile(storage.NewGrantFile(cfg.Storage.GrantsFile)); err != nil {
			return nil, fmt.Errorf("failed to load grants: %w", err)
		}
		log.Info("Loaded permission grants", zap.String("path", cfg.Storage.GrantsFile))
	}

	fetcher, err := deps.NewFetcher(deps.Config{
		TTL:       cfg.Dependencies.TTL,
		Retries:   cfg.Dependencies.Retries,
		Timeout:   cfg.Dependencies.Timeout,
		UserAgent: cfg.Broker.UserAgent,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create dependency fetcher: %w", err)
	}
	guard := func(host string, addr netip.Addr) error {
		return engine.CheckAddress(host, addr).Err()
	}
	fetcher.WithMetrics(metrics).
		WithTransport(httpx.NewGuardedTransport(guard, nil, cfg.Dependencies.Timeout))

	parser := metadata.NewParser(metadata.StaticLocales(cfg.Locale.Preferred))
	manager := scripts.NewManager(store, parser, log).
		WithDependencies(fetcher).
		WithRegistrar(scripts.NewMemoryRegistrar()).
		WithMetrics(metrics)

	client := httpx.NewClient(httpx.Config{
		UserAgent:    cfg.Broker.UserAgent,
		RateLimit:    cfg.Broker.FetchRateLimit,
		MaxRedirects: cfg.Broker.MaxRedirects,
		AddressCheck: guard,
	})
	notifier := notify.NewNotifier(log, notificationLimit)

	denials := policy.DenialHandlers{&policy.LogDenialHandler{Logger: log}}
	if cfg.Broker.NotifyDenials {
		denials = append(denials, &broker.NotifyDenials{Notifier: notifier})
	}

	b := broker.New(engine, manager, store, broker.Config{
		FetchTimeout: cfg.Broker.FetchTimeout,
		MaxBodyBytes: cfg.Broker.MaxBodyBytes,
	}, log,
		broker.WithValues(store),
		broker.WithCookies(cookies.NewStore()),
		broker.WithFetcher(client),
		broker.WithDownloader(download.NewManager(cfg.Storage.DownloadDir, client, log)),
		broker.WithNotifier(notifier),
		broker.WithDenialHandler(denials),
		broker.WithMetrics(metrics),
	)

	wsHandler := ws.NewHandler(b, log).
		WithMetrics(metrics).
		WithTracer(tracer).
		WithOrigins(cfg.Server.AllowedOrigins)

	handlers := apihttp.NewHandlers(manager, b, store, log).
		WithSessions(wsHandler.Sessions()).
		WithNotifications(notifier).
		WithUpdates(fetcher).
		WithBreaker(fetcher.Breaker()).
		WithMetrics(metrics)

	token, err := apiToken(cfg.Server, log)
	if err != nil {
		return nil, err
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		log.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}
	if cfg.Server.MaxBodyBytes > 0 {
		router.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))
	}

	handlers.RegisterPublic(router)
	handlers.RegisterManagement(router.Group("/", middleware.RequireToken(token)))
	router.GET("/stream", wsHandler.HandleConnection)

	s := &Server{
		router:  router,
		manager: manager,
		broker:  b,
		ws:      wsHandler,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		token:   token,
	}

	if cfg.Storage.ScriptsDir != "" {
		if err := s.loadScripts(context.Background()); err != nil {
			return nil, err
		}
	}

	log.Info("Server initialized successfully")
	return s, nil
}

// apiToken returns the configured management API token, or the one kept in
// the token file, creating that file on first start.
func apiToken(cfg config.ServerConfig, log *zap.Logger) (string, error) {
	if cfg.APIToken != "" {
		return cfg.APIToken, nil
	}
	if cfg.APITokenFile == "" {
		return "", errors.New("no API token or API token file configured")
	}

	data, err := os.ReadFile(cfg.APITokenFile)
	switch {
	case err == nil:
		token := strings.TrimSpace(string(data))
		if len(token) < minTokenLength {
			return "", fmt.Errorf("API token in %s is shorter than %d characters", cfg.APITokenFile, minTokenLength)
		}
		return token, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("failed to read API token: %w", err)
	}

	token := strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
	if dir := filepath.Dir(cfg.APITokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("failed to create API token directory: %w", err)
		}
	}
	if err := os.WriteFile(cfg.APITokenFile, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("failed to write API token: %w", err)
	}
	log.Info("Generated management API token", zap.String("path", cfg.APITokenFile))
	return token, nil
}

func newPolicyEngine(cfg config.PolicyConfig) (*policy.Engine, error) {
	if cfg.BaselineFile == "" {
		return policy.NewEngine()
	}
	baseline, err := policy.LoadBaseline(cfg.BaselineFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy baseline: %w", err)
	}
	return policy.NewEngine(policy.WithBaseline(baseline))
}

func (s *Server) loadScripts(ctx context.Context) error {
	dir := s.config.Storage.ScriptsDir
	result, err := s.manager.LoadDirectory(ctx, dir, s.config.Storage.ScriptsGlob)
	if err != nil {
		return fmt.Errorf("failed to load scripts from %s: %w", dir, err)
	}
	s.logger.Info("Loaded scripts",
		zap.String("dir", dir),
		zap.Int("installed", len(result.Installed)),
		zap.Int("failed", len(result.Failed)),
	)
	for path, reason := range result.Failed {
		s.logger.Warn("Skipped script", zap.String("path", path), zap.String("reason", reason))
	}
	return nil
}

// APIToken returns the token management requests must present.
func (s *Server) APIToken() string {
	return s.token
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until Shutdown is called or the listener fails.
func (s *Server) Run() error {
	addr := s.config.Addr()
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var err error
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
			err = fmt.Errorf("failed to shut down HTTP server: %w", err)
		}
	}

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.logger.Info("Closing channels",
		zap.Int("count", s.ws.Sessions().Len()),
		zap.Int("pending", s.broker.Pending()),
	)
	s.ws.Sessions().CloseAll()

	s.tracer.Close()
	s.logger.Sync()
	return err
}
