// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ipvlabs/vendord/internal/auth"
	"github.com/ipvlabs/vendord/internal/config"
	"github.com/ipvlabs/vendord/internal/credits"
	"github.com/ipvlabs/vendord/internal/gateway"
	"github.com/ipvlabs/vendord/internal/health"
	"github.com/ipvlabs/vendord/internal/idgen"
	"github.com/ipvlabs/vendord/internal/license"
	"github.com/ipvlabs/vendord/internal/logging"
	"github.com/ipvlabs/vendord/internal/metrics"
	"github.com/ipvlabs/vendord/internal/notify"
	"github.com/ipvlabs/vendord/internal/ratelimit"
	"github.com/ipvlabs/vendord/internal/realtime"
	"github.com/ipvlabs/vendord/internal/security"
	"github.com/ipvlabs/vendord/internal/subscription"
	"github.com/ipvlabs/vendord/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	licenseStore   license.Store
	licenseService *license.Service
	creditsStore   credits.Store
	creditsService *credits.Service
	gatewayService *gateway.Service
	oracle         credits.SubscriptionOracle
	emitter        *notify.Emitter
	realtimeHub    *realtime.Hub
	resetTimer     *credits.ResetTimer
	cache          *gateway.Cache
	rateLimiter    *ratelimit.Limiter
	healthReg      *health.Registry
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithOracle sets a custom subscription oracle (for testing)
func WithOracle(o credits.SubscriptionOracle) Option {
	return func(s *Server) {
		s.oracle = o
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    logging.New(cfg.LogLevel, cfg.LogFormat),
		healthReg: health.NewRegistry(),
	}

	// Apply options first (may set oracle/logger)
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		licenseStore := license.NewPostgresStore(db)
		if err := licenseStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate license store", "error", err)
		}
		s.licenseStore = licenseStore

		creditsStore := credits.NewPostgresStore(db)
		if err := creditsStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate credits store", "error", err)
		}
		s.creditsStore = creditsStore
	} else {
		s.licenseStore = license.NewMemoryStore()
		s.creditsStore = credits.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Subscription oracle: Stripe when configured, otherwise always-active
	if s.oracle == nil {
		if cfg.StripeSecretKey != "" {
			s.oracle = subscription.NewStripeOracle(cfg.StripeSecretKey, s.logger)
			s.logger.Info("subscription checks enabled via Stripe")
		} else {
			s.oracle = subscription.Static{Answer: true}
			s.logger.Info("subscription checks disabled, all licenses treated as paid")
		}
	}

	// Webhook emitter and realtime hub fan out the same events
	s.emitter = notify.NewEmitter(cfg.WebhookURLs, cfg.WebhookSecret, s.logger)
	s.realtimeHub = realtime.NewHub(s.logger)
	notifier := &fanoutNotifier{targets: []credits.Notifier{s.emitter, s.realtimeHub}}

	s.licenseService = license.NewService(s.licenseStore, s.logger)
	s.creditsService = credits.NewService(s.creditsStore, s.licenseStore, s.oracle, notifier, s.logger)
	s.resetTimer = credits.NewResetTimer(s.creditsService, cfg.ResetCheckInterval, s.logger)

	// Provider gateway
	mode := gateway.RotationMode(cfg.RotationMode)
	transcription := gateway.NewClient(gateway.ClientConfig{
		Name:            "transcription",
		BaseURL:         cfg.TranscriptionBaseURL,
		Keys:            cfg.TranscriptionKeys,
		RotationMode:    mode,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
	}, s.logger)

	descBase := cfg.DescriptionBaseURL
	if descBase == "" {
		descBase = cfg.TranscriptionBaseURL
	}
	descKeys := cfg.DescriptionKeys
	if len(descKeys) == 0 {
		descKeys = cfg.TranscriptionKeys
	}
	description := gateway.NewClient(gateway.ClientConfig{
		Name:            "description",
		BaseURL:         descBase,
		Keys:            descKeys,
		RotationMode:    mode,
		PollInterval:    cfg.PollInterval,
		PollMaxAttempts: cfg.PollMaxAttempts,
	}, s.logger)

	s.cache = gateway.NewCache(cfg.TranscriptCacheTTL)
	s.gatewayService = gateway.NewService(transcription, description, s.cache, s.logger)

	s.registerHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) registerHealthChecks() {
	if s.db != nil {
		s.healthReg.Register("database", func(ctx context.Context) (string, error) {
			return "", s.db.PingContext(ctx)
		})
	} else {
		s.healthReg.Register("storage", func(ctx context.Context) (string, error) {
			return "in-memory", nil
		})
	}

	s.healthReg.Register("providers", func(ctx context.Context) (string, error) {
		if len(s.cfg.TranscriptionKeys) == 0 {
			return "", errors.New("no transcription API keys configured")
		}
		return "", nil
	})
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS: plugin calls come from customer sites, so origins stay open
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// License key extraction must run before the rate limiter so limits
	// bucket per license rather than per IP.
	s.router.Use(auth.Middleware())

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         10,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Admin status page
	s.router.GET("/", s.statusPageHandler)

	licenseHandler := license.NewHandler(s.licenseService, &creditsReporter{s.creditsService})
	creditsHandler := credits.NewHandler(s.creditsService, s.licenseService)
	gatewayHandler := gateway.NewHandler(s.gatewayService, s.licenseService, s.creditsService, s.logger)

	v1 := s.router.Group("/api/v1")

	// WebSocket usage feed
	v1.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// PUBLIC ROUTES (key travels in the request body or query)
	licenseHandler.RegisterRoutes(v1)

	// PROTECTED ROUTES (require a license key header)
	protected := v1.Group("")
	protected.Use(auth.RequireLicense())
	{
		creditsHandler.RegisterRoutes(protected)
		gatewayHandler.RegisterRoutes(protected)
	}

	// ADMIN ROUTES (require the admin key header)
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminKey))
	admin.Use(validation.IDParamMiddleware())
	{
		licenseHandler.RegisterAdminRoutes(admin)
		creditsHandler.RegisterAdminRoutes(admin)
		admin.GET("/stats", s.statsHandler)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())
	code := http.StatusOK
	if !healthy || !s.healthy.Load() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"healthy": healthy,
		"checks":  statuses,
	})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// statsHandler returns operational counters for the admin dashboard.
func (s *Server) statsHandler(c *gin.Context) {
	licenses, err := s.licenseService.List(c.Request.Context(), license.ListFilter{Limit: 10000})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}

	byStatus := map[string]int{}
	for _, lic := range licenses {
		byStatus[string(lic.Status)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"licenses":           len(licenses),
		"licenses_by_status": byStatus,
		"transcript_cache":   s.cache.Len(),
		"realtime":           s.realtimeHub.Stats(),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start monthly reset timer
	go s.resetTimer.Start(runCtx)

	// Start transcript cache sweeper
	go s.cache.StartSweep(runCtx, 10*time.Minute)

	// Collect database pool stats
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, timers, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.resetTimer != nil {
		s.resetTimer.Stop()
		s.logger.Info("reset timer stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers & adapters
// -----------------------------------------------------------------------------

func generateRequestID() string {
	return idgen.Hex(16)
}

// creditsReporter adapts the credits service to the license info endpoint.
type creditsReporter struct {
	svc *credits.Service
}

func (r *creditsReporter) CreditsFor(lic *license.License) interface{} {
	return r.svc.InfoFor(lic)
}

// fanoutNotifier forwards each event to every target.
type fanoutNotifier struct {
	targets []credits.Notifier
}

func (f *fanoutNotifier) Emit(ctx context.Context, event string, payload interface{}) {
	for _, t := range f.targets {
		t.Emit(ctx, event, payload)
	}
}
