// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
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

	"github.com/amoree/amoree/internal/auth"
	"github.com/amoree/amoree/internal/booking"
	"github.com/amoree/amoree/internal/config"
	"github.com/amoree/amoree/internal/dispute"
	"github.com/amoree/amoree/internal/logging"
	"github.com/amoree/amoree/internal/metrics"
	"github.com/amoree/amoree/internal/notify"
	"github.com/amoree/amoree/internal/ratelimit"
	"github.com/amoree/amoree/internal/security"
	"github.com/amoree/amoree/internal/traces"
	"github.com/amoree/amoree/internal/validation"
	"github.com/amoree/amoree/internal/wallet"
)

const maxRequestSize = 1 << 20 // 1MB

// AdminUserID is the reserved user the bootstrap admin key belongs to.
const AdminUserID = "usr_admin"

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg *config.Config

	ledger      *wallet.Ledger
	bookings    *booking.Service
	disputes    *dispute.Service
	notifyStore notify.Store
	authMgr     *auth.Manager

	rateLimiter   *ratelimit.Limiter
	db            *sql.DB // nil if using in-memory
	router        *gin.Engine
	httpSrv       *http.Server
	logger        *slog.Logger
	traceShutdown func(context.Context) error
	cancelRunCtx  context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	var (
		walletStore  wallet.Store
		bookingStore booking.Store
		disputeStore dispute.Store
		authStore    auth.Store
	)

	// Postgres if DATABASE_URL is set, otherwise in-memory.
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

		wpg := wallet.NewPostgresStore(db)
		bpg := booking.NewPostgresStore(db)
		dpg := dispute.NewPostgresStore(db)
		npg := notify.NewPostgresStore(db)
		apg := auth.NewPostgresStore(db)
		for name, m := range map[string]interface {
			Migrate(context.Context) error
		}{
			"wallet": wpg, "booking": bpg, "dispute": dpg, "notify": npg, "auth": apg,
		} {
			if err := m.Migrate(ctx); err != nil {
				return nil, fmt.Errorf("%s migration failed: %w", name, err)
			}
		}
		walletStore, bookingStore, disputeStore, authStore = wpg, bpg, dpg, apg
		s.notifyStore = npg
	} else {
		s.logger.Info("using in-memory storage (set DATABASE_URL for persistence)")
		walletStore = wallet.NewMemoryStore()
		bookingStore = booking.NewMemoryStore()
		disputeStore = dispute.NewMemoryStore()
		s.notifyStore = notify.NewMemoryStore()
		authStore = auth.NewMemoryStore()
	}

	s.ledger = wallet.New(walletStore)
	s.bookings = booking.NewService(bookingStore, s.ledger)
	s.authMgr = auth.NewManager(authStore)
	emitter := notify.NewEmitter(s.notifyStore)
	s.disputes = dispute.NewService(disputeStore, s.bookings, s.ledger, s.authMgr, emitter)

	if err := s.authMgr.EnsureBootstrapAdmin(ctx, cfg.AdminSecret, AdminUserID); err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin key: %w", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// maskDSN hides the password in a connection string for logging.
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

func (s *Server) setupMiddleware() {
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

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(maxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerSecond: float64(s.cfg.RateLimitRPS),
		BurstSize:         2 * s.cfg.RateLimitRPS,
		CleanupInterval:   time.Minute,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
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

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
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

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	bookingHandler := booking.NewHandler(s.bookings)
	disputeHandler := dispute.NewHandler(s.disputes)
	walletHandler := wallet.NewHandler(s.ledger, s.cfg.MinTopup, s.cfg.MaxTopup)
	notifyHandler := notify.NewHandler(s.notifyStore)

	v1 := s.router.Group("/v1")
	v1.Use(auth.Middleware(s.authMgr))

	bookingHandler.RegisterRoutes(v1)

	protected := v1.Group("")
	protected.Use(auth.RequireAuth())
	bookingHandler.RegisterProtectedRoutes(protected)
	disputeHandler.RegisterProtectedRoutes(protected)
	walletHandler.RegisterProtectedRoutes(protected)
	notifyHandler.RegisterProtectedRoutes(protected)

	admin := v1.Group("")
	admin.Use(auth.RequireAuth(), auth.RequireAdmin())
	disputeHandler.RegisterAdminRoutes(admin)
	walletHandler.RegisterAdminRoutes(admin)
	admin.POST("/keys", s.issueKeyHandler)
}

// issueKeyHandler lets an admin issue an API key for a user.
func (s *Server) issueKeyHandler(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
		Name   string `json:"name"`
		Role   string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}
	if !validation.IsValidUserID(req.UserID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid user ID",
		})
		return
	}

	rawKey, key, err := s.authMgr.GenerateKey(c.Request.Context(), req.UserID, req.Name, req.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue key",
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"key":    rawKey, // shown once
		"id":     key.ID,
		"userId": key.UserID,
		"role":   key.Role,
	})
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.traceShutdown = shutdownTraces
	}

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"currency", s.cfg.Currency,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

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

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.traceShutdown != nil {
		if err := s.traceShutdown(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
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

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
