// Package api exposes the engine over HTTP: signal and portfolio state,
// manual entry/close execution, factor snapshot ingestion, and a WebSocket
// event stream.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"etf-reversion-bot/config"
	"etf-reversion-bot/internal/auth"
	"etf-reversion-bot/internal/bot"
	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/database"
	"etf-reversion-bot/internal/drawdown"
	"etf-reversion-bot/internal/events"
	"etf-reversion-bot/internal/learning"
	"etf-reversion-bot/internal/logging"
	"etf-reversion-bot/internal/portfolio"
	"etf-reversion-bot/internal/risk"
	"etf-reversion-bot/internal/signal"
)

// RateLimiter provides simple in-memory rate limiting per endpoint.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Engine is what the API needs from the decision engine.
type Engine interface {
	Signals() []signal.Signal
	Signal(ticker string) (signal.Signal, error)
	Evaluations() []*bot.Evaluation
	Evaluation(ticker string) (*bot.Evaluation, bool)
	Enter(ctx context.Context, ticker string, price float64) (*bot.Evaluation, error)
	Close(ctx context.Context, ticker string, price float64) (*learning.TradeOutcome, error)
	RefreshCycle(ctx context.Context) (*bot.CycleReport, error)
	LastCycle() *bot.CycleReport
	SetFactorSnapshot(ctx context.Context, snap confidence.Snapshot) error
	FactorSnapshot() confidence.Snapshot
	RecoveryStats(ctx context.Context, ticker string) (drawdown.RecoveryStats, error)
}

// Portfolio is what the API needs from the position tracker.
type Portfolio interface {
	Snapshot() portfolio.Snapshot
	Allocations() []portfolio.Allocation
	RiskState() risk.PortfolioState
}

// Store is the read-only persistence surface the API serves directly.
type Store interface {
	HealthCheck(ctx context.Context) error
	ListTransitions(ctx context.Context, ticker string, limit int) ([]signal.Transition, error)
	ListOutcomes(ctx context.Context) ([]learning.TradeOutcome, error)
	ListWeights(ctx context.Context) ([]learning.FactorWeight, error)
}

var _ Engine = (*bot.Engine)(nil)
var _ Store = (*database.Repository)(nil)

// Server is the HTTP API server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	engine      Engine
	tracker     Portfolio
	store       Store
	bus         *events.EventBus
	authService *auth.Service
	authEnabled bool
	limits      risk.Limits
	cfg         config.ServerConfig
	rateLimiter *RateLimiter
	hub         *WSHub
	log         *logging.Logger
}

// Deps bundles the server's collaborators.
type Deps struct {
	Config      *config.Config
	Engine      Engine
	Tracker     Portfolio
	Store       Store
	Bus         *events.EventBus
	AuthService *auth.Service // nil when auth is disabled
}

func NewServer(d Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitOrigins(d.Config.ServerConfig.AllowedOrigins)
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	authEnabled := d.Config.AuthConfig.Enabled && d.AuthService != nil

	s := &Server{
		router:      router,
		engine:      d.Engine,
		tracker:     d.Tracker,
		store:       d.Store,
		bus:         d.Bus,
		authService: d.AuthService,
		authEnabled: authEnabled,
		limits:      risk.LimitsFromConfig(d.Config.RiskConfig),
		cfg:         d.Config.ServerConfig,
		// Refresh and recovery endpoints fan out to the market data
		// provider; keep them well under Yahoo's tolerance.
		rateLimiter: NewRateLimiter(10, time.Minute),
		hub:         NewWSHub(),
		log:         logging.Default().WithComponent("api"),
	}

	s.setupRoutes()
	s.hub.Start(d.Bus)
	return s
}

func splitOrigins(origins string) []string {
	if origins == "" {
		return []string{"http://localhost:5173"}
	}
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// rateLimitMiddleware limits requests per endpoint path.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		if !s.rateLimiter.Allow(path) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
				"path":  path,
			})
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	s.router.POST("/api/auth/login", s.handleLogin)
	s.router.GET("/api/auth/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"auth_enabled": s.authEnabled})
	})

	api := s.router.Group("/api")
	if s.authEnabled {
		api.Use(auth.Middleware(s.authService))
	}

	{
		api.GET("/signals", s.handleListSignals)
		api.GET("/signals/:ticker", s.handleGetSignal)
		api.POST("/signals/:ticker/enter", s.handleEnter)
		api.POST("/signals/:ticker/close", s.handleClose)

		api.GET("/evaluations", s.handleListEvaluations)
		api.GET("/evaluations/:ticker", s.handleGetEvaluation)

		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/exposure", s.handleExposure)

		api.GET("/weights", s.handleWeights)
		api.GET("/outcomes", s.handleOutcomes)

		api.GET("/factors", s.handleGetFactors)
		api.POST("/factors", s.handleSetFactors)

		api.GET("/cycle", s.handleLastCycle)

		limited := api.Group("")
		limited.Use(s.rateLimitMiddleware())
		{
			limited.POST("/refresh", s.handleRefresh)
			limited.GET("/recovery/:ticker", s.handleRecoveryStats)
		}
	}

	s.router.GET("/ws", s.handleWebSocket)
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
	})
}

func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
