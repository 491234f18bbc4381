package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"etf-reversion-bot/internal/bot"
	"etf-reversion-bot/internal/cache"
	"etf-reversion-bot/internal/confidence"
	"etf-reversion-bot/internal/drawdown"
	"etf-reversion-bot/internal/risk"
	"etf-reversion-bot/internal/signal"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	if !s.authEnabled {
		errorResponse(c, http.StatusServiceUnavailable, "authentication is disabled")
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "username and password are required")
		return
	}

	token, err := s.authService.Login(req.Username, req.Password)
	if err != nil {
		errorResponse(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_in": s.authService.TokenDuration(),
	})
}

func (s *Server) handleListSignals(c *gin.Context) {
	signals := s.engine.Signals()
	sort.Slice(signals, func(i, j int) bool {
		return signals[i].LeveragedTicker < signals[j].LeveragedTicker
	})
	successResponse(c, signals)
}

func (s *Server) handleGetSignal(c *gin.Context) {
	ticker := c.Param("ticker")
	sig, err := s.engine.Signal(ticker)
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	transitions, err := s.store.ListTransitions(c.Request.Context(), sig.LeveragedTicker, 50)
	if err != nil {
		s.log.Error("transition lookup failed", "ticker", ticker, "error", err.Error())
		errorResponse(c, http.StatusInternalServerError, "failed to load transitions")
		return
	}

	successResponse(c, gin.H{
		"signal":      sig,
		"transitions": transitions,
	})
}

type executionRequest struct {
	Price float64 `json:"price" binding:"required,gt=0"`
}

func (s *Server) handleEnter(c *gin.Context) {
	ticker := c.Param("ticker")
	var req executionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "a positive price is required")
		return
	}

	eval, err := s.engine.Enter(c.Request.Context(), ticker, req.Price)
	switch {
	case errors.Is(err, bot.ErrUnknownTicker):
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, signal.ErrInvalidTransition):
		errorResponse(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	// A veto is a structured outcome, not an error.
	c.JSON(http.StatusOK, gin.H{
		"success":    eval.Veto != nil && eval.Veto.Approved,
		"evaluation": eval,
	})
}

func (s *Server) handleClose(c *gin.Context) {
	ticker := c.Param("ticker")
	var req executionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "a positive price is required")
		return
	}

	outcome, err := s.engine.Close(c.Request.Context(), ticker, req.Price)
	switch {
	case errors.Is(err, bot.ErrUnknownTicker):
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, signal.ErrInvalidTransition):
		errorResponse(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, outcome)
}

func (s *Server) handleListEvaluations(c *gin.Context) {
	evals := s.engine.Evaluations()
	sort.Slice(evals, func(i, j int) bool {
		return evals[i].Ticker < evals[j].Ticker
	})
	successResponse(c, evals)
}

func (s *Server) handleGetEvaluation(c *gin.Context) {
	ticker := c.Param("ticker")
	eval, ok := s.engine.Evaluation(ticker)
	if !ok {
		errorResponse(c, http.StatusNotFound, "no active evaluation for "+ticker)
		return
	}
	successResponse(c, eval)
}

func (s *Server) handlePortfolio(c *gin.Context) {
	successResponse(c, gin.H{
		"snapshot":    s.tracker.Snapshot(),
		"allocations": s.tracker.Allocations(),
	})
}

func (s *Server) handleExposure(c *gin.Context) {
	report := risk.BuildReport(s.tracker.RiskState(), s.limits)
	successResponse(c, report)
}

func (s *Server) handleWeights(c *gin.Context) {
	weights, err := s.store.ListWeights(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load factor weights")
		return
	}
	successResponse(c, weights)
}

func (s *Server) handleOutcomes(c *gin.Context) {
	outcomes, err := s.store.ListOutcomes(c.Request.Context())
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "failed to load trade outcomes")
		return
	}
	successResponse(c, outcomes)
}

func (s *Server) handleGetFactors(c *gin.Context) {
	successResponse(c, s.engine.FactorSnapshot())
}

func (s *Server) handleSetFactors(c *gin.Context) {
	var snap confidence.Snapshot
	if err := c.ShouldBindJSON(&snap); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid factor snapshot")
		return
	}
	if err := s.engine.SetFactorSnapshot(c.Request.Context(), snap); err != nil {
		s.log.Warn("factor snapshot cache write failed", "error", err.Error())
	}
	successResponse(c, gin.H{"accepted": true})
}

func (s *Server) handleLastCycle(c *gin.Context) {
	report := s.engine.LastCycle()
	if report == nil {
		errorResponse(c, http.StatusNotFound, "no refresh cycle has run yet")
		return
	}
	successResponse(c, report)
}

func (s *Server) handleRefresh(c *gin.Context) {
	report, err := s.engine.RefreshCycle(c.Request.Context())
	switch {
	case errors.Is(err, cache.ErrLockHeld):
		errorResponse(c, http.StatusConflict, "a refresh cycle is already running")
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, report)
}

func (s *Server) handleRecoveryStats(c *gin.Context) {
	ticker := c.Param("ticker")
	stats, err := s.engine.RecoveryStats(c.Request.Context(), ticker)
	switch {
	case errors.Is(err, bot.ErrUnknownTicker):
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, drawdown.ErrInsufficientHistory):
		errorResponse(c, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, stats)
}
