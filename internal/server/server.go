// Package server exposes the detection engine and candidate store over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/subwatch/subwatch/internal/engine"
	"github.com/subwatch/subwatch/internal/store"
)

// Server wires the engine and store behind an echo router.
type Server struct {
	echo   *echo.Echo
	engine *engine.Engine
	store  *store.Store
	log    zerolog.Logger
	addr   string
}

// New builds the server and registers all routes.
func New(eng *engine.Engine, st *store.Store, log zerolog.Logger, addr string) (*Server, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			log.Info().
				Str("method", c.Request().Method).
				Str("uri", c.Request().RequestURI).
				Int("status", c.Response().Status).
				Dur("duration", time.Since(start)).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("http request")
			return err
		}
	})

	s := &Server{
		echo:   e,
		engine: eng,
		store:  st,
		log:    log,
		addr:   addr,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/detect", s.handleDetect)
	v1.GET("/candidates", s.handleListCandidates)
	v1.POST("/candidates", s.handleCreateCandidate)
	v1.GET("/candidates/:id", s.handleGetCandidate)
	v1.PATCH("/candidates/:id", s.handleUpdateCandidate)
	v1.POST("/candidates/:id/confirm", s.handleConfirm)
	v1.POST("/candidates/:id/reject", s.handleReject)
	v1.GET("/candidates/:id/transactions", s.handleCandidateTransactions)
	v1.GET("/summary", s.handleSummary)
}

// DetectRequest is the body for POST /api/v1/detect.
type DetectRequest struct {
	Transactions []engine.RawRecord `json:"transactions"`
	Options      DetectOptions      `json:"options"`
}

// DetectOptions mirrors engine.Options on the wire.
type DetectOptions struct {
	MinOccurrences          int      `json:"minOccurrences"`
	AmountVarianceTolerance float64  `json:"amountVarianceTolerance"`
	AmountVarianceFixed     float64  `json:"amountVarianceFixed"`
	MaxVarianceThreshold    *float64 `json:"maxVarianceThreshold"`
}

// DetectResponse is the body for POST /api/v1/detect.
type DetectResponse struct {
	Candidates []store.StoredCandidate `json:"candidates"`
	Count      int                     `json:"count"`
}

// CreateCandidateRequest is the body for POST /api/v1/candidates.
type CreateCandidateRequest struct {
	Merchant               string           `json:"merchant"`
	CategoryID             string           `json:"categoryId"`
	EstimatedMonthlyAmount float64          `json:"estimatedMonthlyAmount"`
	Frequency              engine.Frequency `json:"frequency"`
	NextExpectedDate       time.Time        `json:"nextExpectedDate"`
}

// CandidatesResponse is the body for GET /api/v1/candidates.
type CandidatesResponse struct {
	Candidates []store.StoredCandidate `json:"candidates"`
	Count      int                     `json:"count"`
}

// TransactionsResponse is the body for GET /api/v1/candidates/:id/transactions.
type TransactionsResponse struct {
	Transactions []wireTransaction `json:"transactions"`
	Count        int               `json:"count"`
}

type wireTransaction struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Amount      float64   `json:"amount"`
	Direction   string    `json:"direction"`
	Merchant    string    `json:"merchant"`
	Description string    `json:"description,omitempty"`
	MerchantKey string    `json:"merchantKey"`
	Category    string    `json:"category,omitempty"`
}

// HealthResponse is the body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleDetect(c echo.Context) error {
	var req DetectRequest
	if err := c.Bind(&req); err != nil {
		s.log.Warn().Err(err).Msg("invalid detect request")
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Transactions) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "transactions field is required")
	}

	opts := engine.Options{
		MinOccurrences:          req.Options.MinOccurrences,
		AmountVarianceTolerance: req.Options.AmountVarianceTolerance,
		AmountVarianceFixed:     req.Options.AmountVarianceFixed,
		MaxVarianceThreshold:    req.Options.MaxVarianceThreshold,
	}

	ctx := c.Request().Context()

	// Persist the normalized rows under the same fallback ids the engine
	// assigns, so the candidate links resolve against the store.
	txs := make([]engine.Transaction, 0, len(req.Transactions))
	for i, raw := range req.Transactions {
		tx := engine.Normalize(raw, fmt.Sprintf("txn-%d", i+1))
		if tx.Date.IsZero() {
			continue
		}
		txs = append(txs, tx)
	}
	if err := s.store.SaveTransactions(ctx, txs); err != nil {
		s.log.Error().Err(err).Msg("save transactions")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store transactions")
	}

	candidates := s.engine.Detect(req.Transactions, opts)
	stored, err := s.store.StoreCandidates(ctx, candidates)
	if err != nil {
		s.log.Error().Err(err).Msg("store candidates")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store candidates")
	}

	return c.JSON(http.StatusOK, DetectResponse{Candidates: stored, Count: len(stored)})
}

func (s *Server) handleListCandidates(c echo.Context) error {
	status := c.QueryParam("status")
	switch status {
	case "", store.StatusPending, store.StatusConfirmed, store.StatusRejected:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", status))
	}

	candidates, err := s.store.CandidatesByStatus(c.Request().Context(), status)
	if err != nil {
		s.log.Error().Err(err).Msg("list candidates")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}
	if candidates == nil {
		candidates = []store.StoredCandidate{}
	}
	return c.JSON(http.StatusOK, CandidatesResponse{Candidates: candidates, Count: len(candidates)})
}

func (s *Server) handleGetCandidate(c echo.Context) error {
	sc, err := s.store.CandidateByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.candidateError(err, "get candidate")
	}
	return c.JSON(http.StatusOK, sc)
}

func (s *Server) handleCreateCandidate(c echo.Context) error {
	var req CreateCandidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Merchant == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "merchant field is required")
	}
	if req.EstimatedMonthlyAmount <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "estimatedMonthlyAmount must be positive")
	}

	candidate := engine.Candidate{
		MerchantKey:            engine.ExtractMerchantKey(req.Merchant),
		Merchant:               req.Merchant,
		CategoryID:             req.CategoryID,
		EstimatedMonthlyAmount: req.EstimatedMonthlyAmount,
		Frequency:              req.Frequency,
		NextExpectedDate:       req.NextExpectedDate,
		ConfidenceScore:        1.0,
		Reason:                 "added manually",
	}
	sc, err := s.store.CreateManualCandidate(c.Request().Context(), candidate)
	if err != nil {
		s.log.Error().Err(err).Msg("create candidate")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create candidate")
	}
	return c.JSON(http.StatusCreated, sc)
}

func (s *Server) handleUpdateCandidate(c echo.Context) error {
	var upd store.CandidateUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	sc, err := s.store.UpdateCandidate(c.Request().Context(), c.Param("id"), upd)
	if err != nil {
		return s.candidateError(err, "update candidate")
	}
	return c.JSON(http.StatusOK, sc)
}

func (s *Server) handleConfirm(c echo.Context) error {
	return s.setStatus(c, store.StatusConfirmed)
}

func (s *Server) handleReject(c echo.Context) error {
	return s.setStatus(c, store.StatusRejected)
}

func (s *Server) setStatus(c echo.Context, status string) error {
	id := c.Param("id")
	ctx := c.Request().Context()
	if err := s.store.SetStatus(ctx, id, status); err != nil {
		return s.candidateError(err, "set status")
	}
	sc, err := s.store.CandidateByID(ctx, id)
	if err != nil {
		return s.candidateError(err, "set status")
	}
	return c.JSON(http.StatusOK, sc)
}

func (s *Server) handleCandidateTransactions(c echo.Context) error {
	txs, err := s.store.TransactionsForCandidate(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.candidateError(err, "candidate transactions")
	}

	wire := make([]wireTransaction, len(txs))
	for i, tx := range txs {
		wire[i] = wireTransaction{
			ID:          tx.ID,
			Date:        tx.Date,
			Amount:      tx.Amount,
			Direction:   string(tx.Direction),
			Merchant:    tx.Merchant,
			Description: tx.Description,
			MerchantKey: tx.MerchantKey,
			Category:    tx.Category,
		}
	}
	return c.JSON(http.StatusOK, TransactionsResponse{Transactions: wire, Count: len(wire)})
}

func (s *Server) handleSummary(c echo.Context) error {
	sum, err := s.store.Summary(c.Request().Context())
	if err != nil {
		s.log.Error().Err(err).Msg("summary")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to build summary")
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) candidateError(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "candidate not found")
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	s.log.Error().Err(err).Msg(op)
	return echo.NewHTTPError(http.StatusInternalServerError, "storage failure")
}

// Start begins serving. Blocks until shutdown or failure.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.addr).Msg("starting http server")
	return s.echo.Start(s.addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down http server")
	return s.echo.Shutdown(ctx)
}
