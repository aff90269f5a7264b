// Package httpapi serves the query API over the stored pipeline run.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/releasepulse/internal/store"
)

// Server provides HTTP endpoints over the latest pipeline run.
type Server struct {
	echo    *echo.Echo
	store   *store.Store
	logger  *zap.Logger
	metrics *Metrics
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(st *store.Store, logger *zap.Logger, cfg *Config) (*Server, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		store:   st,
		logger:  logger,
		metrics: NewMetrics(logger),
		config:  cfg,
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			s.metrics.Record(c.Request().Context(), c.Request().Method, c.Path(), c.Response().Status, duration)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/backlog", s.handleBacklog)
	v1.GET("/themes", s.handleThemes)
	v1.GET("/themes/persistent", s.handlePersistent)
	v1.GET("/themes/:id/signal", s.handleThemeSignal)
	v1.GET("/themes/:id/reviews", s.handleThemeReviews)
	v1.GET("/releases/:version/regressions", s.handleRegressions)
	v1.GET("/releases/:version/summary", s.handleReleaseSummary)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// BacklogItem is one entry of GET /api/v1/backlog.
type BacklogItem struct {
	Rank         int     `json:"rank"`
	Release      string  `json:"release"`
	ThemeID      string  `json:"theme_id"`
	Reach        float64 `json:"reach"`
	Impact       float64 `json:"impact"`
	Confidence   float64 `json:"confidence"`
	Effort       int     `json:"effort"`
	Score        float64 `json:"priority_score"`
	IsRegression bool    `json:"is_regression"`
	IsPersistent bool    `json:"is_persistent"`
}

// ThemeInfo is one entry of GET /api/v1/themes.
type ThemeInfo struct {
	ID    string `json:"theme_id"`
	Label string `json:"theme_label"`
}

// SignalRow is one per-release signal entry.
type SignalRow struct {
	Release          string  `json:"release"`
	ThemeID          string  `json:"theme_id"`
	Signal           float64 `json:"signal"`
	NormalizedSignal float64 `json:"normalized_signal"`
	ReviewCount      int     `json:"review_count"`
	AvgRating        float64 `json:"avg_rating"`
	Delta            float64 `json:"delta"`
	IsRegression     bool    `json:"is_regression"`
	IsPersistent     bool    `json:"is_persistent"`
}

// ReviewInfo is one entry of GET /api/v1/themes/:id/reviews.
type ReviewInfo struct {
	ID          string  `json:"review_id"`
	Release     string  `json:"release"`
	Rating      int     `json:"score"`
	ThumbsUp    int     `json:"thumbs_up"`
	Content     string  `json:"content"`
	FinalWeight float64 `json:"final_weight"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleBacklog returns the ranked backlog; top_n limits the result.
func (s *Server) handleBacklog(c echo.Context) error {
	topN := 0
	if raw := c.QueryParam("top_n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "top_n must be a positive integer")
		}
		topN = n
	}

	records, err := s.store.Backlog(c.Request().Context(), topN)
	if err != nil {
		return s.storeError(c, err)
	}

	items := make([]BacklogItem, len(records))
	for i, r := range records {
		items[i] = BacklogItem{
			Rank:         r.Rank,
			Release:      r.Release,
			ThemeID:      r.ThemeID,
			Reach:        r.Reach,
			Impact:       r.Impact,
			Confidence:   r.Confidence,
			Effort:       r.Effort,
			Score:        r.Score,
			IsRegression: r.IsRegression,
			IsPersistent: r.IsPersistent,
		}
	}
	return c.JSON(http.StatusOK, items)
}

func (s *Server) handleThemes(c echo.Context) error {
	themes, err := s.store.Themes(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}

	out := make([]ThemeInfo, len(themes))
	for i, t := range themes {
		out[i] = ThemeInfo{ID: t.ID, Label: t.Label}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleThemeSignal(c echo.Context) error {
	rows, err := s.store.ThemeSignalHistory(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.storeError(c, err)
	}
	if len(rows) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "unknown theme")
	}
	return c.JSON(http.StatusOK, signalRows(rows))
}

func (s *Server) handleThemeReviews(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	reviews, err := s.store.TopThemeReviews(c.Request().Context(), c.Param("id"), c.QueryParam("version"), limit)
	if err != nil {
		return s.storeError(c, err)
	}

	out := make([]ReviewInfo, len(reviews))
	for i, r := range reviews {
		out[i] = ReviewInfo{
			ID:          r.ID,
			Release:     r.Release,
			Rating:      r.Rating,
			ThumbsUp:    r.ThumbsUp,
			Content:     r.Content,
			FinalWeight: r.FinalWeight,
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleRegressions(c echo.Context) error {
	rows, err := s.store.RegressionsForRelease(c.Request().Context(), c.Param("version"))
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, signalRows(rows))
}

func (s *Server) handlePersistent(c echo.Context) error {
	rows, err := s.store.PersistentThemes(c.Request().Context())
	if err != nil {
		return s.storeError(c, err)
	}
	return c.JSON(http.StatusOK, signalRows(rows))
}

func (s *Server) handleReleaseSummary(c echo.Context) error {
	rows, err := s.store.ReleaseSummary(c.Request().Context(), c.Param("version"))
	if err != nil {
		return s.storeError(c, err)
	}
	if len(rows) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "unknown release")
	}
	return c.JSON(http.StatusOK, signalRows(rows))
}

func (s *Server) storeError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNoRun) {
		return echo.NewHTTPError(http.StatusNotFound, "no pipeline run available")
	}
	s.logger.Error("store query failed", zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
}

func signalRows(rows []store.SignalRecord) []SignalRow {
	out := make([]SignalRow, len(rows))
	for i, r := range rows {
		out[i] = SignalRow{
			Release:          r.Release,
			ThemeID:          r.ThemeID,
			Signal:           r.Signal,
			NormalizedSignal: r.NormalizedSignal,
			ReviewCount:      r.ReviewCount,
			AvgRating:        r.AvgRating,
			Delta:            r.Delta,
			IsRegression:     r.IsRegression,
			IsPersistent:     r.IsPersistent,
		}
	}
	return out
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }
