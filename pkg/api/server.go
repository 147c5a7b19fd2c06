// Package api exposes the HTTP control surface: tier runs, pipeline status,
// usage, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/jobsift/jobsift/pkg/database"
	"github.com/jobsift/jobsift/pkg/llm"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/scheduler"
	"github.com/jobsift/jobsift/pkg/store"
)

// Runner is the scheduling dependency. *scheduler.Scheduler satisfies it;
// tests substitute fakes.
type Runner interface {
	RunTierBatch(ctx context.Context, tier models.Tier, maxJobs int, modelOverride string) (*models.BatchStats, error)
	RunFullSequentialBatch(ctx context.Context, opts scheduler.SequentialOptions) (*models.SequentialStats, error)
	ActiveTier() (models.Tier, bool)
}

// Server is the control API.
type Server struct {
	echo      *echo.Echo
	http      *http.Server
	scheduler Runner
	store     store.Store
	client    *llm.Client
	db        *database.Client
}

// NewServer wires routes and middleware. apiKey guards the /api group; the
// health routes stay open for probes.
func NewServer(addr, apiKey string, sched Runner, st store.Store, client *llm.Client, db *database.Client) *Server {
	e := echo.New()

	s := &Server{
		echo:      e,
		scheduler: sched,
		store:     st,
		client:    client,
		db:        db,
	}

	e.Use(securityHeaders())
	e.GET("/health", s.healthHandler)
	// Registered outside the group so it skips the API-key middleware.
	e.GET("/api/analyze/health", s.healthHandler)

	g := e.Group("/api")
	g.Use(apiKeyAuth(apiKey))
	g.POST("/analyze/tier1", s.runTierHandler(1))
	g.POST("/analyze/tier2", s.runTierHandler(2))
	g.POST("/analyze/tier3", s.runTierHandler(3))
	g.POST("/analyze/sequential-batch", s.sequentialHandler)
	g.GET("/analyze/status", s.statusHandler)
	g.GET("/analyze/tier-stats", s.tierStatsHandler)
	g.GET("/analyze/usage", s.usageHandler)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Control API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
