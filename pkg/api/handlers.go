package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/jobsift/jobsift/pkg/database"
	"github.com/jobsift/jobsift/pkg/models"
	"github.com/jobsift/jobsift/pkg/scheduler"
)

// runTierHandler triggers one tier run.
func (s *Server) runTierHandler(tier int) echo.HandlerFunc {
	return func(c *echo.Context) error {
		t := models.Tier(tier)
		if !t.Valid() {
			return c.JSON(http.StatusBadRequest,
				newErrorResponse("invalid_tier", "tier must be 1, 2, or 3"))
		}

		var req runRequest
		if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
			return c.JSON(http.StatusBadRequest,
				newErrorResponse("invalid_request", err.Error()))
		}
		if resp := s.checkRunRequest(req); resp != nil {
			return c.JSON(http.StatusBadRequest, *resp)
		}

		stats, err := s.scheduler.RunTierBatch(c.Request().Context(), t, req.MaxJobs, req.ModelOverride)
		if errors.Is(err, scheduler.ErrBusy) {
			return c.JSON(http.StatusConflict,
				newErrorResponse("busy", err.Error()))
		}
		if err != nil {
			slog.Error("Tier run failed", "tier", tier, "error", err)
			return c.JSON(http.StatusInternalServerError,
				newErrorResponse("run_failed", err.Error()))
		}
		return c.JSON(http.StatusOK, runResponse{Success: true, Results: stats})
	}
}

// checkRunRequest validates one tier's run parameters. Nil means valid.
func (s *Server) checkRunRequest(req runRequest) *errorResponse {
	if req.MaxJobs < 0 {
		resp := newErrorResponse("invalid_request", "max_jobs must be non-negative")
		return &resp
	}
	if req.ModelOverride != "" {
		if _, ok := s.client.Catalog().Get(req.ModelOverride); !ok {
			resp := newErrorResponse("unknown_model", "model_override is not in the catalog")
			return &resp
		}
	}
	return nil
}

// sequentialHandler runs tiers 1 through 3 back to back, with optional
// per-tier limits and model overrides from the request body.
func (s *Server) sequentialHandler(c *echo.Context) error {
	var req sequentialRequest
	if err := c.Bind(&req); err != nil && !errors.Is(err, io.EOF) {
		return c.JSON(http.StatusBadRequest,
			newErrorResponse("invalid_request", err.Error()))
	}
	for _, tier := range []runRequest{req.Tier1, req.Tier2, req.Tier3} {
		if resp := s.checkRunRequest(tier); resp != nil {
			return c.JSON(http.StatusBadRequest, *resp)
		}
	}

	opts := scheduler.SequentialOptions{
		Tier1: scheduler.TierOptions{MaxJobs: req.Tier1.MaxJobs, ModelOverride: req.Tier1.ModelOverride},
		Tier2: scheduler.TierOptions{MaxJobs: req.Tier2.MaxJobs, ModelOverride: req.Tier2.ModelOverride},
		Tier3: scheduler.TierOptions{MaxJobs: req.Tier3.MaxJobs, ModelOverride: req.Tier3.ModelOverride},
	}

	stats, err := s.scheduler.RunFullSequentialBatch(c.Request().Context(), opts)
	if errors.Is(err, scheduler.ErrBusy) {
		return c.JSON(http.StatusConflict, newErrorResponse("busy", err.Error()))
	}
	if err != nil {
		slog.Error("Sequential run failed", "error", err)
		return c.JSON(http.StatusInternalServerError,
			newErrorResponse("run_failed", err.Error()))
	}
	return c.JSON(http.StatusOK, runResponse{Success: true, Results: stats})
}

// statusHandler reports pending counts and the schedule clock.
func (s *Server) statusHandler(c *echo.Context) error {
	status, err := s.store.ProcessingStatus(c.Request().Context())
	if err != nil {
		slog.Error("Status query failed", "error", err)
		return c.JSON(http.StatusInternalServerError,
			newErrorResponse("status_failed", err.Error()))
	}

	body := map[string]any{
		"processing_status": status,
		"current_time":      time.Now().Format(time.RFC3339),
		"active_tier":       nil,
	}
	if tier, ok := s.scheduler.ActiveTier(); ok {
		body["active_tier"] = int(tier)
	}
	return c.JSON(http.StatusOK, runResponse{Success: true, Results: body})
}

// tierStatsHandler reports aggregate completed-tier figures.
func (s *Server) tierStatsHandler(c *echo.Context) error {
	stats, err := s.store.TierStats(c.Request().Context())
	if err != nil {
		slog.Error("Tier stats query failed", "error", err)
		return c.JSON(http.StatusInternalServerError,
			newErrorResponse("stats_failed", err.Error()))
	}
	return c.JSON(http.StatusOK, runResponse{Success: true, Results: stats})
}

// usageHandler reports the usage ledger and model-selection state.
func (s *Server) usageHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, runResponse{Success: true, Results: map[string]any{
		"usage":          s.client.Ledger().Snapshot(),
		"current_model":  s.client.CurrentModel(),
		"model_switches": s.client.ModelSwitches(),
	}})
}

// healthHandler reports process and database health. Unauthenticated, for
// probes.
func (s *Server) healthHandler(c *echo.Context) error {
	body := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()
		dbHealth, err := database.Health(ctx, s.db.DB.DB)
		body["database"] = dbHealth
		if err != nil {
			body["status"] = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, body)
		}
	}
	return c.JSON(http.StatusOK, body)
}
