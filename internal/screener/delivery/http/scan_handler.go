package http

import (
	"errors"
	"net/http"
	"strconv"

	"stock-opportunity-engine/internal/screener/dto"
	"stock-opportunity-engine/internal/screener/progress"
	"stock-opportunity-engine/internal/screener/repository"
	"stock-opportunity-engine/internal/screener/service"
	"stock-opportunity-engine/pkg/common"
	"stock-opportunity-engine/pkg/logger"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// ScanHandler handles HTTP requests for scans and runs.
type ScanHandler struct {
	pipeline  service.PipelineService
	publisher service.ScanPublisher
	tracker   progress.Tracker
	runRepo   repository.RunRepository
	recRepo   repository.RecommendationRepository
	logger    *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(
	pipeline service.PipelineService,
	publisher service.ScanPublisher,
	tracker progress.Tracker,
	runRepo repository.RunRepository,
	recRepo repository.RecommendationRepository,
	log *logger.Logger,
) *ScanHandler {
	return &ScanHandler{
		pipeline:  pipeline,
		publisher: publisher,
		tracker:   tracker,
		runRepo:   runRepo,
		recRepo:   recRepo,
		logger:    log,
	}
}

// RegisterRoutes registers the scan routes to the Echo group.
func (h *ScanHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/scans", h.TriggerScan)
	g.GET("/scans/status", h.ScanStatus)
	g.GET("/runs", h.ListRuns)
	g.GET("/runs/:id", h.GetRun)
	g.GET("/recommendations/latest", h.LatestRecommendations)
}

// TriggerScan starts a scan. By default the request is enqueued for the
// background worker; sync=true runs it inline and returns the result.
func (h *ScanHandler) TriggerScan(c echo.Context) error {
	var req dto.TriggerScanRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}
	runType := req.RunType
	if runType == "" {
		runType = common.RunTypeManualAPI
	}

	if c.QueryParam("sync") == "true" {
		result, err := h.pipeline.RunScan(c.Request().Context(), runType)
		if err != nil {
			if errors.Is(err, service.ErrScanInProgress) {
				return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
			}
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	}

	if err := h.publisher.Publish(c.Request().Context(), runType); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusAccepted, dto.TriggerScanResponse{Enqueued: true, RunType: runType})
}

// ScanStatus returns the current progress tracker snapshot.
func (h *ScanHandler) ScanStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.tracker.Snapshot())
}

// ListRuns returns recent runs, newest first.
func (h *ScanHandler) ListRuns(c echo.Context) error {
	limit := 30
	if raw := c.QueryParam("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid limit"})
		}
		limit = v
	}

	runs, err := h.runRepo.FindAll(c.Request().Context(), limit)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns one run with its recommendations.
func (h *ScanHandler) GetRun(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid run ID"})
	}

	run, err := h.runRepo.FindByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "Run not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}

	recs, err := h.recRepo.FindByRunID(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"run": run, "recommendations": recs})
}

// LatestRecommendations returns the most recent run and its recommendations.
func (h *ScanHandler) LatestRecommendations(c echo.Context) error {
	run, err := h.runRepo.FindLatest(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	if run == nil {
		return c.JSON(http.StatusOK, echo.Map{"run": nil, "recommendations": []struct{}{}})
	}

	recs, err := h.recRepo.FindByRunID(c.Request().Context(), run.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, echo.Map{"run": run, "recommendations": recs})
}
