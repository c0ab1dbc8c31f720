package http

import (
	"net/http"

	"stock-opportunity-engine/internal/screener/dto"
	"stock-opportunity-engine/internal/screener/rules"
	"stock-opportunity-engine/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RulesHandler handles HTTP requests for the rules file.
type RulesHandler struct {
	rulesRepo rules.Repository
	logger    *logger.Logger
}

// NewRulesHandler creates a new RulesHandler.
func NewRulesHandler(rulesRepo rules.Repository, log *logger.Logger) *RulesHandler {
	return &RulesHandler{rulesRepo: rulesRepo, logger: log}
}

// RegisterRoutes registers the rules routes to the Echo group.
func (h *RulesHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/rules", h.GetRules)
	g.PUT("/rules", h.UpdateRules)
}

// GetRules returns the rules file in raw and parsed form.
func (h *RulesHandler) GetRules(c echo.Context) error {
	raw, err := h.rulesRepo.LoadRaw()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	parsed, err := h.rulesRepo.Load()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, dto.RulesResponse{YAML: raw, Rules: parsed})
}

// UpdateRules validates and persists a replacement rules file. Invalid
// rules are rejected without touching the file on disk.
func (h *RulesHandler) UpdateRules(c echo.Context) error {
	var req dto.UpdateRulesRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request payload"})
	}

	parsed, err := h.rulesRepo.SaveRaw(req.YAML)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	h.logger.Info("Rules file updated")
	return c.JSON(http.StatusOK, dto.RulesResponse{YAML: req.YAML, Rules: parsed})
}
