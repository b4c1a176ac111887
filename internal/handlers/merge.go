package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// MergeService performs entity consolidation
type MergeService interface {
	Merge(ctx context.Context, loserID, keeperID, reason, actor string) (*models.MergeResult, error)
	Sweep(ctx context.Context, req models.SweepRequest) (*models.SweepResult, error)
}

// MergeHandler handles merge endpoints
type MergeHandler struct {
	service  MergeService
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewMergeHandler creates a merge handler
func NewMergeHandler(service MergeService, logger ectologger.Logger) *MergeHandler {
	return &MergeHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register registers merge routes
func (h *MergeHandler) Register(g *echo.Group) {
	g.POST("", h.Merge)
	g.POST("/sweep", h.Sweep)
}

// Merge consolidates a loser entity into a keeper
func (h *MergeHandler) Merge(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergeHandler.Merge")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req models.MergeRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Actor == "" {
		req.Actor = appcontext.GetUserID(ctx)
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest("loser_id, keeper_id, reason, and actor are required")
	}

	result, err := h.service.Merge(ctx, req.LoserID, req.KeeperID, req.Reason, req.Actor)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"loser_id":  req.LoserID,
			"keeper_id": req.KeeperID,
		}).Error("Failed to merge entities")
		return err
	}

	return SuccessResponse(c, result)
}

// Sweep bulk-merges entity groups sharing an identifier value
func (h *MergeHandler) Sweep(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "MergeHandler.Sweep")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req models.SweepRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if req.Actor == "" {
		req.Actor = appcontext.GetUserID(ctx)
	}
	if !req.Kind.IsValid() {
		return BadRequest("kind must be email, phone, or address")
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest("kind and actor are required")
	}

	result, err := h.service.Sweep(ctx, req)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to run merge sweep")
		return err
	}

	return SuccessResponse(c, result)
}
