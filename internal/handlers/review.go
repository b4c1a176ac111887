package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ReviewService applies human verdicts to queued items
type ReviewService interface {
	List(ctx context.Context, status models.ReviewStatus, page, pageSize int) (*models.ReviewListResponse, error)
	Get(ctx context.Context, id string) (*models.ReviewItem, error)
	Confirm(ctx context.Context, id string, req models.ReviewActionRequest) (*models.ReviewItem, error)
	Reject(ctx context.Context, id string, req models.ReviewActionRequest) (*models.ReviewItem, error)
}

// ReviewHandler handles review queue endpoints
type ReviewHandler struct {
	service  ReviewService
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewReviewHandler creates a review handler
func NewReviewHandler(service ReviewService, logger ectologger.Logger) *ReviewHandler {
	return &ReviewHandler{
		service:  service,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register registers review routes
func (h *ReviewHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("/:id/confirm", h.Confirm)
	g.POST("/:id/reject", h.Reject)
}

// List returns review items, open by default
func (h *ReviewHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReviewHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	status := models.ReviewStatus(c.QueryParam("status"))
	if status == "" {
		status = models.ReviewStatusOpen
	}
	switch status {
	case models.ReviewStatusOpen, models.ReviewStatusConfirmed, models.ReviewStatusRejected:
	default:
		return BadRequest("invalid status")
	}

	page, pageSize := ParsePage(c)
	resp, err := h.service.List(ctx, status, page, pageSize)
	if err != nil {
		return err
	}

	return SuccessResponse(c, resp)
}

// Get returns a single review item
func (h *ReviewHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReviewHandler.Get")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	item, err := h.service.Get(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, item)
}

// Confirm applies the match a reviewer approved
func (h *ReviewHandler) Confirm(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReviewHandler.Confirm")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.ReviewActionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest("resolved_by is required")
	}

	item, err := h.service.Confirm(ctx, id, req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"review_id":   id,
		"resolved_by": req.ResolvedBy,
	}).Info("Confirmed review item")

	return SuccessResponse(c, item)
}

// Reject records a reviewer ruling the match out
func (h *ReviewHandler) Reject(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ReviewHandler.Reject")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	var req models.ReviewActionRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest("resolved_by is required")
	}

	item, err := h.service.Reject(ctx, id, req)
	if err != nil {
		return err
	}

	return SuccessResponse(c, item)
}
