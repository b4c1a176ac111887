package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// BlacklistStore manages blacklist entries
type BlacklistStore interface {
	Create(ctx context.Context, entry *models.BlacklistEntry) error
	List(ctx context.Context, classification *models.BlacklistClassification, page, pageSize int) (*models.BlacklistListResponse, error)
	Delete(ctx context.Context, id string) error
	RefreshEvidence(ctx context.Context, minDistinctNames, sampleLimit int) (*models.RefreshEvidenceResult, error)
}

// BlacklistHandler handles blacklist management endpoints
type BlacklistHandler struct {
	store            BlacklistStore
	minDistinctNames int
	validate         *validator.Validate
	logger           ectologger.Logger
}

// NewBlacklistHandler creates a blacklist handler
func NewBlacklistHandler(store BlacklistStore, minDistinctNames int, logger ectologger.Logger) *BlacklistHandler {
	return &BlacklistHandler{
		store:            store,
		minDistinctNames: minDistinctNames,
		validate:         validator.New(),
		logger:           logger,
	}
}

// Register registers blacklist routes
func (h *BlacklistHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.POST("", h.Create)
	g.DELETE("/:id", h.Delete)
	g.POST("/refresh", h.RefreshEvidence)
}

// List returns blacklist entries, optionally filtered by classification
func (h *BlacklistHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BlacklistHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var classification *models.BlacklistClassification
	if v := c.QueryParam("classification"); v != "" {
		cls := models.BlacklistClassification(v)
		if !cls.IsValid() {
			return BadRequest("classification must be hard or soft")
		}
		classification = &cls
	}

	page, pageSize := ParsePage(c)
	resp, err := h.store.List(ctx, classification, page, pageSize)
	if err != nil {
		return err
	}

	return SuccessResponse(c, resp)
}

// Create adds a blacklist entry
func (h *BlacklistHandler) Create(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BlacklistHandler.Create")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var req models.CreateBlacklistEntryRequest
	if err := c.Bind(&req); err != nil {
		return BadRequest("invalid request body")
	}
	if err := h.validate.Struct(&req); err != nil {
		return BadRequest("kind, value, and classification are required")
	}
	if !req.Kind.IsValid() {
		return BadRequest("kind must be email, phone, or address")
	}
	if !req.Classification.IsValid() {
		return BadRequest("classification must be hard or soft")
	}

	entry := &models.BlacklistEntry{
		Kind:               req.Kind,
		Value:              req.Value,
		Classification:     req.Classification,
		RequiredSimilarity: req.RequiredSimilarity,
		Note:               req.Note,
	}
	if err := h.store.Create(ctx, entry); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"kind":           entry.Kind,
		"classification": entry.Classification,
	}).Info("Created blacklist entry")

	return CreatedResponse(c, entry)
}

// Delete removes a blacklist entry
func (h *BlacklistHandler) Delete(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BlacklistHandler.Delete")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.store.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}

// RefreshEvidence recomputes soft-entry evidence from the identifier table
func (h *BlacklistHandler) RefreshEvidence(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "BlacklistHandler.RefreshEvidence")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	result, err := h.store.RefreshEvidence(ctx, h.minDistinctNames, 10)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}
