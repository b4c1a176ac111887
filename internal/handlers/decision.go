package handlers

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// DecisionStore reads the match decision audit log
type DecisionStore interface {
	Get(ctx context.Context, id string) (*models.MatchDecision, error)
	List(ctx context.Context, req models.ListDecisionsRequest) (*models.DecisionListResponse, error)
}

// DecisionHandler exposes the audit log for threshold re-evaluation
type DecisionHandler struct {
	store  DecisionStore
	logger ectologger.Logger
}

// NewDecisionHandler creates a decision handler
func NewDecisionHandler(store DecisionStore, logger ectologger.Logger) *DecisionHandler {
	return &DecisionHandler{
		store:  store,
		logger: logger,
	}
}

// Register registers decision routes
func (h *DecisionHandler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

// List filters decisions by outcome, threshold version, entity, and time window
func (h *DecisionHandler) List(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DecisionHandler.List")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	req := models.ListDecisionsRequest{}
	req.Page, req.PageSize = ParsePage(c)

	if v := c.QueryParam("decision"); v != "" {
		decision := models.DecisionType(v)
		switch decision {
		case models.DecisionRejected, models.DecisionReviewPending, models.DecisionAutoMatch,
			models.DecisionHouseholdMember, models.DecisionNewEntity, models.DecisionMerged:
			req.Decision = &decision
		default:
			return BadRequest("invalid decision")
		}
	}
	if v := c.QueryParam("threshold_version"); v != "" {
		req.ThresholdVersion = &v
	}
	if v := c.QueryParam("entity_id"); v != "" {
		req.EntityID = &v
	}
	if v := c.QueryParam("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return BadRequest("since must be RFC3339")
		}
		req.Since = &since
	}
	if v := c.QueryParam("until"); v != "" {
		until, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return BadRequest("until must be RFC3339")
		}
		req.Until = &until
	}

	resp, err := h.store.List(ctx, req)
	if err != nil {
		return err
	}

	return SuccessResponse(c, resp)
}

// Get returns one audit row with its full candidate breakdown
func (h *DecisionHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "DecisionHandler.Get")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	decision, err := h.store.Get(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, decision)
}
