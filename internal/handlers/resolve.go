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

// Resolver runs a record through the decision funnel
type Resolver interface {
	Resolve(ctx context.Context, rec models.CandidateRecord) (*models.ResolveResult, error)
}

// ResolveHandler handles synchronous resolution requests
type ResolveHandler struct {
	resolver Resolver
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewResolveHandler creates a resolve handler
func NewResolveHandler(resolver Resolver, logger ectologger.Logger) *ResolveHandler {
	return &ResolveHandler{
		resolver: resolver,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register registers resolve routes
func (h *ResolveHandler) Register(g *echo.Group) {
	g.POST("", h.Resolve)
}

// Resolve runs one candidate record through the funnel and returns the decision
func (h *ResolveHandler) Resolve(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "ResolveHandler.Resolve")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	var rec models.CandidateRecord
	if err := c.Bind(&rec); err != nil {
		return BadRequest("invalid request body")
	}

	if rec.SourceSystem == "" {
		rec.SourceSystem = appcontext.GetSourceSystem(ctx)
	}
	if rec.Kind == "" {
		rec.Kind = models.EntityKindPerson
	}
	if !rec.Kind.IsValid() {
		return BadRequest("invalid kind")
	}

	if err := h.validate.Struct(&rec); err != nil {
		return BadRequest("source_system is required")
	}

	result, err := h.resolver.Resolve(ctx, rec)
	if err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("Failed to resolve record")
		return err
	}

	return SuccessResponse(c, result)
}
