package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// EntityStore reads entities
type EntityStore interface {
	Get(ctx context.Context, id string) (*models.Entity, error)
}

// IdentifierReader loads an entity's identifiers
type IdentifierReader interface {
	ListByEntity(ctx context.Context, entityID string) ([]models.Identifier, error)
}

// CanonicalResolver chases tombstone chains
type CanonicalResolver interface {
	ResolveCanonical(ctx context.Context, id string) (*models.Entity, error)
}

// EntityHandler handles entity read endpoints
type EntityHandler struct {
	entities    EntityStore
	identifiers IdentifierReader
	resolver    CanonicalResolver
	logger      ectologger.Logger
}

// NewEntityHandler creates an entity handler
func NewEntityHandler(entities EntityStore, identifiers IdentifierReader, resolver CanonicalResolver, logger ectologger.Logger) *EntityHandler {
	return &EntityHandler{
		entities:    entities,
		identifiers: identifiers,
		resolver:    resolver,
		logger:      logger,
	}
}

// Register registers entity routes
func (h *EntityHandler) Register(g *echo.Group) {
	g.GET("/:id", h.Get)
}

// Get returns an entity with its identifiers. A tombstone comes back with the
// canonical entity its chain resolves to.
func (h *EntityHandler) Get(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "EntityHandler.Get")
	defer span.End()
	c.SetRequest(c.Request().WithContext(ctx))

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	entity, err := h.entities.Get(ctx, id)
	if err != nil {
		return err
	}

	resp := models.EntityResponse{Entity: *entity}

	target := entity.ID
	if entity.IsTombstone() {
		canonical, err := h.resolver.ResolveCanonical(ctx, entity.ID)
		if err != nil {
			return err
		}
		resp.Canonical = canonical
		target = canonical.ID
	}

	identifiers, err := h.identifiers.ListByEntity(ctx, target)
	if err != nil {
		return err
	}
	resp.Identifiers = identifiers

	return SuccessResponse(c, resp)
}
