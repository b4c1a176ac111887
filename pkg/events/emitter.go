// Package events handles event emission for identity decisions and merges
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Event types emitted by the service
const (
	EventDecisionMade = "identity.decision"
	EventEntityMerged = "entity.merged"
)

// Publisher is the transport events go out on
type Publisher interface {
	Publish(ctx context.Context, event *kafka.IdentityEvent) error
}

// Emitter publishes identity lifecycle events. Emission happens after the
// owning transaction commits and failures are logged, never propagated; the
// audit log is the source of truth, the stream is a convenience.
type Emitter struct {
	producer Publisher
	logger   ectologger.Logger
}

// NewEmitter creates an event emitter. A nil producer disables emission.
func NewEmitter(producer Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{producer: producer, logger: logger}
}

// EmitDecision publishes an identity.decision event
func (e *Emitter) EmitDecision(ctx context.Context, result *models.ResolveResult, source string) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDecision")
	defer span.End()

	payload, _ := json.Marshal(map[string]any{
		"decision":      result.Decision,
		"decision_id":   result.DecisionID,
		"reason":        result.Reason,
		"source_system": source,
	})

	event := &kafka.IdentityEvent{
		EventType: EventDecisionMade,
		Data:      payload,
	}
	if result.EntityID != nil {
		event.EntityID = *result.EntityID
	}

	if err := e.producer.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit identity.decision event")
	}
}

// EmitMerge publishes an entity.merged event
func (e *Emitter) EmitMerge(ctx context.Context, result *models.MergeResult) {
	if e.producer == nil {
		return
	}
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMerge")
	defer span.End()

	payload, _ := json.Marshal(map[string]any{
		"merge_id":       result.Record.ID,
		"loser_id":       result.Record.LoserID,
		"keeper_id":      result.KeeperID,
		"already_merged": result.AlreadyMerged,
		"moved_counts":   result.MovedCounts,
	})

	event := &kafka.IdentityEvent{
		EventType: EventEntityMerged,
		EntityID:  result.KeeperID,
		Data:      payload,
	}

	if err := e.producer.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.merged event")
	}
}
