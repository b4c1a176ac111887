// Package processor consumes candidate records from Kafka and feeds them to
// the resolver
package processor

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Resolver runs one record through the decision funnel
type Resolver interface {
	Resolve(ctx context.Context, rec models.CandidateRecord) (*models.ResolveResult, error)
}

// Processor handles candidate record messages
type Processor struct {
	resolver Resolver
	validate *validator.Validate
	logger   ectologger.Logger
}

// NewProcessor creates a processor
func NewProcessor(resolver Resolver, logger ectologger.Logger) *Processor {
	return &Processor{
		resolver: resolver,
		validate: validator.New(),
		logger:   logger,
	}
}

// HandleMessage processes one candidate record message. Malformed messages are
// logged and dropped; a redelivery would fail the same way. Resolver errors
// propagate so the message is not committed and gets redelivered.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	var rec models.CandidateRecord
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues("invalid").Inc()
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Error("Dropping unparseable candidate record")
		return nil
	}

	if rec.Kind == "" {
		rec.Kind = models.EntityKindPerson
	}
	if rec.SourceSystem == "" {
		rec.SourceSystem = msg.Headers["source_system"]
	}

	if err := p.validate.Struct(&rec); err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues("invalid").Inc()
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":  msg.Topic,
			"offset": msg.Offset,
		}).Error("Dropping invalid candidate record")
		return nil
	}

	result, err := p.resolver.Resolve(ctx, rec)
	if err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues("failed").Inc()
		return err
	}

	metrics.KafkaMessagesTotal.WithLabelValues("processed").Inc()
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"decision":      result.Decision,
		"decision_id":   result.DecisionID,
		"source_system": rec.SourceSystem,
	}).Debug("Processed candidate record")

	return nil
}
