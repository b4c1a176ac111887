package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
)

type fakeResolver struct {
	records []models.CandidateRecord
	err     error
}

func (f *fakeResolver) Resolve(_ context.Context, rec models.CandidateRecord) (*models.ResolveResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.records = append(f.records, rec)
	return &models.ResolveResult{Decision: models.DecisionNewEntity, DecisionID: "d1"}, nil
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestProcessor_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves a valid record", func(t *testing.T) {
		resolver := &fakeResolver{}
		p := NewProcessor(resolver, testLogger())

		err := p.HandleMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"first_name":"Jane","last_name":"Doe","email":"jane@example.com","source_system":"clinic"}`),
		})
		require.NoError(t, err)

		require.Len(t, resolver.records, 1)
		assert.Equal(t, "Jane", resolver.records[0].FirstName)
		assert.Equal(t, models.EntityKindPerson, resolver.records[0].Kind)
	})

	t.Run("drops unparseable messages without error", func(t *testing.T) {
		resolver := &fakeResolver{}
		p := NewProcessor(resolver, testLogger())

		err := p.HandleMessage(ctx, &kafka.IncomingMessage{Value: []byte(`{not json`)})
		require.NoError(t, err)
		assert.Empty(t, resolver.records)
	})

	t.Run("drops records missing a source system", func(t *testing.T) {
		resolver := &fakeResolver{}
		p := NewProcessor(resolver, testLogger())

		err := p.HandleMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"first_name":"Jane","email":"jane@example.com"}`),
		})
		require.NoError(t, err)
		assert.Empty(t, resolver.records)
	})

	t.Run("falls back to the source_system header", func(t *testing.T) {
		resolver := &fakeResolver{}
		p := NewProcessor(resolver, testLogger())

		err := p.HandleMessage(ctx, &kafka.IncomingMessage{
			Value:   []byte(`{"first_name":"Jane","email":"jane@example.com"}`),
			Headers: map[string]string{"source_system": "shelter-import"},
		})
		require.NoError(t, err)

		require.Len(t, resolver.records, 1)
		assert.Equal(t, "shelter-import", resolver.records[0].SourceSystem)
	})

	t.Run("propagates resolver failures for redelivery", func(t *testing.T) {
		resolver := &fakeResolver{err: errors.New("database down")}
		p := NewProcessor(resolver, testLogger())

		err := p.HandleMessage(ctx, &kafka.IncomingMessage{
			Value: []byte(`{"first_name":"Jane","email":"jane@example.com","source_system":"clinic"}`),
		})
		require.Error(t, err)
	})
}
