package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-slack/core"
	"github.com/goliatone/go-slack/outbound"
)

// DeliveryReader looks up the ledger record for an event id.
type DeliveryReader interface {
	GetDelivery(ctx context.Context, eventID string) (core.DeliveryRecord, bool, error)
}

type DeliveryReaderFunc func(ctx context.Context, eventID string) (core.DeliveryRecord, bool, error)

func (f DeliveryReaderFunc) GetDelivery(ctx context.Context, eventID string) (core.DeliveryRecord, bool, error) {
	return f(ctx, eventID)
}

type StatsReader interface {
	Stats() outbound.Stats
}

type GetDeliveryQuery struct {
	reader DeliveryReader
}

func NewGetDeliveryQuery(reader DeliveryReader) *GetDeliveryQuery {
	return &GetDeliveryQuery{reader: reader}
}

func (q *GetDeliveryQuery) Query(ctx context.Context, msg GetDeliveryMessage) (core.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return core.DeliveryRecord{}, queryDependencyError("query: delivery reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.DeliveryRecord{}, err
	}
	eventID := strings.TrimSpace(msg.EventID)
	record, found, err := q.reader.GetDelivery(ctx, eventID)
	if err != nil {
		return core.DeliveryRecord{}, queryWrapInternal(err, "query: load delivery failed")
	}
	if !found {
		return core.DeliveryRecord{}, queryNotFoundError(eventID)
	}
	return record, nil
}

type DispatcherStatsQuery struct {
	reader StatsReader
}

func NewDispatcherStatsQuery(reader StatsReader) *DispatcherStatsQuery {
	return &DispatcherStatsQuery{reader: reader}
}

func (q *DispatcherStatsQuery) Query(_ context.Context, _ DispatcherStatsMessage) (outbound.Stats, error) {
	if q == nil || q.reader == nil {
		return outbound.Stats{}, queryDependencyError("query: stats reader is required")
	}
	return q.reader.Stats(), nil
}
