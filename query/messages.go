package query

import (
	"strings"
)

const (
	TypeGetDelivery     = "slack.query.delivery.get"
	TypeDispatcherStats = "slack.query.dispatcher.stats"
)

type GetDeliveryMessage struct {
	EventID string
}

func (GetDeliveryMessage) Type() string { return TypeGetDelivery }

func (m GetDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

type DispatcherStatsMessage struct{}

func (DispatcherStatsMessage) Type() string { return TypeDispatcherStats }
