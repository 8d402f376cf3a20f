package sqlstore

import "github.com/goliatone/go-slack/core"

var _ core.DeliveryLedger = (*EventDeliveryStore)(nil)
