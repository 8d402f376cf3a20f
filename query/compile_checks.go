package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-slack/core"
	"github.com/goliatone/go-slack/outbound"
)

var (
	_ gocmd.Querier[GetDeliveryMessage, core.DeliveryRecord] = (*GetDeliveryQuery)(nil)
	_ gocmd.Querier[DispatcherStatsMessage, outbound.Stats]  = (*DispatcherStatsQuery)(nil)
)
