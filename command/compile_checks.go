package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-slack/core"
)

var (
	_ gocmd.Commander[CallMessage] = (*CallCommand)(nil)
	_ core.EventConsumer           = (*DispatchConsumer)(nil)
)
