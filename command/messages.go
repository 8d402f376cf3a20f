package command

import (
	"strings"

	"github.com/goliatone/go-slack/core"
)

const (
	TypeAPICall       = "slack.command.api.call"
	TypeEventReceived = "slack.event.received"
)

// CallMessage asks for one Web API call.
type CallMessage struct {
	Method string
	Params map[string]any
	// Token overrides the client token for this call.
	Token string
	JSON  bool
}

func (CallMessage) Type() string { return TypeAPICall }

func (m CallMessage) Validate() error {
	if strings.TrimSpace(m.Method) == "" {
		return commandValidationError("method", "method is required")
	}
	return nil
}

func (m CallMessage) options() []core.CallOption {
	var opts []core.CallOption
	if token := strings.TrimSpace(m.Token); token != "" {
		opts = append(opts, core.WithCallToken(token))
	}
	if m.JSON {
		opts = append(opts, core.WithJSONBody())
	}
	return opts
}

// EventMessage carries a verified event to command subscribers.
type EventMessage struct {
	Event core.Event
}

func (EventMessage) Type() string { return TypeEventReceived }

func (m EventMessage) Validate() error {
	if strings.TrimSpace(m.Event.Type) == "" {
		return commandValidationError("event.type", "event type is required")
	}
	return nil
}
