// Package dispatch implements the command pipeline: envelope parsing,
// staleness and duplicate suppression, middleware gating, registry lookup,
// single-flight locking and handler invocation.
package dispatch

import (
	"context"

	"walletbot/pkg/bus"
	"walletbot/pkg/config"
)

// Sink posts responses back into the chat surface one command arrived from.
// Implementations are channel-specific (Lark topic reply, Telegram send).
type Sink interface {
	SendResponse(ctx context.Context, content string, kind bus.OutboundKind) error
	SendError(ctx context.Context, content string) error
}

// SinkFactory binds a sink to the origin of one inbound message.
type SinkFactory func(msg bus.InboundMessage) Sink

// Descriptor declares one command's identity and dispatch requirements.
type Descriptor struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string

	// MinArgs and MaxArgs bound the token count after the command name.
	// MaxArgs < 0 means unbounded.
	MinArgs int
	MaxArgs int

	// SingleFlight commands run at most once concurrently; a second
	// invocation is rejected immediately with a busy response.
	SingleFlight bool
}

// Handler is the single polymorphic contract every command plugs into.
//
// Handle returns (false, nil) for a soft failure: the command ran but
// declined, and has already said whatever it wants to say to the user.
// A non-nil error is a fault; the dispatcher logs it and posts a generic
// error response.
type Handler interface {
	Descriptor() Descriptor
	Handle(ctx context.Context, cmd *CommandContext) (bool, error)
}

// CommandContext carries one resolved command invocation into a handler.
type CommandContext struct {
	Command   string
	Args      []string
	SenderID  string
	ChatID    string
	ThreadID  string
	Channel   string
	RequestID string

	Sink   Sink
	Config config.DispatchConfig
}

// Middleware gates dispatch. Returning false vetoes execution; the
// middleware is responsible for telling the user why. An error also
// vetoes and is logged by the dispatcher.
type Middleware func(ctx context.Context, cmd *CommandContext) (bool, error)
