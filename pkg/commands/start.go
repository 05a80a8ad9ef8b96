package commands

import (
	"context"
	"strings"
	"time"

	"walletbot/pkg/bus"
	"walletbot/pkg/dispatch"
)

// Start posts the welcome message, doubling as a connectivity test.
type Start struct {
	deps Deps
	now  func() time.Time
}

func NewStart(deps Deps) *Start {
	return &Start{deps: deps, now: time.Now}
}

func (s *Start) Descriptor() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name:        "start",
		Aliases:     []string{"begin", "init"},
		Description: "Start the bot and show welcome message",
		Usage:       "/start",
		MinArgs:     0,
		MaxArgs:     0,
	}
}

func (s *Start) Handle(ctx context.Context, cmd *dispatch.CommandContext) (bool, error) {
	at := s.now().UTC().Add(time.Duration(s.deps.UTCOffsetHours) * time.Hour)
	welcome := strings.Join([]string{
		"👋 **Welcome to Crypto Wallet Monitor Bot**",
		"📅 " + at.Format("2006-01-02 15:04:05"),
		"",
		"This bot helps you monitor TRON-based wallets in real-time.",
		"",
		"📚 Use `/help` to see all commands.",
		"➕ Try `/add` to register a wallet.",
		"📊 Try `/check` to see balances.",
		"",
		"💡 Commands must be sent in the #commands topic.",
	}, "\n")

	return true, cmd.Sink.SendResponse(ctx, welcome, bus.KindText)
}
