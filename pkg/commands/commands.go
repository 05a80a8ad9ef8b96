// Package commands implements the bot command handlers: wallet registry
// management, balance checks and the help surfaces.
package commands

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"walletbot/pkg/balance"
	"walletbot/pkg/bus"
	"walletbot/pkg/card"
	"walletbot/pkg/dispatch"
	"walletbot/pkg/wallet"
)

// argumentNotes are the standing hints shown on usage and help cards.
var argumentNotes = []string{
	"All arguments must be in quotes",
	"TRC20 addresses start with 'T' (34 characters)",
	"Balance reports sent via scheduled messages at midnight GMT+7",
	"Only authorized team members can use commands",
}

// Deps are the collaborators command handlers share.
type Deps struct {
	Store          *wallet.Store
	Balances       balance.Provider
	UTCOffsetHours int
	Log            *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

// RegisterAll wires every handler into the registry.
func RegisterAll(reg *dispatch.Registry, deps Deps) {
	reg.Register(NewHelp(reg, deps))
	reg.Register(NewStart(deps))
	reg.Register(NewList(deps))
	reg.Register(NewAdd(deps))
	reg.Register(NewRemove(deps))
	reg.Register(NewCheck(deps))
}

var quotedPattern = regexp.MustCompile(`["']([^"']*)["']`)

// extractQuoted pulls quoted strings out of the raw argument text. Both
// single and double quotes are accepted.
func extractQuoted(text string) []string {
	matches := quotedPattern.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// rawArgs rejoins the whitespace-split tokens so quoted phrases containing
// spaces can be re-extracted.
func rawArgs(cmd *dispatch.CommandContext) string {
	return strings.Join(cmd.Args, " ")
}

// sendCard posts an interactive card response; card encoding failures are
// handler faults, delivery failures are the dispatcher's problem.
func sendCard(ctx context.Context, cmd *dispatch.CommandContext, c card.Card) error {
	payload, err := c.JSON()
	if err != nil {
		return err
	}
	return cmd.Sink.SendResponse(ctx, payload, bus.KindCard)
}

// sendErrorCard posts a red error card and reports a soft failure.
func sendErrorCard(ctx context.Context, cmd *dispatch.CommandContext, message string) (bool, error) {
	if err := sendCard(ctx, cmd, card.Error(message)); err != nil {
		return false, err
	}
	return false, nil
}
