package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"walletbot/pkg/card"
	"walletbot/pkg/dispatch"
	"walletbot/pkg/wallet"
)

// Remove deletes a wallet from the store by name.
type Remove struct {
	deps Deps
}

func NewRemove(deps Deps) *Remove {
	return &Remove{deps: deps}
}

func (r *Remove) Descriptor() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name:        "remove",
		Aliases:     []string{"delete", "del"},
		Description: "Remove a wallet from monitoring",
		Usage:       `/remove "wallet_name"`,
		MinArgs:     0,
		MaxArgs:     -1,
	}
}

func (r *Remove) Handle(ctx context.Context, cmd *dispatch.CommandContext) (bool, error) {
	raw := rawArgs(cmd)
	if strings.TrimSpace(raw) == "" {
		return true, sendCard(ctx, cmd, card.Usage("🗑 Remove Wallet", r.Descriptor().Usage, argumentNotes))
	}

	parts := extractQuoted(raw)
	if len(parts) != 1 {
		return sendErrorCard(ctx, cmd, fmt.Sprintf(
			"Expected 1 quoted wallet name, found %d.\n**Usage:** %s", len(parts), r.Descriptor().Usage))
	}
	name := parts[0]
	if name == "" {
		return sendErrorCard(ctx, cmd, "Wallet name must be non-empty.")
	}

	removed, err := r.deps.Store.Remove(name)
	switch {
	case errors.Is(err, wallet.ErrWalletNotFound):
		return sendErrorCard(ctx, cmd, fmt.Sprintf(
			"Wallet **%s** is not configured. Use /list to see registered wallets.", name))
	case err != nil:
		return false, fmt.Errorf("remove wallet: %w", err)
	}

	r.deps.logger().Info("wallet removed",
		"component", "commands",
		"wallet", removed.Name,
		"company", removed.Company)

	return true, sendCard(ctx, cmd, card.Success("✅ Wallet Removed", map[string]string{
		"Company": removed.Company,
		"Wallet":  removed.Name,
		"Address": removed.Address,
	}, []string{"Company", "Wallet", "Address"}))
}
