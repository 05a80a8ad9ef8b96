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

// Add registers a new wallet in the store.
type Add struct {
	deps Deps
}

func NewAdd(deps Deps) *Add {
	return &Add{deps: deps}
}

func (a *Add) Descriptor() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name:        "add",
		Aliases:     []string{"create", "new"},
		Description: "Add a new wallet to monitor",
		Usage:       `/add "company" "wallet_name" "address"`,
		MinArgs:     0,
		MaxArgs:     -1, // quoted phrases may contain spaces
	}
}

func (a *Add) Handle(ctx context.Context, cmd *dispatch.CommandContext) (bool, error) {
	raw := rawArgs(cmd)
	if strings.TrimSpace(raw) == "" {
		return true, sendCard(ctx, cmd, card.Usage("📝 Add Wallet", a.Descriptor().Usage, argumentNotes))
	}

	parts := extractQuoted(raw)
	if len(parts) != 3 {
		return sendErrorCard(ctx, cmd, fmt.Sprintf(
			"Expected 3 quoted arguments, found %d.\n**Usage:** %s", len(parts), a.Descriptor().Usage))
	}

	w := wallet.Wallet{
		Company: parts[0],
		Name:    parts[1],
		Address: parts[2],
	}
	if w.Company == "" || w.Name == "" || w.Address == "" {
		return sendErrorCard(ctx, cmd, "Company, wallet name and address must all be non-empty.")
	}

	err := a.deps.Store.Add(w)
	switch {
	case errors.Is(err, wallet.ErrDuplicateWallet):
		return sendErrorCard(ctx, cmd, fmt.Sprintf(
			"Wallet **%s** already exists. Remove it first or pick another name.", w.Name))
	case errors.Is(err, wallet.ErrInvalidAddress):
		return sendErrorCard(ctx, cmd, fmt.Sprintf(
			"Invalid TRC20 address: %s\nAddresses start with 'T' and are 34 characters long.", w.Address))
	case err != nil:
		return false, fmt.Errorf("add wallet: %w", err)
	}

	a.deps.logger().Info("wallet added",
		"component", "commands",
		"wallet", w.Name,
		"company", w.Company)

	return true, sendCard(ctx, cmd, card.Success("✅ Wallet Added Successfully", map[string]string{
		"Company": w.Company,
		"Wallet":  w.Name,
		"Address": w.Address,
	}, []string{"Company", "Wallet", "Address"}))
}
