package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"walletbot/pkg/balance"
	"walletbot/pkg/card"
	"walletbot/pkg/dispatch"
	"walletbot/pkg/wallet"
)

// Check fetches live balances for all configured wallets, or for the
// quoted subset named in the arguments. Arguments may be wallet names
// (matched case-insensitively) or raw TRC20 addresses; an address that
// is not registered is still checked and labelled External.
type Check struct {
	deps Deps
	now  func() time.Time
}

func NewCheck(deps Deps) *Check {
	return &Check{deps: deps, now: time.Now}
}

func (c *Check) Descriptor() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name:         "check",
		Aliases:      []string{"balance", "bal"},
		Description:  "Check current wallet balances",
		Usage:        `/check ["wallet_name" ...]`,
		MinArgs:      0,
		MaxArgs:      -1,
		SingleFlight: true,
	}
}

func (c *Check) Handle(ctx context.Context, cmd *dispatch.CommandContext) (bool, error) {
	configured, err := c.deps.Store.List()
	if err != nil {
		return false, fmt.Errorf("load wallets: %w", err)
	}

	filters := extractQuoted(rawArgs(cmd))
	targets, notFound := selectTargets(configured, filters)

	if len(targets) == 0 && len(notFound) == 0 {
		return sendErrorCard(ctx, cmd,
			`No wallets configured yet. Use **/add "company" "wallet" "address"** to register one.`)
	}

	if err := sendCard(ctx, cmd, card.Checking(len(targets))); err != nil {
		return false, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, cmd.Config.BalanceTimeout())
	defer cancel()

	balances := c.deps.Balances.FetchAll(fetchCtx, targets)
	for _, name := range notFound {
		balances = append(balances, balance.Balance{
			WalletName: name,
			Err:        wallet.ErrWalletNotFound,
		})
	}

	at := c.now().UTC().Add(time.Duration(c.deps.UTCOffsetHours) * time.Hour)
	return true, sendCard(ctx, cmd, card.BalanceTable(balances, at))
}

// selectTargets resolves the argument filters against the configured
// wallets. With no filters every configured wallet is checked.
func selectTargets(configured []wallet.Wallet, filters []string) (targets []wallet.Wallet, notFound []string) {
	if len(filters) == 0 {
		return configured, nil
	}

	byName := make(map[string]wallet.Wallet, len(configured))
	byAddress := make(map[string]wallet.Wallet, len(configured))
	for _, w := range configured {
		byName[strings.ToLower(w.Name)] = w
		byAddress[w.Address] = w
	}

	seen := make(map[string]bool, len(filters))
	for _, f := range filters {
		if f == "" {
			continue
		}
		var w wallet.Wallet
		switch {
		case byName[strings.ToLower(f)].Address != "":
			w = byName[strings.ToLower(f)]
		case byAddress[f].Address != "":
			w = byAddress[f]
		case wallet.ValidateAddress(f) == nil:
			w = wallet.Wallet{
				Name:    externalLabel(f),
				Company: "External",
				Address: f,
			}
		default:
			notFound = append(notFound, f)
			continue
		}
		if seen[w.Address] {
			continue
		}
		seen[w.Address] = true
		targets = append(targets, w)
	}
	return targets, notFound
}

// externalLabel abbreviates an unregistered address for display.
func externalLabel(address string) string {
	if len(address) <= 11 {
		return "External: " + address
	}
	return fmt.Sprintf("External: %s...%s", address[:4], address[len(address)-4:])
}
