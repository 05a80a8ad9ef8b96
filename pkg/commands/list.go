package commands

import (
	"context"
	"fmt"
	"strings"

	"walletbot/pkg/card"
	"walletbot/pkg/dispatch"
	"walletbot/pkg/wallet"
)

// List shows the configured wallets grouped by company.
type List struct {
	deps Deps
}

func NewList(deps Deps) *List {
	return &List{deps: deps}
}

func (l *List) Descriptor() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name:        "list",
		Aliases:     []string{"ls", "show"},
		Description: "Show all configured wallets",
		Usage:       "/list",
		MinArgs:     0,
		MaxArgs:     0,
	}
}

func (l *List) Handle(ctx context.Context, cmd *dispatch.CommandContext) (bool, error) {
	wallets, err := l.deps.Store.List()
	if err != nil {
		return false, fmt.Errorf("load wallets: %w", err)
	}

	if len(wallets) == 0 {
		return sendErrorCard(ctx, cmd, `No wallets configured yet. Use **/add "company" "wallet" "address"** to register one.`)
	}

	return true, sendCard(ctx, cmd, walletListCard(wallets))
}

func walletListCard(wallets []wallet.Wallet) card.Card {
	grouped := wallet.GroupByCompany(wallets)
	companies := wallet.Companies(wallets)

	elements := []any{
		section(fmt.Sprintf("📋 **Configured Wallets (%d total)**", len(wallets))),
	}
	for i, company := range companies {
		var lines []string
		for _, w := range grouped[company] {
			lines = append(lines, fmt.Sprintf("• **%s**: %s", w.Name, w.Address))
		}
		elements = append(elements,
			section(fmt.Sprintf("🏢 **%s**", company)),
			section(strings.Join(lines, "\n")),
		)
		if i < len(companies)-1 {
			elements = append(elements, map[string]any{"tag": "hr"})
		}
	}
	elements = append(elements, section("💡 Use **/check** to see current balances"))

	return card.Card{
		"config": map[string]any{
			"wide_screen_mode": true,
			"enable_forward":   true,
		},
		"header": map[string]any{
			"template": card.TemplateBlue,
			"title":    map[string]any{"tag": "plain_text", "content": "📋 Wallet List"},
		},
		"elements": elements,
	}
}

func section(content string) map[string]any {
	return map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	}
}
