package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"walletbot/pkg/bus"
	"walletbot/pkg/card"
	"walletbot/pkg/dispatch"
)

// Help renders the command overview, or detail for one named command.
type Help struct {
	registry *dispatch.Registry
	deps     Deps
}

func NewHelp(registry *dispatch.Registry, deps Deps) *Help {
	return &Help{registry: registry, deps: deps}
}

func (h *Help) Descriptor() dispatch.Descriptor {
	return dispatch.Descriptor{
		Name:        "help",
		Aliases:     []string{"h", "?"},
		Description: "Show available commands and their descriptions",
		Usage:       "/help [command]",
		MinArgs:     0,
		MaxArgs:     1,
	}
}

func (h *Help) Handle(ctx context.Context, cmd *dispatch.CommandContext) (bool, error) {
	if len(cmd.Args) == 1 {
		return h.commandDetail(ctx, cmd, cmd.Args[0])
	}
	return true, sendCard(ctx, cmd, GuideCard(h.registry))
}

func (h *Help) commandDetail(ctx context.Context, cmd *dispatch.CommandContext, name string) (bool, error) {
	handler, ok := h.registry.Resolve(strings.TrimPrefix(name, cmd.Config.Prefix()))
	if !ok {
		return sendErrorCard(ctx, cmd, fmt.Sprintf("Unknown command: %s. Use /help to list commands.", name))
	}

	desc := handler.Descriptor()
	aliases := make([]string, 0, len(desc.Aliases))
	for _, alias := range desc.Aliases {
		aliases = append(aliases, "/"+alias)
	}

	text := fmt.Sprintf("**/%s**", desc.Name)
	if len(aliases) > 0 {
		text += fmt.Sprintf(" (aliases: %s)", strings.Join(aliases, ", "))
	}
	text += "\n" + desc.Description
	text += "\n**Usage:** " + desc.Usage

	return true, cmd.Sink.SendResponse(ctx, text, bus.KindText)
}

// GuideCard renders the command overview. The same card answers /help and
// is pinned to the quick guide topic when the gateway starts.
func GuideCard(registry *dispatch.Registry) card.Card {
	names := registry.List()
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		handler, ok := registry.Resolve(name)
		if !ok {
			continue
		}
		desc := handler.Descriptor()
		lines = append(lines, fmt.Sprintf("• **%s** - %s", desc.Usage, desc.Description))
	}

	return card.Card{
		"config": map[string]any{
			"wide_screen_mode": true,
			"enable_forward":   true,
		},
		"header": map[string]any{
			"template": card.TemplateBlue,
			"title":    map[string]any{"tag": "plain_text", "content": "🤖 Crypto Wallet Monitor Bot"},
		},
		"elements": []any{
			helpSection("🔐 **Wallet Management:**", lines),
			map[string]any{"tag": "hr"},
			helpSection("📝 **Examples:**", []string{
				`• **/add "KZP" "KZP WDB2" "TEhmKXCPgX6LyjQ3t9skuSyUQBxwaWfY4K"**`,
				`• **/remove "KZP WDB2"**`,
				"• **/list**",
				"• **/check**",
				`• **/check "KZP 96G1" "KZP WDB2"**`,
			}),
			map[string]any{"tag": "hr"},
			helpSection("⚠️ **Notes:**", bulleted(argumentNotes)),
			map[string]any{"tag": "hr"},
			helpSection("⚡ **Quick Actions:**", []string{
				"• Type **/check** to check all wallet balances",
				"• Type **/list** to see all configured wallets",
				"• Type **/start** to test bot connection",
			}),
		},
	}
}

func helpSection(title string, lines []string) map[string]any {
	content := title
	if len(lines) > 0 {
		content += "\n" + strings.Join(lines, "\n")
	}
	return map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	}
}

func bulleted(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, "• "+item)
	}
	return out
}
