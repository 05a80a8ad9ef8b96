// Package card builds Lark interactive card payloads: the balance table,
// usage and status cards, and the daily report variant.
package card

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"walletbot/pkg/balance"
)

// Card is an interactive card payload ready for Lark's msg_type
// "interactive".
type Card map[string]any

// JSON serializes the card for the message API.
func (c Card) JSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode card: %w", err)
	}
	return string(data), nil
}

// Header templates Lark supports for card accents.
const (
	TemplateBlue   = "blue"
	TemplateGreen  = "green"
	TemplateOrange = "orange"
	TemplateRed    = "red"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a USDT amount with thousands separators and two
// decimals, matching the table layout.
func FormatAmount(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}

func base(template, title, subtitle string, elements []any) Card {
	header := map[string]any{
		"template": template,
		"title":    plainText(title),
	}
	if subtitle != "" {
		header["subtitle"] = plainText(subtitle)
	}
	return Card{
		"config": map[string]any{
			"wide_screen_mode": true,
			"enable_forward":   true,
		},
		"header":   header,
		"elements": elements,
	}
}

func plainText(content string) map[string]any {
	return map[string]any{"tag": "plain_text", "content": content}
}

func markdownDiv(content string) map[string]any {
	return map[string]any{
		"tag":  "div",
		"text": map[string]any{"tag": "lark_md", "content": content},
	}
}

func divider() map[string]any {
	return map[string]any{"tag": "hr"}
}

func column(weight int, text map[string]any) map[string]any {
	return map[string]any{
		"tag":            "column",
		"width":          "weighted",
		"weight":         weight,
		"vertical_align": "center",
		"elements":       []any{map[string]any{"tag": "div", "text": text}},
	}
}

func row(background string, group, name, amount map[string]any) map[string]any {
	set := map[string]any{
		"tag":       "column_set",
		"flex_mode": "none",
		"columns": []any{
			column(1, group),
			column(2, name),
			column(1, amount),
		},
	}
	if background != "" {
		set["background_style"] = background
	}
	return set
}

func larkMD(content string) map[string]any {
	return map[string]any{"tag": "lark_md", "content": content}
}

// BalanceTable renders fetched balances as a grouped table with a grand
// total. Failed lookups are listed below the table instead of polluting it.
func BalanceTable(balances []balance.Balance, at time.Time) Card {
	return balanceCard(TemplateBlue, "🤖 Wallet Balance Check", balances, at)
}

// DailyReport is the scheduled variant of the balance table.
func DailyReport(balances []balance.Balance, at time.Time) Card {
	return balanceCard(TemplateGreen, "📊 Daily Crypto Balance Report", balances, at)
}

func balanceCard(template, title string, balances []balance.Balance, at time.Time) Card {
	var (
		total  float64
		failed []string
		rows   []any
	)

	elements := []any{
		markdownDiv(fmt.Sprintf("⏰ **Time:** %s GMT+7", at.Format("2006-01-02 15:04:05"))),
		markdownDiv(fmt.Sprintf("📊 **Total wallets checked:** %d", len(balances))),
		divider(),
		row("grey", larkMD("**Group**"), larkMD("**Wallet Name**"), larkMD("**Amount (USDT)**")),
	}

	for _, b := range balances {
		if b.Err != nil {
			failed = append(failed, b.WalletName)
			continue
		}
		total += b.USDT
		rows = append(rows, row("", plainText(b.Company), plainText(b.WalletName), plainText(FormatAmount(b.USDT))))
	}
	elements = append(elements, rows...)

	elements = append(elements,
		divider(),
		row("", larkMD("**TOTAL**"), plainText(""), larkMD(fmt.Sprintf("**%s**", FormatAmount(total)))),
	)

	if len(failed) > 0 {
		elements = append(elements,
			divider(),
			markdownDiv(fmt.Sprintf("❌ **Failed:** %s", joinNames(failed))),
		)
	}

	subtitle := fmt.Sprintf("Total: %s USDT", FormatAmount(total))
	return base(template, title, subtitle, elements)
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += ", "
		}
		out += name
	}
	return out
}

// Checking is the progress card posted while a balance fetch runs.
func Checking(walletCount int) Card {
	return base(TemplateBlue, "🔍 Checking Balances", "", []any{
		markdownDiv(fmt.Sprintf("Fetching balances for **%d** wallet(s). This can take up to 30 seconds...", walletCount)),
	})
}

// Usage renders command usage help with the standing argument notes.
func Usage(title, usage string, notes []string) Card {
	elements := []any{
		markdownDiv(fmt.Sprintf("**Usage:** `%s`", usage)),
	}
	if len(notes) > 0 {
		content := "⚠️ **Notes:**"
		for _, note := range notes {
			content += "\n• " + note
		}
		elements = append(elements, markdownDiv(content))
	}
	return base(TemplateOrange, title, "", elements)
}

// Error renders a failure card.
func Error(message string) Card {
	return base(TemplateRed, "❌ Error", "", []any{
		markdownDiv(message),
	})
}

// Success renders a confirmation card with a details section.
func Success(title string, details map[string]string, order []string) Card {
	elements := []any{
		markdownDiv("📋 **Details:**"),
	}
	for _, key := range order {
		value, ok := details[key]
		if !ok {
			continue
		}
		elements = append(elements, markdownDiv(fmt.Sprintf("**%s:** %s", key, value)))
	}
	return base(TemplateGreen, title, "", elements)
}
