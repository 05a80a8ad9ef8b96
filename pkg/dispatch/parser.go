package dispatch

import (
	"strings"

	"walletbot/pkg/bus"
)

// Parser detects and tokenizes commands in normalized messages. Quoted
// argument parsing is a handler-local concern; the parser only splits on
// whitespace.
type Parser struct {
	prefix string
}

func NewParser(prefix string) *Parser {
	if strings.TrimSpace(prefix) == "" {
		prefix = "/"
	}
	return &Parser{prefix: prefix}
}

// IsCommand reports whether the message starts with the command prefix and
// has at least one non-whitespace character after it.
func (p *Parser) IsCommand(msg bus.InboundMessage) bool {
	content := strings.TrimSpace(msg.Content)
	if !strings.HasPrefix(content, p.prefix) {
		return false
	}
	return strings.TrimSpace(content[len(p.prefix):]) != ""
}

// ParseCommand splits the content after the prefix on whitespace. The first
// token, lowercased, is the command name; the rest are args. Non-commands
// yield ("", nil).
func (p *Parser) ParseCommand(msg bus.InboundMessage) (string, []string) {
	if !p.IsCommand(msg) {
		return "", nil
	}

	content := strings.TrimSpace(msg.Content)
	parts := strings.Fields(content[len(p.prefix):])
	if len(parts) == 0 {
		return "", nil
	}

	return strings.ToLower(parts[0]), parts[1:]
}

// FilterAutomated drops messages authored by any non-human account. Without
// this the bot would react to its own replies.
func FilterAutomated(msgs []bus.InboundMessage) []bus.InboundMessage {
	kept := make([]bus.InboundMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.FromBot {
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}

// FilterByThread keeps only messages originating in the given thread.
func FilterByThread(msgs []bus.InboundMessage, threadID string) []bus.InboundMessage {
	kept := make([]bus.InboundMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ThreadID != threadID {
			continue
		}
		kept = append(kept, msg)
	}
	return kept
}
