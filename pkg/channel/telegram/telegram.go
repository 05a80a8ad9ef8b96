// Package telegram bridges Telegram updates into the message bus. Forum
// topic IDs map onto the thread field so topic scoping works the same way
// it does on Lark.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"walletbot/pkg/bus"
	"walletbot/pkg/config"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// Adapter long-polls Telegram and publishes text messages inbound.
type Adapter struct {
	cfg config.TelegramConfig
	mb  *bus.MessageBus
	bot *telego.Bot
	log *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter.
func NewAdapter(cfg config.TelegramConfig, mb *bus.MessageBus, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("channels.telegram.token is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg: cfg,
		mb:  mb,
		log: log.With("component", "channel.telegram"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run starts long polling and forwards text messages onto the bus.
func (a *Adapter) Run(ctx context.Context) error {
	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}
	a.bot = bot

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}
			a.acceptUpdate(ctx, update)
		}
	}
}

func (a *Adapter) acceptUpdate(ctx context.Context, update telego.Update) {
	message := update.Message
	if message == nil {
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		// Only text updates can carry commands.
		return
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	threadID := ""
	if message.MessageThreadID != 0 {
		threadID = strconv.Itoa(message.MessageThreadID)
	}
	if a.cfg.CommandsTopic != "" && threadID != a.cfg.CommandsTopic {
		a.log.Debug("Message outside commands topic", "thread_id", threadID)
		return
	}

	inbound := bus.InboundMessage{
		Channel:         channelName,
		EventID:         strconv.Itoa(update.UpdateID),
		MessageID:       strconv.Itoa(message.MessageID),
		SenderID:        strconv.FormatInt(message.From.ID, 10),
		ChatID:          chatID,
		ThreadID:        threadID,
		Content:         content,
		FromBot:         message.From.IsBot,
		CreatedAtMillis: int64(message.Date) * 1000,
	}

	a.log.Info("Received message",
		"chat_id", chatID,
		"sender_id", inbound.SenderID,
		"content", previewText(content))

	if !a.mb.PublishInbound(ctx, inbound) {
		a.log.Warn("Dropped inbound message, bus unavailable", "update_id", update.UpdateID)
	}
}

// Send delivers one outbound message. Cards are flattened to their text
// content because Telegram has no interactive card surface.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if a.bot == nil {
		return errors.New("telegram bot not running")
	}

	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	text := msg.Content
	if msg.Kind == bus.KindCard {
		text = cardToText(msg.Content)
	}
	if msg.IsError && !strings.HasPrefix(text, "❌") {
		text = "❌ " + text
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	params := tu.Message(tu.ID(chatID), text)
	if msg.ThreadID != "" {
		if threadID, err := strconv.Atoi(msg.ThreadID); err == nil {
			params.MessageThreadID = threadID
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := a.bot.SendMessage(sendCtx, params); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// cardToText flattens a Lark card payload into plain lines: header title,
// then every textual element in order. Markdown bold markers are dropped.
func cardToText(cardJSON string) string {
	var payload struct {
		Header struct {
			Title struct {
				Content string `json:"content"`
			} `json:"title"`
			Subtitle struct {
				Content string `json:"content"`
			} `json:"subtitle"`
		} `json:"header"`
		Elements []json.RawMessage `json:"elements"`
	}
	if err := json.Unmarshal([]byte(cardJSON), &payload); err != nil {
		return cardJSON
	}

	var lines []string
	if payload.Header.Title.Content != "" {
		lines = append(lines, payload.Header.Title.Content)
	}
	if payload.Header.Subtitle.Content != "" {
		lines = append(lines, payload.Header.Subtitle.Content)
	}
	for _, element := range payload.Elements {
		if line := elementText(element); line != "" {
			lines = append(lines, line)
		}
	}

	return strings.ReplaceAll(strings.Join(lines, "\n"), "**", "")
}

func elementText(raw json.RawMessage) string {
	var element struct {
		Tag  string `json:"tag"`
		Text struct {
			Content string `json:"content"`
		} `json:"text"`
		Columns []struct {
			Elements []struct {
				Text struct {
					Content string `json:"content"`
				} `json:"text"`
			} `json:"elements"`
		} `json:"columns"`
	}
	if err := json.Unmarshal(raw, &element); err != nil {
		return ""
	}

	switch element.Tag {
	case "div":
		return element.Text.Content
	case "column_set":
		var cells []string
		for _, col := range element.Columns {
			for _, cell := range col.Elements {
				if cell.Text.Content != "" {
					cells = append(cells, cell.Text.Content)
				}
			}
		}
		return strings.Join(cells, " | ")
	default:
		return ""
	}
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}
	return trimmed[:messagePreviewLimit] + "..."
}
