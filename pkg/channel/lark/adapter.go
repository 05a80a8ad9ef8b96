// Package lark receives Lark webhook events and delivers bot responses
// into configured topic threads.
package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"walletbot/pkg/bus"
	"walletbot/pkg/channel"
	"walletbot/pkg/config"
)

const (
	channelName = "lark"

	defaultWebhookPort = 3000
	defaultWebhookPath = "/lark/events"

	shutdownGrace = 5 * time.Second
)

// Adapter serves the Lark event webhook and sends responses through the
// Lark message API.
type Adapter struct {
	cfg               config.LarkConfig
	restrictToThreads bool
	client            *Client
	mb                *bus.MessageBus
	log               *slog.Logger
}

func NewAdapter(cfg config.LarkConfig, restrictToThreads bool, mb *bus.MessageBus, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.AppID) == "" || strings.TrimSpace(cfg.AppSecret) == "" {
		return nil, errors.New("channels.lark.app_id and app_secret are required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:               cfg,
		restrictToThreads: restrictToThreads,
		client:            NewClient(cfg.AppID, cfg.AppSecret, cfg.Domain),
		mb:                mb,
		log:               log.With("component", "channel.lark"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Probe verifies API credentials by fetching the bot identity.
func (a *Adapter) Probe(ctx context.Context) error {
	openID, err := a.client.GetBotInfo(ctx)
	if err != nil {
		return fmt.Errorf("lark bot probe: %w", err)
	}
	a.log.Info("Lark bot connected", "bot_open_id", openID)
	return nil
}

// Run serves the event webhook until the context ends.
func (a *Adapter) Run(ctx context.Context) error {
	port := a.cfg.WebhookPort
	if port <= 0 {
		port = defaultWebhookPort
	}
	path := a.cfg.WebhookPath
	if path == "" {
		path = defaultWebhookPath
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, a.handleWebhook)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.cfg.WebhookHost, port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("Lark webhook listening", "addr", server.Addr, "path", path)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("lark webhook server: %w", err)
		}
		return nil
	}
}

func (a *Adapter) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var envelope Envelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		a.log.Warn("Unparseable webhook payload", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if envelope.Type == "url_verification" {
		a.log.Info("Answering URL verification challenge")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": envelope.Challenge})
		return
	}

	if envelope.Header.EventType == eventTypeMessageReceive {
		a.acceptMessage(r.Context(), &envelope)
	} else if envelope.Header.EventType != "" {
		a.log.Debug("Ignoring event type", "event_type", envelope.Header.EventType)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"code": 0})
}

func (a *Adapter) acceptMessage(ctx context.Context, envelope *Envelope) {
	inbound := envelope.ToInbound()

	if !a.threadAllowed(inbound.ThreadID) {
		a.log.Debug("Message outside commands topic", "thread_id", inbound.ThreadID)
		return
	}

	a.log.Info("Received message",
		"event_id", inbound.EventID,
		"chat_id", inbound.ChatID,
		"sender_id", inbound.SenderID,
		"from_bot", inbound.FromBot)

	if !a.mb.PublishInbound(ctx, inbound) {
		a.log.Warn("Dropped inbound message, bus unavailable", "event_id", inbound.EventID)
	}
}

// threadAllowed gates messages to the commands topic when thread
// restriction is on. An unconfigured commands thread disables scoping.
func (a *Adapter) threadAllowed(threadID string) bool {
	if !a.restrictToThreads {
		return true
	}
	want := a.cfg.Topics.Commands.ThreadID
	if want == "" {
		return true
	}
	return threadID == want
}

// Send delivers one outbound message, replying into the addressed topic's
// thread when an anchor message is configured.
func (a *Adapter) Send(ctx context.Context, msg bus.OutboundMessage) error {
	msgType, content, err := renderOutbound(msg)
	if err != nil {
		return err
	}

	anchor := a.topicAnchor(msg.Metadata[channel.MetadataTopic])
	if anchor != "" {
		_, err := a.client.ReplyMessage(ctx, anchor, msgType, content)
		return err
	}

	chatID := msg.ChatID
	if chatID == "" {
		chatID = a.cfg.ChatID
	}
	if chatID == "" {
		return errors.New("no chat ID or topic anchor for lark send")
	}
	_, err = a.client.SendMessage(ctx, chatID, msgType, content)
	return err
}

func (a *Adapter) topicAnchor(topic string) string {
	switch topic {
	case channel.TopicQuickGuide:
		return a.cfg.Topics.QuickGuide.MessageID
	case channel.TopicDailyReport:
		return a.cfg.Topics.DailyReport.MessageID
	case channel.TopicCommands:
		return a.cfg.Topics.Commands.MessageID
	default:
		return ""
	}
}

func renderOutbound(msg bus.OutboundMessage) (msgType, content string, err error) {
	switch msg.Kind {
	case bus.KindCard:
		return "interactive", msg.Content, nil
	default:
		text := msg.Content
		if msg.IsError && !strings.HasPrefix(text, "❌") {
			text = "❌ " + text
		}
		data, err := json.Marshal(map[string]string{"text": text})
		if err != nil {
			return "", "", fmt.Errorf("encode text content: %w", err)
		}
		return "text", string(data), nil
	}
}
