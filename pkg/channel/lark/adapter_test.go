package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"walletbot/pkg/bus"
	"walletbot/pkg/channel"
	"walletbot/pkg/config"
)

func testAdapter(t *testing.T, restrict bool) (*Adapter, *bus.MessageBus) {
	t.Helper()

	mb := bus.NewMessageBus()
	t.Cleanup(mb.Close)

	adapter, err := NewAdapter(config.LarkConfig{
		AppID:     "cli_test",
		AppSecret: "secret",
		ChatID:    "oc-default",
		Topics: config.Topics{
			Commands:    config.TopicRef{ThreadID: "omt-commands", MessageID: "om-anchor-commands"},
			DailyReport: config.TopicRef{ThreadID: "omt-report", MessageID: "om-anchor-report"},
		},
	}, restrict, mb, nil)
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	return adapter, mb
}

func postEvent(t *testing.T, adapter *Adapter, payload string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/lark/events", bytes.NewReader([]byte(payload)))
	rec := httptest.NewRecorder()
	adapter.handleWebhook(rec, req)
	return rec
}

func TestWebhookURLVerification(t *testing.T) {
	adapter, _ := testAdapter(t, false)

	rec := postEvent(t, adapter, `{"type": "url_verification", "challenge": "abc123"}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["challenge"] != "abc123" {
		t.Fatalf("challenge = %q", body["challenge"])
	}
}

func TestWebhookPublishesMessage(t *testing.T) {
	adapter, mb := testAdapter(t, false)

	rec := postEvent(t, adapter, `{
		"header": {"event_id": "ev-1", "event_type": "im.message.receive_v1"},
		"event": {
			"sender": {"sender_id": {"open_id": "ou-1"}, "sender_type": "user"},
			"message": {"message_id": "om-1", "chat_id": "oc-1", "thread_id": "omt-x", "content": "{\"text\": \"/help\"}"}
		}
	}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message published")
	}
	if msg.EventID != "ev-1" || msg.Content != "/help" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestWebhookThreadRestriction(t *testing.T) {
	adapter, mb := testAdapter(t, true)

	// Wrong thread: dropped.
	postEvent(t, adapter, `{
		"header": {"event_id": "ev-1", "event_type": "im.message.receive_v1"},
		"event": {
			"sender": {"sender_id": {"open_id": "ou-1"}},
			"message": {"message_id": "om-1", "chat_id": "oc-1", "thread_id": "omt-elsewhere", "content": "{\"text\": \"/help\"}"}
		}
	}`)

	// Commands thread: accepted.
	postEvent(t, adapter, `{
		"header": {"event_id": "ev-2", "event_type": "im.message.receive_v1"},
		"event": {
			"sender": {"sender_id": {"open_id": "ou-1"}},
			"message": {"message_id": "om-2", "chat_id": "oc-1", "thread_id": "omt-commands", "content": "{\"text\": \"/help\"}"}
		}
	}`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("commands-thread message missing")
	}
	if msg.EventID != "ev-2" {
		t.Fatalf("wrong message passed the filter: %+v", msg)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	adapter, mb := testAdapter(t, false)

	rec := postEvent(t, adapter, `{
		"header": {"event_id": "ev-1", "event_type": "im.chat.updated_v1"},
		"event": {}
	}`)
	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("unexpected inbound for non-message event")
	}
}

func TestWebhookRejectsBadJSON(t *testing.T) {
	adapter, _ := testAdapter(t, false)

	rec := postEvent(t, adapter, `{nope`)
	if rec.Code != 400 {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRenderOutboundText(t *testing.T) {
	msgType, content, err := renderOutbound(bus.OutboundMessage{
		Kind:    bus.KindText,
		Content: "hello",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msgType != "text" {
		t.Fatalf("msgType = %q", msgType)
	}

	var body map[string]string
	if err := json.Unmarshal([]byte(content), &body); err != nil {
		t.Fatalf("content not JSON: %v", err)
	}
	if body["text"] != "hello" {
		t.Fatalf("text = %q", body["text"])
	}
}

func TestRenderOutboundErrorPrefix(t *testing.T) {
	_, content, err := renderOutbound(bus.OutboundMessage{
		Kind:    bus.KindText,
		Content: "it broke",
		IsError: true,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var body map[string]string
	json.Unmarshal([]byte(content), &body)
	if body["text"] != "❌ it broke" {
		t.Fatalf("text = %q", body["text"])
	}
}

func TestRenderOutboundCardPassthrough(t *testing.T) {
	cardJSON := `{"config": {}, "elements": []}`
	msgType, content, err := renderOutbound(bus.OutboundMessage{
		Kind:    bus.KindCard,
		Content: cardJSON,
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if msgType != "interactive" || content != cardJSON {
		t.Fatalf("render = %q %q", msgType, content)
	}
}

func TestTopicAnchorRouting(t *testing.T) {
	adapter, _ := testAdapter(t, false)

	if got := adapter.topicAnchor(channel.TopicCommands); got != "om-anchor-commands" {
		t.Fatalf("commands anchor = %q", got)
	}
	if got := adapter.topicAnchor(channel.TopicDailyReport); got != "om-anchor-report" {
		t.Fatalf("report anchor = %q", got)
	}
	if got := adapter.topicAnchor(channel.TopicQuickGuide); got != "" {
		t.Fatalf("unconfigured quickguide anchor = %q", got)
	}
	if got := adapter.topicAnchor("bogus"); got != "" {
		t.Fatalf("unknown topic anchor = %q", got)
	}
}

func TestNewAdapterRequiresCredentials(t *testing.T) {
	mb := bus.NewMessageBus()
	defer mb.Close()

	if _, err := NewAdapter(config.LarkConfig{}, false, mb, nil); err == nil {
		t.Fatal("missing credentials should fail")
	}
}
