// Package channel defines the transport adapter contract and the bus-backed
// response sink shared by all adapters.
package channel

import (
	"context"
	"errors"

	"walletbot/pkg/bus"
)

// Adapter bridges one external chat transport into the message bus.
// Run publishes inbound messages until the context ends; Send delivers one
// outbound message back to the transport.
type Adapter interface {
	Name() string
	Run(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// Topic routing hints carried in outbound metadata.
const (
	MetadataTopic    = "topic"
	TopicCommands    = "commands"
	TopicQuickGuide  = "quickguide"
	TopicDailyReport = "dailyreport"
)

// BusSink publishes command responses onto the message bus, addressed back
// to the chat one inbound message arrived from. The owning adapter's sender
// loop performs the actual delivery.
type BusSink struct {
	mb     *bus.MessageBus
	origin bus.InboundMessage
	topic  string
}

// NewBusSink binds a sink to an inbound message's origin. Responses are
// routed to the commands topic unless overridden with WithTopic.
func NewBusSink(mb *bus.MessageBus, origin bus.InboundMessage) *BusSink {
	return &BusSink{mb: mb, origin: origin, topic: TopicCommands}
}

// WithTopic returns a sink copy addressing a different topic surface.
func (s *BusSink) WithTopic(topic string) *BusSink {
	copied := *s
	copied.topic = topic
	return &copied
}

func (s *BusSink) SendResponse(ctx context.Context, content string, kind bus.OutboundKind) error {
	return s.publish(ctx, content, kind, false)
}

func (s *BusSink) SendError(ctx context.Context, content string) error {
	return s.publish(ctx, content, bus.KindText, true)
}

func (s *BusSink) publish(ctx context.Context, content string, kind bus.OutboundKind, isError bool) error {
	msg := bus.OutboundMessage{
		Channel:  s.origin.Channel,
		ChatID:   s.origin.ChatID,
		ThreadID: s.origin.ThreadID,
		Kind:     kind,
		Content:  content,
		IsError:  isError,
		Metadata: map[string]string{MetadataTopic: s.topic},
	}
	if !s.mb.PublishOutbound(ctx, msg) {
		return errors.New("message bus closed")
	}
	return nil
}
