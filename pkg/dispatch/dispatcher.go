package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"walletbot/pkg/bus"
	"walletbot/pkg/config"
)

// Result names the terminal state one inbound event reached.
type Result string

const (
	ResultIgnored     Result = "ignored"
	ResultStale       Result = "stale"
	ResultDuplicate   Result = "duplicate"
	ResultDenied      Result = "denied"
	ResultUnknown     Result = "unknown"
	ResultInvalidArgs Result = "invalid_args"
	ResultBusy        Result = "busy"
	ResultExecuted    Result = "executed"
	ResultSoftFailed  Result = "soft_failed"
	ResultFailed      Result = "failed"
)

// Dispatcher routes inbound events to command handlers exactly once.
//
// Pipeline per event: parse → staleness → dedup → middleware → registry
// lookup → single-flight lock → handler. Stale and duplicate events drop
// silently; denial, unknown command, busy and handler faults produce
// exactly one visible response. Nothing escapes the dispatcher boundary.
type Dispatcher struct {
	cfg        config.DispatchConfig
	registry   *Registry
	parser     *Parser
	deduper    *Deduper
	locks      *ExecLock
	middleware []Middleware
	sinks      SinkFactory
	events     *bus.MessageBus
	log        *slog.Logger
	now        func() time.Time
	maxAge     time.Duration
}

func NewDispatcher(cfg config.DispatchConfig, registry *Registry, sinks SinkFactory, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	maxAge := time.Duration(cfg.MaxEventAgeS) * time.Second
	if maxAge <= 0 {
		maxAge = config.DefaultMaxEventAgeS * time.Second
	}
	dedupTTL := time.Duration(cfg.DedupTTLS) * time.Second
	if dedupTTL <= 0 {
		dedupTTL = config.DefaultDedupTTLS * time.Second
	}

	return &Dispatcher{
		cfg:      cfg,
		registry: registry,
		parser:   NewParser(cfg.Prefix()),
		deduper:  NewDeduper(dedupTTL),
		locks:    NewExecLock(),
		sinks:    sinks,
		log:      log.With("component", "dispatch"),
		now:      time.Now,
		maxAge:   maxAge,
	}
}

// Use appends a middleware; predicates run in registration order and the
// first veto stops the chain.
func (d *Dispatcher) Use(mw Middleware) {
	d.middleware = append(d.middleware, mw)
}

// PublishEventsTo mirrors dispatch outcomes onto a message bus for
// observers such as the gateway status endpoint.
func (d *Dispatcher) PublishEventsTo(mb *bus.MessageBus) {
	d.events = mb
}

// Registry exposes the command table, e.g. for help rendering.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch runs one inbound event through the pipeline and returns the
// terminal state. It never returns an error: every failure path ends in a
// logged drop or a best-effort response.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage) Result {
	if msg.FromBot {
		d.log.Debug("Ignoring automated sender", "channel", msg.Channel, "sender_id", msg.SenderID)
		return ResultIgnored
	}
	if !d.parser.IsCommand(msg) {
		d.log.Debug("Ignoring non-command message", "channel", msg.Channel, "chat_id", msg.ChatID)
		return ResultIgnored
	}

	// Staleness comes before dedup bookkeeping: a stale event must not
	// poison the cache against a later fresh delivery of the same IDs.
	if msg.CreatedAtMillis > 0 {
		age := d.now().Sub(time.UnixMilli(msg.CreatedAtMillis))
		if age > d.maxAge {
			d.log.Info("Dropping stale event", "event_id", msg.EventID, "age_seconds", int(age.Seconds()))
			d.publishEvent(ctx, bus.EventCommandDropped, msg, "", "", "stale")
			return ResultStale
		}
	}

	if d.deduper.Seen(msg.EventID, msg.MessageID) {
		d.log.Warn("Dropping duplicate event", "event_id", msg.EventID, "message_id", msg.MessageID)
		d.publishEvent(ctx, bus.EventCommandDropped, msg, "", "", "duplicate")
		return ResultDuplicate
	}

	command, args := d.parser.ParseCommand(msg)
	cmd := &CommandContext{
		Command:   command,
		Args:      args,
		SenderID:  msg.SenderID,
		ChatID:    msg.ChatID,
		ThreadID:  msg.ThreadID,
		Channel:   msg.Channel,
		RequestID: uuid.NewString(),
		Sink:      d.sinks(msg),
		Config:    d.cfg,
	}
	log := d.log.With("command", command, "sender_id", cmd.SenderID, "request_id", cmd.RequestID)

	for _, mw := range d.middleware {
		ok, err := mw(ctx, cmd)
		if err != nil {
			log.Error("Middleware error", "error", err)
			d.publishEvent(ctx, bus.EventCommandDropped, msg, command, cmd.RequestID, "middleware_error")
			return ResultDenied
		}
		if !ok {
			log.Info("Middleware vetoed command")
			d.publishEvent(ctx, bus.EventCommandDropped, msg, command, cmd.RequestID, "vetoed")
			return ResultDenied
		}
	}

	handler, found := d.registry.Resolve(command)
	if !found {
		log.Info("Unknown command")
		d.respondUnknown(ctx, cmd)
		d.publishEvent(ctx, bus.EventCommandDropped, msg, command, cmd.RequestID, "unknown")
		return ResultUnknown
	}

	desc := handler.Descriptor()
	// Handlers see the canonical name even when invoked through an alias.
	cmd.Command = desc.Name
	if len(args) < desc.MinArgs || (desc.MaxArgs >= 0 && len(args) > desc.MaxArgs) {
		log.Info("Argument count out of bounds", "args", len(args))
		d.sendError(ctx, cmd, fmt.Sprintf("Usage: %s", desc.Usage))
		return ResultInvalidArgs
	}

	if desc.SingleFlight {
		if !d.locks.TryAcquire(desc.Name) {
			log.Warn("Command already running")
			d.sendError(ctx, cmd, fmt.Sprintf("Command /%s is already running. Try again once it finishes.", desc.Name))
			d.publishEvent(ctx, bus.EventCommandDropped, msg, command, cmd.RequestID, "busy")
			return ResultBusy
		}
		defer d.locks.Release(desc.Name)
	}

	started := d.now()
	ok, err := d.invoke(ctx, handler, cmd)
	elapsed := d.now().Sub(started)

	if err != nil {
		log.Error("Command failed", "error", err, "elapsed", elapsed)
		d.sendError(ctx, cmd, fmt.Sprintf("Command error: /%s: %s", command, shortError(err)))
		d.publishEvent(ctx, bus.EventCommandFailed, msg, command, cmd.RequestID, err.Error())
		return ResultFailed
	}
	if !ok {
		// Soft failure: the handler declined and has already told the
		// user whatever there is to tell.
		log.Warn("Command declined", "elapsed", elapsed)
		return ResultSoftFailed
	}

	log.Info("Command completed", "elapsed", elapsed)
	d.publishEvent(ctx, bus.EventCommandDispatched, msg, command, cmd.RequestID, "")
	return ResultExecuted
}

// invoke calls the handler, converting a panic into an error so the
// transport layer never sees one.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, cmd *CommandContext) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, cmd)
}

func (d *Dispatcher) respondUnknown(ctx context.Context, cmd *CommandContext) {
	names := d.registry.List()
	sort.Strings(names)
	for i, name := range names {
		names[i] = d.cfg.Prefix() + name
	}

	text := fmt.Sprintf("Unknown command: %s%s\nAvailable commands: %s\nUse %shelp for details.",
		d.cfg.Prefix(), cmd.Command, strings.Join(names, ", "), d.cfg.Prefix())
	if err := cmd.Sink.SendResponse(ctx, text, bus.KindText); err != nil {
		d.log.Error("Failed to send unknown-command response", "error", err)
	}
}

// sendError posts a failure-styled response, swallowing send failures so a
// broken notification path cannot take the pipeline down with it.
func (d *Dispatcher) sendError(ctx context.Context, cmd *CommandContext, text string) {
	if err := cmd.Sink.SendError(ctx, text); err != nil {
		d.log.Error("Failed to send error response", "command", cmd.Command, "error", err)
	}
}

func (d *Dispatcher) publishEvent(ctx context.Context, eventType bus.EventType, msg bus.InboundMessage, command, requestID, detail string) {
	if d.events == nil {
		return
	}

	event := bus.Event{
		Type:      eventType,
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		Command:   command,
		RequestID: requestID,
	}
	if eventType == bus.EventCommandFailed {
		event.Error = detail
	} else {
		event.Reason = detail
	}
	d.events.PublishEvent(ctx, event)
}

// shortError keeps internals out of user-visible text.
func shortError(err error) string {
	text := err.Error()
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
