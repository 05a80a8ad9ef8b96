// Package gateway assembles the bot runtime: transport adapters feeding the
// message bus, the dispatch worker pool, the outbound sender loop, the
// report scheduler and the HTTP status endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"walletbot/pkg/balance"
	"walletbot/pkg/bus"
	"walletbot/pkg/channel"
	"walletbot/pkg/channel/lark"
	"walletbot/pkg/channel/telegram"
	"walletbot/pkg/commands"
	"walletbot/pkg/config"
	"walletbot/pkg/dispatch"
	"walletbot/pkg/report"
	"walletbot/pkg/wallet"
)

const (
	defaultHealthHost = "0.0.0.0"
	defaultHealthPort = 18790

	probeInterval = 30 * time.Second
)

// Service owns every long-running piece of the bot and supervises them
// under one context.
type Service struct {
	cfg        *config.Config
	log        *slog.Logger
	mb         *bus.MessageBus
	dispatcher *dispatch.Dispatcher
	adapters   []channel.Adapter
	reporter   *report.Scheduler

	// probe verifies transport credentials; readiness depends on it.
	probe func(ctx context.Context) error

	mu            sync.RWMutex
	startedAt     time.Time
	probeLastOKAt time.Time
	probeLastErr  string
	channelStates map[string]channelState
	dispatchStats dispatchStats
}

// dispatchStats aggregates the dispatcher's event stream for the status
// endpoints.
type dispatchStats struct {
	Dispatched  uint64 `json:"dispatched"`
	Dropped     uint64 `json:"dropped"`
	Failed      uint64 `json:"failed"`
	LastCommand string `json:"last_command,omitempty"`
	LastOutcome string `json:"last_outcome,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	LastAt      string `json:"last_at,omitempty"`
}

type channelState struct {
	Running bool   `json:"running"`
	Error   string `json:"error,omitempty"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	ProbeLastOKAt string                  `json:"probe_last_ok_at,omitempty"`
	ProbeLastErr  string                  `json:"probe_last_error,omitempty"`
	Channels      map[string]channelState `json:"channels"`
	Dispatch      dispatchStats           `json:"dispatch"`
}

// NewService wires the full pipeline from configuration: wallet store,
// balance client, command registry, dispatcher and the enabled adapters.
func NewService(cfg *config.Config, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	mb := bus.NewMessageBus()
	walletsFile := cfg.Wallets.File
	if walletsFile == "" {
		walletsFile = "wallets.json"
	}
	store := wallet.NewStore(walletsFile, log)
	balances := balance.NewClient(balance.Options{
		APIKey:       cfg.Tron.APIKey,
		Endpoints:    cfg.Tron.Endpoints,
		USDTContract: cfg.Tron.USDTContract,
	}, log)

	registry := dispatch.NewRegistry(log)
	commands.RegisterAll(registry, commands.Deps{
		Store:          store,
		Balances:       balances,
		UTCOffsetHours: cfg.Report.UTCOffsetHours,
		Log:            log,
	})

	sinks := func(msg bus.InboundMessage) dispatch.Sink {
		return channel.NewBusSink(mb, msg)
	}
	dispatcher := dispatch.NewDispatcher(cfg.Dispatch, registry, sinks, log)
	dispatcher.Use(dispatch.Authorization(cfg.Dispatch.AllowFrom, log))
	rateMax := cfg.Dispatch.RateLimitMax
	if rateMax <= 0 {
		rateMax = config.DefaultRateLimitMax
	}
	rateWindow := time.Duration(cfg.Dispatch.RateLimitWindowS) * time.Second
	if rateWindow <= 0 {
		rateWindow = config.DefaultRateLimitWindowS * time.Second
	}
	dispatcher.Use(dispatch.NewRateLimiter(rateMax, rateWindow, log).Middleware())
	dispatcher.PublishEventsTo(mb)

	s := &Service{
		cfg:           cfg,
		log:           log.With("component", "gateway.service"),
		mb:            mb,
		dispatcher:    dispatcher,
		channelStates: make(map[string]channelState),
	}

	var targets []report.Target
	if cfg.Channels.Lark.Enabled {
		adapter, err := lark.NewAdapter(cfg.Channels.Lark, cfg.Dispatch.RestrictToThreads, mb, log)
		if err != nil {
			return nil, fmt.Errorf("initialize lark channel: %w", err)
		}
		s.adapters = append(s.adapters, adapter)
		s.probe = adapter.Probe
		if cfg.Channels.Lark.ChatID != "" {
			targets = append(targets, report.Target{Channel: adapter.Name(), ChatID: cfg.Channels.Lark.ChatID})
		}
	}
	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Channels.Telegram, mb, log)
		if err != nil {
			return nil, fmt.Errorf("initialize telegram channel: %w", err)
		}
		s.adapters = append(s.adapters, adapter)
		if cfg.Channels.Telegram.ChatID != "" {
			targets = append(targets, report.Target{Channel: adapter.Name(), ChatID: cfg.Channels.Telegram.ChatID})
		}
	}
	for _, adapter := range s.adapters {
		s.channelStates[adapter.Name()] = channelState{}
	}

	if cfg.Report.Enabled {
		if len(targets) == 0 {
			return nil, errors.New("report.enabled requires a channel chat_id to post to")
		}
		s.reporter = report.NewScheduler(cfg.Report, store, balances, mb, targets, log)
	}

	return s, nil
}

// Dispatcher exposes the command pipeline, mainly for tests and the CLI.
func (s *Service) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// Run blocks until the context ends or a component fails fatally.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	if err := s.runProbe(ctx); err != nil {
		return err
	}

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	if s.probe != nil {
		go s.probeLoop(ctx)
	}

	errCh := make(chan error, len(s.adapters)+1)
	for _, adapter := range s.adapters {
		adapter := adapter
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	var workers sync.WaitGroup
	for i := 0; i < s.cfg.Dispatch.Workers(); i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.dispatchLoop(ctx)
		}()
	}
	go s.senderLoop(ctx)
	go s.eventLoop(ctx)

	if s.reporter != nil {
		go func() {
			err := s.reporter.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run report scheduler: %w", err)
			}
		}()
	}

	s.postQuickGuide(ctx)

	defer func() {
		s.mb.Close()
		workers.Wait()
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

// postQuickGuide pins the command overview to the quick guide topic so the
// chat always shows current usage. Skipped unless the topic is configured.
func (s *Service) postQuickGuide(ctx context.Context) {
	larkCfg := s.cfg.Channels.Lark
	if !larkCfg.Enabled || larkCfg.ChatID == "" || larkCfg.Topics.QuickGuide.MessageID == "" {
		return
	}

	payload, err := commands.GuideCard(s.dispatcher.Registry()).JSON()
	if err != nil {
		s.log.Error("Failed to render quick guide card", "error", err)
		return
	}

	s.mb.PublishOutbound(ctx, bus.OutboundMessage{
		Channel:  "lark",
		ChatID:   larkCfg.ChatID,
		Kind:     bus.KindCard,
		Content:  payload,
		Metadata: map[string]string{channel.MetadataTopic: channel.TopicQuickGuide},
	})
}

// dispatchLoop is one worker draining inbound messages into the dispatcher.
func (s *Service) dispatchLoop(ctx context.Context) {
	for {
		msg, ok := s.mb.ConsumeInbound(ctx)
		if !ok {
			return
		}
		result := s.dispatcher.Dispatch(ctx, msg)
		s.log.Debug("Dispatched inbound message",
			"channel", msg.Channel, "result", string(result))
	}
}

// senderLoop routes outbound messages back to the adapter that owns the
// destination channel. Delivery failures are logged, not fatal.
func (s *Service) senderLoop(ctx context.Context) {
	byName := make(map[string]channel.Adapter, len(s.adapters))
	for _, adapter := range s.adapters {
		byName[adapter.Name()] = adapter
	}

	for {
		msg, ok := s.mb.ConsumeOutbound(ctx)
		if !ok {
			return
		}
		adapter, found := byName[msg.Channel]
		if !found {
			s.log.Warn("Dropping outbound message for unknown channel", "channel", msg.Channel)
			continue
		}
		if err := adapter.Send(ctx, msg); err != nil {
			s.log.Error("Failed to deliver outbound message",
				"channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		}
	}
}

// eventLoop folds the dispatcher's event stream into the counters served
// by the status endpoints.
func (s *Service) eventLoop(ctx context.Context) {
	events, unsubscribe := s.mb.SubscribeEvents(ctx, 0)
	defer unsubscribe()

	for event := range events {
		s.recordEvent(event)
	}
}

func (s *Service) recordEvent(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case bus.EventCommandDispatched:
		s.dispatchStats.Dispatched++
	case bus.EventCommandDropped:
		s.dispatchStats.Dropped++
	case bus.EventCommandFailed:
		s.dispatchStats.Failed++
	}

	s.dispatchStats.LastCommand = event.Command
	s.dispatchStats.LastOutcome = string(event.Type)
	s.dispatchStats.LastError = event.Error
	s.dispatchStats.LastAt = event.At.Format(time.RFC3339)
}

func (s *Service) probeLoop(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.runProbe(ctx)
		}
	}
}

func (s *Service) runProbe(ctx context.Context) error {
	if s.probe == nil {
		s.mu.Lock()
		s.probeLastOKAt = time.Now().UTC()
		s.mu.Unlock()
		return nil
	}

	if err := s.probe(ctx); err != nil {
		s.mu.Lock()
		s.probeLastErr = err.Error()
		s.mu.Unlock()
		return fmt.Errorf("channel probe failed: %w", err)
	}

	s.mu.Lock()
	s.probeLastErr = ""
	s.probeLastOKAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	host := strings.TrimSpace(s.cfg.Gateway.Host)
	if host == "" {
		host = defaultHealthHost
	}

	port := s.cfg.Gateway.Port
	if port <= 0 {
		port = defaultHealthPort
	}

	addr := host + ":" + strconv.Itoa(port)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	probeLastOK := ""
	if !s.probeLastOKAt.IsZero() {
		probeLastOK = s.probeLastOKAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		ProbeLastOKAt: probeLastOK,
		ProbeLastErr:  s.probeLastErr,
		Channels:      channels,
		Dispatch:      s.dispatchStats,
	}
}

func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	anyRunning := false
	for _, state := range s.channelStates {
		if state.Running {
			anyRunning = true
			break
		}
	}
	if !anyRunning {
		return false
	}

	if s.probeLastOKAt.IsZero() {
		return false
	}
	return s.probeLastErr == ""
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
