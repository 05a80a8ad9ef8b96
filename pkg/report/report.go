// Package report runs the scheduled daily balance summary. A cron
// expression decides when to fire; the rendered card is published onto the
// message bus addressed to the daily report surface of each target chat.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"walletbot/pkg/balance"
	"walletbot/pkg/bus"
	"walletbot/pkg/card"
	"walletbot/pkg/channel"
	"walletbot/pkg/config"
	"walletbot/pkg/wallet"
)

// DefaultCron fires at 17:00 UTC, midnight in GMT+7.
const DefaultCron = "0 17 * * *"

const fetchTimeout = 60 * time.Second

// Target is one chat that receives the daily report.
type Target struct {
	Channel string
	ChatID  string
}

// Scheduler evaluates the cron expression once a minute and posts the
// balance report when it matches.
type Scheduler struct {
	cfg      config.ReportConfig
	store    *wallet.Store
	balances balance.Provider
	mb       *bus.MessageBus
	targets  []Target
	gron     *gronx.Gronx
	log      *slog.Logger
	now      func() time.Time
}

func NewScheduler(cfg config.ReportConfig, store *wallet.Store, balances balance.Provider, mb *bus.MessageBus, targets []Target, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		balances: balances,
		mb:       mb,
		targets:  targets,
		gron:     gronx.New(),
		log:      log.With("component", "report"),
		now:      time.Now,
	}
}

func (s *Scheduler) cron() string {
	if s.cfg.Cron != "" {
		return s.cfg.Cron
	}
	return DefaultCron
}

// Run blocks until the context ends, firing the report on every cron match.
// Minute granularity: the expression is checked against each wall-clock
// minute exactly once.
func (s *Scheduler) Run(ctx context.Context) error {
	expr := s.cron()
	if !s.gron.IsValid(expr) {
		return fmt.Errorf("invalid report cron expression %q", expr)
	}
	if len(s.targets) == 0 {
		return fmt.Errorf("no report targets configured")
	}

	s.log.Info("Report scheduler started", "cron", expr, "targets", len(s.targets))

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	var lastFired time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			minute := s.now().UTC().Truncate(time.Minute)
			if minute.Equal(lastFired) {
				continue
			}
			due, err := s.gron.IsDue(expr, minute)
			if err != nil {
				s.log.Error("Cron evaluation failed", "error", err)
				continue
			}
			if !due {
				continue
			}
			lastFired = minute
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("Daily report failed", "error", err)
			}
		}
	}
}

// RunOnce fetches every configured wallet and publishes the report card.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	wallets, err := s.store.List()
	if err != nil {
		return fmt.Errorf("load wallets: %w", err)
	}
	if len(wallets) == 0 {
		s.log.Info("Skipping daily report, no wallets configured")
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	balances := s.balances.FetchAll(fetchCtx, wallets)

	at := s.now().UTC().Add(time.Duration(s.cfg.UTCOffsetHours) * time.Hour)
	payload, err := card.DailyReport(balances, at).JSON()
	if err != nil {
		return fmt.Errorf("render report card: %w", err)
	}

	for _, target := range s.targets {
		msg := bus.OutboundMessage{
			Channel:  target.Channel,
			ChatID:   target.ChatID,
			Kind:     bus.KindCard,
			Content:  payload,
			Metadata: map[string]string{channel.MetadataTopic: channel.TopicDailyReport},
		}
		if !s.mb.PublishOutbound(ctx, msg) {
			return fmt.Errorf("publish report to %s/%s: bus closed", target.Channel, target.ChatID)
		}
	}

	s.log.Info("Daily report published", "wallets", len(wallets), "targets", len(s.targets))
	return nil
}
