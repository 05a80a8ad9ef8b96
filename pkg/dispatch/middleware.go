package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const accessDeniedText = "Access denied. You are not authorized to use this bot. Contact an administrator for access."

// Authorization rejects senders outside the allow-list. An empty allow-list
// is explicit open mode: everyone is accepted.
func Authorization(allowFrom []string, log *slog.Logger) Middleware {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "dispatch.auth")

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, id := range allowFrom {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	return func(ctx context.Context, cmd *CommandContext) (bool, error) {
		if len(allowed) == 0 {
			return true, nil
		}
		if _, ok := allowed[cmd.SenderID]; ok {
			return true, nil
		}

		log.Warn("Unauthorized command attempt", "command", cmd.Command, "sender_id", cmd.SenderID)
		if err := cmd.Sink.SendError(ctx, accessDeniedText); err != nil {
			log.Error("Failed to send denial response", "error", err)
		}
		return false, nil
	}
}

// maxTrackedSenders caps rate-limit bookkeeping so rotating sender IDs
// cannot exhaust memory.
const maxTrackedSenders = 4096

// RateLimiter enforces a per-sender sliding window: at most maxCommands
// accepted commands within the window. Safe for concurrent use.
type RateLimiter struct {
	mu          sync.Mutex
	maxCommands int
	window      time.Duration
	senders     map[string][]time.Time
	now         func() time.Time
	log         *slog.Logger
}

func NewRateLimiter(maxCommands int, window time.Duration, log *slog.Logger) *RateLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RateLimiter{
		maxCommands: maxCommands,
		window:      window,
		senders:     make(map[string][]time.Time),
		now:         time.Now,
		log:         log.With("component", "dispatch.ratelimit"),
	}
}

// Allow prunes timestamps outside the window, then admits and records the
// command unless the sender already hit the limit.
func (r *RateLimiter) Allow(senderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.window)

	recent := r.senders[senderID][:0]
	for _, at := range r.senders[senderID] {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}

	if len(recent) >= r.maxCommands {
		r.senders[senderID] = recent
		return false
	}

	if len(r.senders) >= maxTrackedSenders {
		for id := range r.senders {
			if id != senderID {
				delete(r.senders, id)
				break
			}
		}
	}

	r.senders[senderID] = append(recent, now)
	return true
}

// Middleware adapts the limiter into the dispatch chain, notifying the
// sender on rejection.
func (r *RateLimiter) Middleware() Middleware {
	return func(ctx context.Context, cmd *CommandContext) (bool, error) {
		if r.Allow(cmd.SenderID) {
			return true, nil
		}

		r.log.Warn("Rate limit exceeded", "command", cmd.Command, "sender_id", cmd.SenderID)
		text := fmt.Sprintf("Rate limit exceeded: at most %d commands per %d seconds. Please wait before sending more.",
			r.maxCommands, int(r.window.Seconds()))
		if err := cmd.Sink.SendError(ctx, text); err != nil {
			r.log.Error("Failed to send rate limit response", "error", err)
		}
		return false, nil
	}
}
