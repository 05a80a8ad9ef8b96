package dispatch

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"walletbot/pkg/bus"
)

// memSink records responses for assertions.
type memSink struct {
	mu        sync.Mutex
	responses []string
	errors    []string
	fail      error
}

func (s *memSink) SendResponse(ctx context.Context, content string, kind bus.OutboundKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.responses = append(s.responses, content)
	return nil
}

func (s *memSink) SendError(ctx context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.errors = append(s.errors, content)
	return nil
}

func (s *memSink) allErrors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.errors...)
}

func (s *memSink) allResponses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.responses...)
}

func testCommand(sink Sink, senderID string) *CommandContext {
	return &CommandContext{
		Command:  "list",
		SenderID: senderID,
		ChatID:   "oc-chat",
		Channel:  "lark",
		Sink:     sink,
	}
}

func TestAuthorizationOpenMode(t *testing.T) {
	mw := Authorization(nil, nil)

	ok, err := mw(context.Background(), testCommand(&memSink{}, "anyone"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("empty allow-list should accept every sender")
	}
}

func TestAuthorizationAllowed(t *testing.T) {
	mw := Authorization([]string{"ou-alice", "ou-bob"}, nil)

	ok, err := mw(context.Background(), testCommand(&memSink{}, "ou-bob"))
	if err != nil || !ok {
		t.Fatalf("listed sender should pass, got ok=%v err=%v", ok, err)
	}
}

func TestAuthorizationDenied(t *testing.T) {
	sink := &memSink{}
	mw := Authorization([]string{"ou-alice"}, nil)

	ok, err := mw(context.Background(), testCommand(sink, "ou-mallory"))
	if err != nil {
		t.Fatalf("denial is not an error: %v", err)
	}
	if ok {
		t.Fatal("unlisted sender should be vetoed")
	}

	errs := sink.allErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "Access denied") {
		t.Fatalf("expected a denial notification, got %v", errs)
	}
}

func TestAuthorizationSkipsBlankEntries(t *testing.T) {
	mw := Authorization([]string{"  ", ""}, nil)

	ok, _ := mw(context.Background(), testCommand(&memSink{}, "anyone"))
	if !ok {
		t.Fatal("blank-only allow-list should behave as open mode")
	}
}

func TestRateLimiterWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, nil)

	for i := 0; i < 3; i++ {
		if !rl.Allow("ou-alice") {
			t.Fatalf("command %d should be admitted", i+1)
		}
	}
	if rl.Allow("ou-alice") {
		t.Fatal("fourth command inside window should be rejected")
	}
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, time.Minute, nil)
	rl.now = func() time.Time { return now }

	rl.Allow("ou-alice")
	rl.Allow("ou-alice")
	if rl.Allow("ou-alice") {
		t.Fatal("limit reached, should reject")
	}

	now = now.Add(61 * time.Second)
	if !rl.Allow("ou-alice") {
		t.Fatal("window elapsed, should admit again")
	}
}

func TestRateLimiterPerSender(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, nil)

	rl.Allow("ou-alice")
	if !rl.Allow("ou-bob") {
		t.Fatal("one sender's burst must not affect another")
	}
}

func TestRateLimiterRejectionNotDoubleCounted(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(1, time.Minute, nil)
	rl.now = func() time.Time { return now }

	rl.Allow("ou-alice")
	rl.Allow("ou-alice")
	rl.Allow("ou-alice")

	now = now.Add(61 * time.Second)
	if !rl.Allow("ou-alice") {
		t.Fatal("rejected attempts must not extend the window")
	}
}

func TestRateLimiterMiddlewareNotifies(t *testing.T) {
	sink := &memSink{}
	rl := NewRateLimiter(1, time.Minute, nil)
	mw := rl.Middleware()

	cmd := testCommand(sink, "ou-alice")
	if ok, _ := mw(context.Background(), cmd); !ok {
		t.Fatal("first command should pass")
	}
	if ok, _ := mw(context.Background(), cmd); ok {
		t.Fatal("second command should be vetoed")
	}

	errs := sink.allErrors()
	if len(errs) != 1 || !strings.Contains(errs[0], "Rate limit exceeded") {
		t.Fatalf("expected a rate limit notification, got %v", errs)
	}
}

func TestRateLimiterTrackedSenderCap(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, nil)

	for i := 0; i < maxTrackedSenders+10; i++ {
		rl.Allow(fmt.Sprintf("sender-%d", i))
	}

	rl.mu.Lock()
	tracked := len(rl.senders)
	rl.mu.Unlock()
	if tracked > maxTrackedSenders {
		t.Fatalf("tracked senders %d exceeds cap %d", tracked, maxTrackedSenders)
	}
}
