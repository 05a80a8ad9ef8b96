package commands

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"walletbot/pkg/balance"
	"walletbot/pkg/bus"
	"walletbot/pkg/config"
	"walletbot/pkg/dispatch"
	"walletbot/pkg/wallet"
)

const (
	addrA = "TLa2f6VPqF9jDi6tisZyzmyC3t35986n6b"
	addrB = "TEhmKXCPgX6LyjQ3t9skuSyUQBxwaWfY4K"
	addrC = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
)

type memSink struct {
	mu        sync.Mutex
	responses []string
	kinds     []bus.OutboundKind
	errors    []string
	fail      error
}

func (s *memSink) SendResponse(_ context.Context, content string, kind bus.OutboundKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.responses = append(s.responses, content)
	s.kinds = append(s.kinds, kind)
	return nil
}

func (s *memSink) SendError(_ context.Context, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.errors = append(s.errors, content)
	return nil
}

func (s *memSink) lastResponse(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.responses) == 0 {
		t.Fatal("no responses sent")
	}
	return s.responses[len(s.responses)-1]
}

type fakeProvider struct {
	mu      sync.Mutex
	fetched [][]wallet.Wallet
	result  func(w wallet.Wallet) balance.Balance
}

func (f *fakeProvider) Fetch(_ context.Context, w wallet.Wallet) balance.Balance {
	if f.result != nil {
		return f.result(w)
	}
	return balance.Balance{WalletName: w.Name, Company: w.Company, Address: w.Address}
}

func (f *fakeProvider) FetchAll(ctx context.Context, wallets []wallet.Wallet) []balance.Balance {
	f.mu.Lock()
	f.fetched = append(f.fetched, wallets)
	f.mu.Unlock()
	out := make([]balance.Balance, len(wallets))
	for i, w := range wallets {
		out[i] = f.Fetch(ctx, w)
	}
	return out
}

func (f *fakeProvider) lastFetch(t *testing.T) []wallet.Wallet {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.fetched) == 0 {
		t.Fatal("no fetch recorded")
	}
	return f.fetched[len(f.fetched)-1]
}

func testDeps(t *testing.T) (Deps, *fakeProvider) {
	t.Helper()
	provider := &fakeProvider{}
	deps := Deps{
		Store:          wallet.NewStore(filepath.Join(t.TempDir(), "wallets.json"), nil),
		Balances:       provider,
		UTCOffsetHours: 7,
	}
	return deps, provider
}

func commandContext(sink *memSink, command string, args ...string) *dispatch.CommandContext {
	return &dispatch.CommandContext{
		Command:   command,
		Args:      args,
		SenderID:  "tester",
		ChatID:    "chat-1",
		Channel:   "lark",
		RequestID: "req-1",
		Sink:      sink,
		Config:    config.DispatchConfig{},
	}
}

func mustAdd(t *testing.T, deps Deps, company, name, address string) {
	t.Helper()
	err := deps.Store.Add(wallet.Wallet{Company: company, Name: name, Address: address})
	if err != nil {
		t.Fatalf("seed wallet %s: %v", name, err)
	}
}

func TestRegisterAllNamesAndAliases(t *testing.T) {
	deps, _ := testDeps(t)
	reg := dispatch.NewRegistry(nil)
	RegisterAll(reg, deps)

	wantPrimaries := []string{"add", "check", "help", "list", "remove", "start"}
	names := reg.List()
	if len(names) != len(wantPrimaries) {
		t.Fatalf("registered commands = %v, want %v", names, wantPrimaries)
	}
	for _, alias := range []string{"h", "?", "begin", "ls", "create", "del", "bal", "balance"} {
		if _, ok := reg.Resolve(alias); !ok {
			t.Fatalf("alias %q did not resolve", alias)
		}
	}
}

func TestExtractQuoted(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{`"KZP" "KZP WDB2" "` + addrA + `"`, []string{"KZP", "KZP WDB2", addrA}},
		{`'single' "double"`, []string{"single", "double"}},
		{`no quotes here`, nil},
		{`""`, []string{""}},
	}
	for _, tc := range cases {
		got := extractQuoted(tc.in)
		if len(got) != len(tc.want) {
			t.Fatalf("extractQuoted(%q) = %v, want %v", tc.in, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("extractQuoted(%q)[%d] = %q, want %q", tc.in, i, got[i], tc.want[i])
			}
		}
	}
}

func TestAddHappyPath(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}
	h := NewAdd(deps)

	ok, err := h.Handle(context.Background(), commandContext(sink, "add",
		strings.Fields(`"KZP" "KZP WDB2" "`+addrA+`"`)...))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}

	payload := sink.lastResponse(t)
	if !strings.Contains(payload, "Wallet Added Successfully") {
		t.Fatalf("success card missing title: %s", payload)
	}
	if !strings.Contains(payload, addrA) {
		t.Fatalf("success card missing address: %s", payload)
	}

	wallets, err := deps.Store.List()
	if err != nil || len(wallets) != 1 {
		t.Fatalf("store contents = %v (%v), want one wallet", wallets, err)
	}
	if wallets[0].Name != "KZP WDB2" || wallets[0].Company != "KZP" {
		t.Fatalf("stored wallet = %+v", wallets[0])
	}
}

func TestAddNoArgsShowsUsage(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewAdd(deps).Handle(context.Background(), commandContext(sink, "add"))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want usage card with (true, nil)", ok, err)
	}
	if !strings.Contains(sink.lastResponse(t), "/add") {
		t.Fatal("usage card missing command usage")
	}
}

func TestAddWrongArgCount(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewAdd(deps).Handle(context.Background(),
		commandContext(sink, "add", `"only"`, `"two"`))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if ok {
		t.Fatal("wrong arg count must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "found 2") {
		t.Fatalf("error card missing arg count: %s", sink.lastResponse(t))
	}
}

func TestAddDuplicate(t *testing.T) {
	deps, _ := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	sink := &memSink{}

	ok, err := NewAdd(deps).Handle(context.Background(), commandContext(sink, "add",
		strings.Fields(`"KZP" "KZP WDB2" "`+addrB+`"`)...))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if ok {
		t.Fatal("duplicate must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "already exists") {
		t.Fatalf("unexpected error card: %s", sink.lastResponse(t))
	}
}

func TestAddInvalidAddress(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewAdd(deps).Handle(context.Background(), commandContext(sink, "add",
		strings.Fields(`"KZP" "KZP WDB2" "not-an-address"`)...))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if ok {
		t.Fatal("invalid address must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "Invalid TRC20 address") {
		t.Fatalf("unexpected error card: %s", sink.lastResponse(t))
	}
}

func TestRemoveHappyPath(t *testing.T) {
	deps, _ := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	sink := &memSink{}

	ok, err := NewRemove(deps).Handle(context.Background(),
		commandContext(sink, "remove", strings.Fields(`"KZP WDB2"`)...))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}
	if !strings.Contains(sink.lastResponse(t), "Wallet Removed") {
		t.Fatalf("unexpected card: %s", sink.lastResponse(t))
	}

	if n, _ := deps.Store.Count(); n != 0 {
		t.Fatalf("wallet count after remove = %d, want 0", n)
	}
}

func TestRemoveUnknownWallet(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewRemove(deps).Handle(context.Background(),
		commandContext(sink, "remove", `"ghost"`))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if ok {
		t.Fatal("unknown wallet must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "not configured") {
		t.Fatalf("unexpected card: %s", sink.lastResponse(t))
	}
}

func TestRemoveNoArgsShowsUsage(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewRemove(deps).Handle(context.Background(), commandContext(sink, "remove"))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}
	if !strings.Contains(sink.lastResponse(t), "/remove") {
		t.Fatal("usage card missing command usage")
	}
}

func TestListGroupsByCompany(t *testing.T) {
	deps, _ := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	mustAdd(t, deps, "KZP", "KZP 96G1", addrB)
	mustAdd(t, deps, "ACME", "Treasury", addrC)
	sink := &memSink{}

	ok, err := NewList(deps).Handle(context.Background(), commandContext(sink, "list"))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}

	payload := sink.lastResponse(t)
	for _, want := range []string{
		"Configured Wallets (3 total)",
		"🏢 **ACME**",
		"🏢 **KZP**",
		"• **KZP WDB2**: " + addrA,
		"Use **/check**",
	} {
		if !strings.Contains(payload, want) {
			t.Fatalf("list card missing %q:\n%s", want, payload)
		}
	}
	if strings.Index(payload, "ACME") > strings.Index(payload, "KZP 96G1") {
		t.Fatal("companies not sorted")
	}
}

func TestListEmptyStore(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewList(deps).Handle(context.Background(), commandContext(sink, "list"))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if ok {
		t.Fatal("empty store must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "No wallets configured") {
		t.Fatalf("unexpected card: %s", sink.lastResponse(t))
	}
}

func TestCheckAllConfigured(t *testing.T) {
	deps, provider := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	mustAdd(t, deps, "KZP", "KZP 96G1", addrB)
	provider.result = func(w wallet.Wallet) balance.Balance {
		return balance.Balance{WalletName: w.Name, Company: w.Company, Address: w.Address, USDT: 100}
	}
	sink := &memSink{}

	ok, err := NewCheck(deps).Handle(context.Background(), commandContext(sink, "check"))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}

	if got := len(provider.lastFetch(t)); got != 2 {
		t.Fatalf("fetched %d wallets, want 2", got)
	}
	sink.mu.Lock()
	responses := len(sink.responses)
	sink.mu.Unlock()
	if responses != 2 {
		t.Fatalf("responses = %d, want checking card plus result card", responses)
	}
	if !strings.Contains(sink.lastResponse(t), "200.00") {
		t.Fatalf("result card missing total:\n%s", sink.lastResponse(t))
	}
}

func TestCheckFiltersByNameCaseInsensitive(t *testing.T) {
	deps, provider := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	mustAdd(t, deps, "KZP", "KZP 96G1", addrB)
	sink := &memSink{}

	ok, err := NewCheck(deps).Handle(context.Background(),
		commandContext(sink, "check", strings.Fields(`"kzp wdb2"`)...))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}

	fetched := provider.lastFetch(t)
	if len(fetched) != 1 || fetched[0].Name != "KZP WDB2" {
		t.Fatalf("fetched = %+v, want just KZP WDB2", fetched)
	}
}

func TestCheckExternalAddress(t *testing.T) {
	deps, provider := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	sink := &memSink{}

	ok, err := NewCheck(deps).Handle(context.Background(),
		commandContext(sink, "check", `"`+addrC+`"`))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}

	fetched := provider.lastFetch(t)
	if len(fetched) != 1 {
		t.Fatalf("fetched = %+v, want one external wallet", fetched)
	}
	if fetched[0].Company != "External" {
		t.Fatalf("company = %q, want External", fetched[0].Company)
	}
	if !strings.HasPrefix(fetched[0].Name, "External: ") {
		t.Fatalf("name = %q, want abbreviated external label", fetched[0].Name)
	}
}

func TestCheckUnknownNameReported(t *testing.T) {
	deps, _ := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	sink := &memSink{}

	ok, err := NewCheck(deps).Handle(context.Background(),
		commandContext(sink, "check", `"ghost"`))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}
	if !strings.Contains(sink.lastResponse(t), "ghost") {
		t.Fatalf("result card must mention the unresolved name:\n%s", sink.lastResponse(t))
	}
}

func TestCheckNoWalletsConfigured(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}

	ok, err := NewCheck(deps).Handle(context.Background(), commandContext(sink, "check"))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if ok {
		t.Fatal("empty store must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "No wallets configured") {
		t.Fatalf("unexpected card: %s", sink.lastResponse(t))
	}
}

func TestCheckDeduplicatesFilters(t *testing.T) {
	deps, provider := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	sink := &memSink{}

	ok, err := NewCheck(deps).Handle(context.Background(), commandContext(sink, "check",
		strings.Fields(`"KZP WDB2" "`+addrA+`"`)...))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}
	if got := len(provider.lastFetch(t)); got != 1 {
		t.Fatalf("fetched %d wallets, want 1 after dedup", got)
	}
}

func TestCheckSinkFailureIsFault(t *testing.T) {
	deps, _ := testDeps(t)
	mustAdd(t, deps, "KZP", "KZP WDB2", addrA)
	sink := &memSink{fail: errors.New("transport down")}

	_, err := NewCheck(deps).Handle(context.Background(), commandContext(sink, "check"))
	if err == nil {
		t.Fatal("sink failure must surface as a handler fault")
	}
}

func TestStartWelcome(t *testing.T) {
	deps, _ := testDeps(t)
	sink := &memSink{}
	h := NewStart(deps)
	h.now = func() time.Time { return time.Date(2025, 6, 1, 17, 0, 0, 0, time.UTC) }

	ok, err := h.Handle(context.Background(), commandContext(sink, "start"))
	if err != nil || !ok {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", ok, err)
	}

	text := sink.lastResponse(t)
	if !strings.Contains(text, "Welcome to Crypto Wallet Monitor Bot") {
		t.Fatalf("welcome text missing greeting:\n%s", text)
	}
	// 17:00 UTC shifted by the +7 offset.
	if !strings.Contains(text, "2025-06-02 00:00:00") {
		t.Fatalf("welcome text missing local timestamp:\n%s", text)
	}
	sink.mu.Lock()
	kind := sink.kinds[len(sink.kinds)-1]
	sink.mu.Unlock()
	if kind != bus.KindText {
		t.Fatalf("kind = %v, want KindText", kind)
	}
}

func TestHelpOverviewListsCommands(t *testing.T) {
	deps, _ := testDeps(t)
	reg := dispatch.NewRegistry(nil)
	RegisterAll(reg, deps)
	sink := &memSink{}

	help, ok := reg.Resolve("help")
	if !ok {
		t.Fatal("help handler not registered")
	}
	done, err := help.Handle(context.Background(), commandContext(sink, "help"))
	if err != nil || !done {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", done, err)
	}

	payload := sink.lastResponse(t)
	for _, want := range []string{"/add", "/remove", "/list", "/check", "/help", "/start", "Examples"} {
		if !strings.Contains(payload, want) {
			t.Fatalf("overview missing %q:\n%s", want, payload)
		}
	}
}

func TestHelpCommandDetail(t *testing.T) {
	deps, _ := testDeps(t)
	reg := dispatch.NewRegistry(nil)
	RegisterAll(reg, deps)
	sink := &memSink{}

	help, _ := reg.Resolve("help")
	done, err := help.Handle(context.Background(), commandContext(sink, "help", "/check"))
	if err != nil || !done {
		t.Fatalf("Handle = (%v, %v), want (true, nil)", done, err)
	}

	text := sink.lastResponse(t)
	if !strings.Contains(text, "**/check**") {
		t.Fatalf("detail missing command name:\n%s", text)
	}
	if !strings.Contains(text, "/balance") || !strings.Contains(text, "/bal") {
		t.Fatalf("detail missing aliases:\n%s", text)
	}
}

func TestHelpUnknownCommand(t *testing.T) {
	deps, _ := testDeps(t)
	reg := dispatch.NewRegistry(nil)
	RegisterAll(reg, deps)
	sink := &memSink{}

	help, _ := reg.Resolve("help")
	done, err := help.Handle(context.Background(), commandContext(sink, "help", "bogus"))
	if err != nil {
		t.Fatalf("Handle error = %v", err)
	}
	if done {
		t.Fatal("unknown command detail must be a soft failure")
	}
	if !strings.Contains(sink.lastResponse(t), "Unknown command") {
		t.Fatalf("unexpected card: %s", sink.lastResponse(t))
	}
}
