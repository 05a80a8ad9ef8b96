// Package balance fetches TRON wallet balances from public explorer APIs.
// Several endpoints are tried in order so one provider outage does not take
// balance checking down.
package balance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"walletbot/pkg/wallet"
)

const (
	// USDTContract is the mainnet TRC20 USDT token contract.
	USDTContract = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

	sunPerTRX = 1_000_000
	usdtScale = 1_000_000

	requestTimeout = 10 * time.Second
	// minRequestInterval spaces explorer calls to stay under free-tier
	// rate limits.
	minRequestInterval = 200 * time.Millisecond

	cacheTTL = 5 * time.Minute

	// maxConcurrentFetches bounds parallel explorer calls during a
	// multi-wallet fetch.
	maxConcurrentFetches = 3
)

var defaultEndpoints = []string{
	"https://api.trongrid.io",
	"https://api.tronstack.io",
	"https://api.tronscan.org",
}

var ErrAllEndpointsFailed = errors.New("all balance endpoints failed")

// Balance is one wallet's fetched holdings. Err is set when every endpoint
// failed for this wallet; the zero amounts are then meaningless.
type Balance struct {
	WalletName string
	Company    string
	Address    string
	TRX        float64
	USDT       float64
	Tokens     map[string]float64
	FetchedAt  time.Time
	Err        error
}

// Provider is the balance lookup surface command handlers depend on.
type Provider interface {
	Fetch(ctx context.Context, w wallet.Wallet) Balance
	FetchAll(ctx context.Context, wallets []wallet.Wallet) []Balance
}

// Client queries TRON explorer endpoints with failover, request spacing and
// a short-lived per-address cache.
type Client struct {
	httpClient   *http.Client
	endpoints    []string
	apiKey       string
	usdtContract string
	limiter      *rate.Limiter
	log          *slog.Logger

	mu    sync.Mutex
	cache map[string]Balance
	now   func() time.Time
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	APIKey       string
	Endpoints    []string
	USDTContract string
	HTTPClient   *http.Client
}

func NewClient(opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = defaultEndpoints
	}
	usdtContract := opts.USDTContract
	if usdtContract == "" {
		usdtContract = USDTContract
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		httpClient:   httpClient,
		endpoints:    endpoints,
		apiKey:       opts.APIKey,
		usdtContract: usdtContract,
		limiter:      rate.NewLimiter(rate.Every(minRequestInterval), 1),
		log:          log.With("component", "balance"),
		cache:        make(map[string]Balance),
		now:          time.Now,
	}
}

// Fetch returns one wallet's balance, preferring a cache entry younger than
// five minutes. A total lookup failure comes back inside the Balance rather
// than as a separate error so multi-wallet rendering stays uniform.
func (c *Client) Fetch(ctx context.Context, w wallet.Wallet) Balance {
	if cached, ok := c.cached(w.Address); ok {
		c.log.Debug("Using cached balance", "wallet", w.Name)
		cached.WalletName = w.Name
		cached.Company = w.Company
		return cached
	}

	result := Balance{
		WalletName: w.Name,
		Company:    w.Company,
		Address:    w.Address,
		FetchedAt:  c.now(),
	}

	account, err := c.fetchAccount(ctx, w.Address)
	if err != nil {
		c.log.Error("Balance fetch failed", "wallet", w.Name, "error", err)
		result.Err = err
		return result
	}

	result.TRX = float64(account.Balance) / sunPerTRX
	result.Tokens = account.tokens(c.usdtContract)
	result.USDT = result.Tokens["USDT"]

	c.store(w.Address, result)
	c.log.Info("Balance fetched", "wallet", w.Name, "trx", result.TRX, "usdt", result.USDT)
	return result
}

// FetchAll resolves every wallet's balance with bounded concurrency,
// preserving input order. Per-wallet failures land in the corresponding
// Balance.Err; the call itself always returns a full slice.
func (c *Client) FetchAll(ctx context.Context, wallets []wallet.Wallet) []Balance {
	results := make([]Balance, len(wallets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, w := range wallets {
		g.Go(func() error {
			results[i] = c.Fetch(gctx, w)
			return nil
		})
	}
	// Workers never return errors; failures ride in each Balance.Err.
	_ = g.Wait()

	return results
}

// ClearCache drops every cached balance.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]Balance)
}

func (c *Client) cached(address string) (Balance, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache[address]
	if !ok || c.now().Sub(entry.FetchedAt) > cacheTTL {
		return Balance{}, false
	}
	return entry, true
}

func (c *Client) store(address string, b Balance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[address] = b
}

// account is the normalized explorer view of one address.
type account struct {
	Balance int64
	// TRC20 maps token contract address to raw integer balance.
	TRC20 map[string]string
	// Named holds already-symbolized token amounts (tronscan style).
	Named map[string]float64
}

func (a account) tokens(usdtContract string) map[string]float64 {
	tokens := make(map[string]float64, len(a.Named)+1)
	for symbol, amount := range a.Named {
		if amount > 0 {
			tokens[symbol] = amount
		}
	}
	if raw, ok := a.TRC20[usdtContract]; ok {
		if value, err := strconv.ParseFloat(raw, 64); err == nil && value > 0 {
			tokens["USDT"] = value / usdtScale
		}
	}
	return tokens
}

// fetchAccount walks the endpoint list until one answers.
func (c *Client) fetchAccount(ctx context.Context, address string) (account, error) {
	var lastErr error
	for _, endpoint := range c.endpoints {
		acct, err := c.fetchFrom(ctx, endpoint, address)
		if err != nil {
			c.log.Warn("Balance endpoint failed", "endpoint", endpoint, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return acct, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no endpoints configured")
	}
	return account{}, fmt.Errorf("%w: %s", ErrAllEndpointsFailed, lastErr)
}

func (c *Client) fetchFrom(ctx context.Context, endpoint, address string) (account, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return account{}, err
	}

	var url string
	if strings.Contains(endpoint, "tronscan") {
		url = fmt.Sprintf("%s/api/account?address=%s", endpoint, address)
	} else {
		url = fmt.Sprintf("%s/v1/accounts/%s", endpoint, address)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return account{}, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" && strings.Contains(endpoint, "trongrid") {
		req.Header.Set("TRON-PRO-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return account{}, fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return account{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return account{}, fmt.Errorf("%s returned HTTP %d", endpoint, resp.StatusCode)
	}

	if strings.Contains(endpoint, "tronscan") {
		return parseTronscanAccount(body)
	}
	return parseTrongridAccount(body)
}

type trongridEnvelope struct {
	Success bool              `json:"success"`
	Data    []trongridAccount `json:"data"`
}

type trongridAccount struct {
	Balance int64               `json:"balance"`
	TRC20   []map[string]string `json:"trc20"`
}

func parseTrongridAccount(body []byte) (account, error) {
	var envelope trongridEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return account{}, fmt.Errorf("decode trongrid response: %w", err)
	}
	if !envelope.Success {
		return account{}, errors.New("trongrid reported failure")
	}
	if len(envelope.Data) == 0 {
		// Unfunded addresses have no account object yet.
		return account{}, nil
	}

	raw := envelope.Data[0]
	acct := account{Balance: raw.Balance, TRC20: make(map[string]string)}
	for _, entry := range raw.TRC20 {
		for contract, amount := range entry {
			acct.TRC20[contract] = amount
		}
	}
	return acct, nil
}

type tronscanAccount struct {
	Balance int64           `json:"balance"`
	Tokens  []tronscanToken `json:"tokens"`
}

type tronscanToken struct {
	TokenAbbr    string      `json:"tokenAbbr"`
	Balance      json.Number `json:"balance"`
	TokenDecimal int         `json:"tokenDecimal"`
}

func parseTronscanAccount(body []byte) (account, error) {
	var raw tronscanAccount
	if err := json.Unmarshal(body, &raw); err != nil {
		return account{}, fmt.Errorf("decode tronscan response: %w", err)
	}

	acct := account{Balance: raw.Balance, Named: make(map[string]float64)}
	for _, token := range raw.Tokens {
		if token.TokenAbbr == "" || token.TokenAbbr == "trx" {
			continue
		}
		value, err := token.Balance.Float64()
		if err != nil {
			continue
		}
		decimals := token.TokenDecimal
		if decimals <= 0 {
			decimals = 6
		}
		scale := 1.0
		for i := 0; i < decimals; i++ {
			scale *= 10
		}
		acct.Named[strings.ToUpper(token.TokenAbbr)] = value / scale
	}
	return acct, nil
}
