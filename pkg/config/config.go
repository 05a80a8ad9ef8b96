package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	envLarkAppID        = "LARK_APP_ID"
	envLarkAppSecret    = "LARK_APP_SECRET"
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envTronAPIKey       = "TRON_API_KEY"
	envAllowFrom        = "WALLETBOT_ALLOW_FROM"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Channels ChannelsConfig `json:"channels"`
	Dispatch DispatchConfig `json:"dispatch"`
	Wallets  WalletsConfig  `json:"wallets"`
	Tron     TronConfig     `json:"tron"`
	Report   ReportConfig   `json:"report"`
	Gateway  GatewayConfig  `json:"gateway"`
	Logging  LoggingConfig  `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Lark     LarkConfig     `json:"lark"`
	Telegram TelegramConfig `json:"telegram"`
}

// LarkConfig configures the Lark/Feishu webhook channel and topic routing.
type LarkConfig struct {
	Enabled   bool   `json:"enabled"`
	AppID     string `json:"app_id"`
	AppSecret string `json:"app_secret"`
	// Domain defaults to the Lark global endpoint.
	Domain      string `json:"domain,omitempty"`
	ChatID      string `json:"chat_id"`
	WebhookHost string `json:"webhook_host,omitempty"`
	WebhookPort int    `json:"webhook_port,omitempty"`
	WebhookPath string `json:"webhook_path,omitempty"`
	Topics      Topics `json:"topics"`
}

// Topics maps the three bot surfaces to their thread and anchor message IDs.
// Replies to the anchor message land inside the topic thread.
type Topics struct {
	Commands    TopicRef `json:"commands"`
	QuickGuide  TopicRef `json:"quickguide"`
	DailyReport TopicRef `json:"dailyreport"`
}

// TopicRef identifies one topic thread and the message replies anchor to.
type TopicRef struct {
	ThreadID  string `json:"thread_id"`
	MessageID string `json:"message_id"`
}

// TelegramConfig configures the optional Telegram forum-topic channel.
type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	// ChatID is the group the scheduled daily report posts to.
	ChatID        string `json:"chat_id,omitempty"`
	CommandsTopic string `json:"commands_topic,omitempty"`
}

// DispatchConfig tunes the command pipeline: authorization, rate limiting
// and the freshness/duplicate windows.
type DispatchConfig struct {
	CommandPrefix     string   `json:"command_prefix,omitempty"`
	AllowFrom         []string `json:"allow_from,omitempty"`
	RateLimitMax      int      `json:"rate_limit_max,omitempty"`
	RateLimitWindowS  int      `json:"rate_limit_window_seconds,omitempty"`
	MaxEventAgeS      int      `json:"max_event_age_seconds,omitempty"`
	DedupTTLS         int      `json:"dedup_ttl_seconds,omitempty"`
	BalanceTimeoutS   int      `json:"balance_timeout_seconds,omitempty"`
	DispatchWorkers   int      `json:"dispatch_workers,omitempty"`
	RestrictToThreads bool     `json:"restrict_to_threads,omitempty"`
}

// WalletsConfig locates the JSON wallet registry file.
type WalletsConfig struct {
	File string `json:"file,omitempty"`
}

// TronConfig configures the blockchain explorer endpoints.
type TronConfig struct {
	APIKey    string   `json:"api_key,omitempty"`
	Endpoints []string `json:"endpoints,omitempty"`
	// USDTContract is the TRC20 contract address the balance lookup targets.
	USDTContract string `json:"usdt_contract,omitempty"`
}

// ReportConfig schedules the daily balance report.
type ReportConfig struct {
	Enabled bool `json:"enabled"`
	// Cron is a standard five-field cron expression evaluated in UTC.
	Cron string `json:"cron,omitempty"`
	// UTCOffsetHours shifts the timestamp printed on the report card.
	UTCOffsetHours int `json:"utc_offset_hours,omitempty"`
}

// GatewayConfig configures HTTP status endpoint bind settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Defaults used when the config file leaves a dispatch knob unset.
const (
	DefaultCommandPrefix    = "/"
	DefaultRateLimitMax     = 10
	DefaultRateLimitWindowS = 60
	DefaultMaxEventAgeS     = 60
	DefaultDedupTTLS        = 300
	DefaultBalanceTimeoutS  = 30
	DefaultDispatchWorkers  = 4
)

// Prefix returns the configured command prefix or "/".
func (d DispatchConfig) Prefix() string {
	if p := strings.TrimSpace(d.CommandPrefix); p != "" {
		return p
	}
	return DefaultCommandPrefix
}

// BalanceTimeout returns how long a balance check may run.
func (d DispatchConfig) BalanceTimeout() time.Duration {
	s := d.BalanceTimeoutS
	if s <= 0 {
		s = DefaultBalanceTimeoutS
	}
	return time.Duration(s) * time.Second
}

// Workers returns the dispatch worker pool size.
func (d DispatchConfig) Workers() int {
	if d.DispatchWorkers > 0 {
		return d.DispatchWorkers
	}
	return DefaultDispatchWorkers
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// Validate checks that every enabled surface has the settings it needs.
func (c *Config) Validate() error {
	if !c.Channels.Lark.Enabled && !c.Channels.Telegram.Enabled {
		return fmt.Errorf("no channels are enabled")
	}
	if c.Channels.Lark.Enabled {
		if strings.TrimSpace(c.Channels.Lark.AppID) == "" || strings.TrimSpace(c.Channels.Lark.AppSecret) == "" {
			return fmt.Errorf("channels.lark.app_id and app_secret are required")
		}
	}
	if c.Channels.Telegram.Enabled && strings.TrimSpace(c.Channels.Telegram.Token) == "" {
		return fmt.Errorf("channels.telegram.token is required")
	}
	return nil
}

// applyEnvOverrides injects secret-bearing settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if v := strings.TrimSpace(os.Getenv(envLarkAppID)); v != "" {
		cfg.Channels.Lark.AppID = v
	}
	if v := strings.TrimSpace(os.Getenv(envLarkAppSecret)); v != "" {
		cfg.Channels.Lark.AppSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(envTelegramBotToken)); v != "" {
		cfg.Channels.Telegram.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(envTronAPIKey)); v != "" {
		cfg.Tron.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv(envAllowFrom)); v != "" {
		cfg.Dispatch.AllowFrom = parseCSV(v)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is WALLETBOT_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv("WALLETBOT_CONFIG")); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("WALLETBOT_CONFIG does not point to a file: %s", value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".walletbot", "config.json"))
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s)", strings.Join(candidates, ", "))
}
