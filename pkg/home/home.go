// Package home resolves the bot's data directory and scaffolds the files a
// fresh install needs. The default location is ~/.walletbot; config and the
// wallet registry live inside it.
package home

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"walletbot/pkg/config"
)

const defaultDirName = ".walletbot"

// Resolve normalizes a data directory path and creates it when missing.
// An empty path falls back to ~/.walletbot; a leading ~ expands to the
// user's home directory.
func Resolve(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(homeDir, defaultDirName)
	}

	expanded, err := expandHome(trimmed)
	if err != nil {
		return "", err
	}

	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolve absolute data directory: %w", err)
	}

	cleanPath := filepath.Clean(absPath)
	if err := os.MkdirAll(cleanPath, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	resolved, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		return "", fmt.Errorf("resolve data directory: %w", err)
	}

	return filepath.Clean(resolved), nil
}

// ConfigPath returns the config file location inside the data directory.
func ConfigPath(root string) string {
	return filepath.Join(root, "config.json")
}

// WalletsPath returns the wallet registry location inside the data directory.
func WalletsPath(root string) string {
	return filepath.Join(root, "wallets.json")
}

// Scaffold writes a starter config and an empty wallet registry into the
// data directory. Existing files are left untouched.
func Scaffold(root string) error {
	if err := writeIfMissing(ConfigPath(root), starterConfig(root)); err != nil {
		return err
	}
	return writeIfMissing(WalletsPath(root), []byte("{}\n"))
}

func starterConfig(root string) []byte {
	cfg := config.Config{}
	cfg.Channels.Lark.Enabled = true
	cfg.Wallets.File = WalletsPath(root)
	cfg.Dispatch.RateLimitMax = config.DefaultRateLimitMax
	cfg.Dispatch.RateLimitWindowS = config.DefaultRateLimitWindowS
	cfg.Dispatch.MaxEventAgeS = config.DefaultMaxEventAgeS
	cfg.Dispatch.DedupTTLS = config.DefaultDedupTTLS
	cfg.Report.Enabled = true
	cfg.Report.UTCOffsetHours = 7

	content, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		// Config is a plain struct; marshalling cannot fail at runtime.
		panic(err)
	}
	return append(content, '\n')
}

func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}

	prefix := "~" + string(filepath.Separator)
	if strings.HasPrefix(path, prefix) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, prefix)), nil
	}

	return path, nil
}
