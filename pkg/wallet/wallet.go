// Package wallet persists the monitored wallet registry as a JSON file.
// Records are keyed by wallet name; every write lands atomically so a crash
// mid-save never leaves a truncated registry behind.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

var (
	ErrDuplicateWallet = errors.New("wallet name already registered")
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrInvalidAddress  = errors.New("invalid TRC20 address")
)

// Wallet is one monitored TRON wallet.
type Wallet struct {
	Name    string `json:"wallet"`
	Company string `json:"company"`
	Address string `json:"address"`
}

// ValidateAddress checks the basic TRC20 shape: leading 'T' followed by
// alphanumerics, 33 to 35 characters total. On-chain existence is a
// separate, network-dependent question this package stays out of.
func ValidateAddress(address string) error {
	trimmed := strings.TrimSpace(address)
	if !strings.HasPrefix(trimmed, "T") {
		return fmt.Errorf("%w: must start with 'T'", ErrInvalidAddress)
	}
	if len(trimmed) < 33 || len(trimmed) > 35 {
		return fmt.Errorf("%w: length %d outside 33-35", ErrInvalidAddress, len(trimmed))
	}
	for _, r := range trimmed[1:] {
		isAlnum := (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if !isAlnum {
			return fmt.Errorf("%w: non-alphanumeric character %q", ErrInvalidAddress, r)
		}
	}
	return nil
}

// Store reads and writes the wallet registry file. Safe for concurrent use;
// each mutation reloads, applies, and rewrites under one lock so external
// edits to the file between calls are not clobbered.
type Store struct {
	mu   sync.Mutex
	path string
	log  *slog.Logger
}

func NewStore(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		path: path,
		log:  log.With("component", "wallet.store"),
	}
}

// Path returns the registry file location.
func (s *Store) Path() string {
	return s.path
}

// List returns every wallet sorted by company, then name. A missing
// registry file is an empty registry, not an error.
func (s *Store) List() ([]Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}

	wallets := make([]Wallet, 0, len(records))
	for name, record := range records {
		if record.Name == "" {
			record.Name = name
		}
		wallets = append(wallets, record)
	}
	sort.Slice(wallets, func(i, j int) bool {
		if wallets[i].Company != wallets[j].Company {
			return wallets[i].Company < wallets[j].Company
		}
		return wallets[i].Name < wallets[j].Name
	})
	return wallets, nil
}

// Add validates and inserts a wallet, rejecting duplicate names.
func (s *Store) Add(w Wallet) error {
	w.Name = strings.TrimSpace(w.Name)
	w.Company = strings.TrimSpace(w.Company)
	w.Address = strings.TrimSpace(w.Address)

	if w.Name == "" {
		return errors.New("wallet name must not be empty")
	}
	if w.Company == "" {
		return errors.New("company must not be empty")
	}
	if err := ValidateAddress(w.Address); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := records[w.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWallet, w.Name)
	}

	records[w.Name] = w
	if err := s.save(records); err != nil {
		return err
	}

	s.log.Info("Wallet added", "wallet", w.Name, "company", w.Company)
	return nil
}

// Remove deletes a wallet by name and returns the removed record.
func (s *Store) Remove(name string) (Wallet, error) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return Wallet{}, err
	}
	removed, exists := records[name]
	if !exists {
		return Wallet{}, fmt.Errorf("%w: %s", ErrWalletNotFound, name)
	}
	if removed.Name == "" {
		removed.Name = name
	}

	delete(records, name)
	if err := s.save(records); err != nil {
		return Wallet{}, err
	}

	s.log.Info("Wallet removed", "wallet", name, "company", removed.Company)
	return removed, nil
}

// Count returns the number of registered wallets.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// GroupByCompany buckets wallets under their company label, preserving the
// input ordering inside each bucket.
func GroupByCompany(wallets []Wallet) map[string][]Wallet {
	grouped := make(map[string][]Wallet)
	for _, w := range wallets {
		company := w.Company
		if company == "" {
			company = "Unknown"
		}
		grouped[company] = append(grouped[company], w)
	}
	return grouped
}

// Companies returns the sorted company labels present in a wallet list.
func Companies(wallets []Wallet) []string {
	seen := make(map[string]struct{})
	for _, w := range wallets {
		company := w.Company
		if company == "" {
			company = "Unknown"
		}
		seen[company] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for company := range seen {
		names = append(names, company)
	}
	sort.Strings(names)
	return names
}

func (s *Store) load() (map[string]Wallet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]Wallet), nil
		}
		return nil, fmt.Errorf("read wallet registry: %w", err)
	}
	if len(data) == 0 {
		return make(map[string]Wallet), nil
	}

	records := make(map[string]Wallet)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse wallet registry %s: %w", s.path, err)
	}
	return records, nil
}

// save writes to a temp file in the registry's directory and renames it
// into place.
func (s *Store) save(records map[string]Wallet) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode wallet registry: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".wallets-*.json")
	if err != nil {
		return fmt.Errorf("create temp registry file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp registry file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp registry file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace wallet registry: %w", err)
	}
	return nil
}
