// Package reputation tracks per-IP whitelist and blacklist membership.
package reputation

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"
)

const (
	whitelistPrefix = "whitelist:ip:"
	blacklistPrefix = "blacklist:ip:"
)

// Entry is one whitelist or blacklist record. Matching is exact; no CIDR or
// wildcard forms.
type Entry struct {
	IP      string    `json:"ip"`
	Reason  string    `json:"reason,omitempty"`
	AddedAt time.Time `json:"addedAt"`
}

// Store manages dynamic IP reputation entries in the key-value store, plus a
// static in-process whitelist checked first without a store round-trip.
type Store struct {
	client  Client
	logger  *slog.Logger
	static  map[string]struct{}
	timeout time.Duration
}

// NewStore creates a reputation store. staticWhitelist entries are always
// trusted and never require a store lookup.
func NewStore(client Client, staticWhitelist []string, logger *slog.Logger) *Store {
	static := make(map[string]struct{}, len(staticWhitelist))
	for _, ip := range staticWhitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			static[ip] = struct{}{}
		}
	}

	return &Store{
		client:  client,
		logger:  logger.With("component", "reputation"),
		static:  static,
		timeout: 100 * time.Millisecond,
	}
}

// AddToWhitelist adds or overwrites a whitelist entry. ttl of 0 means no
// expiry.
func (s *Store) AddToWhitelist(ctx context.Context, ip, reason string, ttl time.Duration) error {
	return s.add(ctx, whitelistPrefix+ip, ip, reason, ttl)
}

// RemoveFromWhitelist removes a whitelist entry.
func (s *Store) RemoveFromWhitelist(ctx context.Context, ip string) error {
	return s.client.Del(ctx, whitelistPrefix+ip)
}

// IsWhitelisted reports whitelist membership. The static whitelist is
// consulted first; only a miss costs a store round-trip.
func (s *Store) IsWhitelisted(ctx context.Context, ip string) (bool, error) {
	if _, ok := s.static[ip]; ok {
		return true, nil
	}
	return s.exists(ctx, whitelistPrefix+ip)
}

// AddToBlacklist adds or overwrites a blacklist entry. ttl of 0 means no
// expiry.
func (s *Store) AddToBlacklist(ctx context.Context, ip, reason string, ttl time.Duration) error {
	return s.add(ctx, blacklistPrefix+ip, ip, reason, ttl)
}

// RemoveFromBlacklist removes a blacklist entry.
func (s *Store) RemoveFromBlacklist(ctx context.Context, ip string) error {
	return s.client.Del(ctx, blacklistPrefix+ip)
}

// IsBlacklisted reports blacklist membership.
func (s *Store) IsBlacklisted(ctx context.Context, ip string) (bool, error) {
	return s.exists(ctx, blacklistPrefix+ip)
}

// ListWhitelist returns all dynamic whitelist entries.
func (s *Store) ListWhitelist(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, whitelistPrefix)
}

// ListBlacklist returns all blacklist entries.
func (s *Store) ListBlacklist(ctx context.Context) ([]Entry, error) {
	return s.list(ctx, blacklistPrefix)
}

func (s *Store) add(ctx context.Context, key, ip, reason string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	entry := Entry{IP: ip, Reason: reason, AddedAt: time.Now().UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, string(data), ttl)
}

func (s *Store) exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	found, err := s.client.Exists(ctx, key)
	if err != nil {
		s.logger.Warn("reputation lookup failed", "key", key, "error", err)
		return false, err
	}
	return found, nil
}

func (s *Store) list(ctx context.Context, prefix string) ([]Entry, error) {
	keys, err := s.client.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(keys))
	for _, key := range keys {
		value, found, err := s.client.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			// Expired between SCAN and GET
			continue
		}

		var entry Entry
		if err := json.Unmarshal([]byte(value), &entry); err != nil {
			// Tolerate records written by older versions
			entry = Entry{IP: strings.TrimPrefix(key, prefix)}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
