// Package settings reads and writes the persisted pricing configuration.
// Stored rows override the process defaults key by key.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/pricing"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// ErrUnknownKey is returned by Update for a key outside pricing.Keys.
var ErrUnknownKey = errors.New("settings: unknown pricing key")

// Entry is one effective configuration value.
type Entry struct {
	Key         string          `json:"key"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description,omitempty"`
	Persisted   bool            `json:"persisted"`
}

// Source loads pricing parameters from the store.
type Source struct {
	store    store.Store
	defaults pricing.Params
	logger   *slog.Logger
}

func NewSource(st store.Store, defaults pricing.Params, logger *slog.Logger) *Source {
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{store: st, defaults: defaults, logger: logger}
}

// Defaults returns the process-level parameters.
func (s *Source) Defaults() pricing.Params { return s.defaults }

// Load returns the effective parameters. When the table cannot be read,
// is empty, or yields invalid parameters, Load returns the defaults
// together with the reason.
func (s *Source) Load(ctx context.Context) (pricing.Params, error) {
	entries, err := s.store.ListConfig(ctx)
	if err != nil {
		return s.defaults, fmt.Errorf("read pricing config: %w", err)
	}
	if len(entries) == 0 {
		return s.defaults, nil
	}

	p := s.defaults
	for _, e := range entries {
		v, _ := e.Value.Float64()
		if !p.Set(e.Key, v) {
			s.logger.Warn("ignoring unknown pricing key", "key", e.Key)
		}
	}
	if err := p.Validate(); err != nil {
		return s.defaults, fmt.Errorf("stored pricing config: %w", err)
	}
	return p, nil
}

// Entries lists every key with its effective value.
func (s *Source) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.store.ListConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("read pricing config: %w", err)
	}
	stored := make(map[string]model.ConfigEntry, len(rows))
	for _, r := range rows {
		stored[r.Key] = r
	}

	out := make([]Entry, 0, len(pricing.Keys))
	for _, key := range pricing.Keys {
		if row, ok := stored[key]; ok {
			out = append(out, Entry{Key: key, Value: row.Value, Description: row.Description, Persisted: true})
			continue
		}
		v, _ := s.defaults.Get(key)
		out = append(out, Entry{Key: key, Value: decimal.NewFromFloat(v)})
	}
	return out, nil
}

// Update persists the given keys after checking that the resulting
// parameter set is valid. Nothing is written when any key is rejected.
func (s *Source) Update(ctx context.Context, values map[string]decimal.Decimal) (pricing.Params, error) {
	current, err := s.Load(ctx)
	if err != nil {
		s.logger.Warn("pricing config unreadable, updating over defaults", "err", err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	next := current
	for _, k := range keys {
		v, _ := values[k].Float64()
		if !next.Set(k, v) {
			return current, fmt.Errorf("%w: %s", ErrUnknownKey, k)
		}
	}
	if err := next.Validate(); err != nil {
		return current, err
	}

	for _, k := range keys {
		if err := s.store.SetConfig(ctx, k, values[k]); err != nil {
			return current, fmt.Errorf("write pricing config %s: %w", k, err)
		}
	}
	s.logger.Info("pricing config updated", "keys", keys)
	return next, nil
}
