// Package scheduler periodically recomputes every team's price from its
// inflow and records it as a price tick. It only touches team prices and
// the tick history, never positions or trades.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ssugameworks/invest-system-backend/internal/metrics"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/pricing"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// DefaultSpec is the recalculation period.
const DefaultSpec = "@every 10s"

// ParamsSource supplies the pricing parameters for a cycle. On error it
// still returns usable fallback parameters.
type ParamsSource interface {
	Load(ctx context.Context) (pricing.Params, error)
}

// Publisher receives each new tick.
type Publisher interface {
	PublishPrice(tick model.PriceTick)
}

// Summary describes one recalculation cycle.
type Summary struct {
	At        time.Time `json:"at"`
	Teams     int       `json:"teams"`
	Updated   int       `json:"updated"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Duration  string    `json:"duration"`
	ParamsErr string    `json:"paramsError,omitempty"`
}

// Scheduler runs price recalculation cycles. Cycles never overlap.
type Scheduler struct {
	store     store.Store
	params    ParamsSource
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	spec      string

	mu sync.Mutex
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPublisher sends every new tick to p.
func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithSpec sets the cron schedule, e.g. "@every 10s".
func WithSpec(spec string) Option {
	return func(s *Scheduler) { s.spec = spec }
}

func New(st store.Store, params ParamsSource, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		store:  st,
		params: params,
		logger: logger,
		now:    time.Now,
		spec:   DefaultSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecalculatePrices runs one cycle. Per-team failures are logged and
// counted; the error return is reserved for failing to list teams.
func (s *Scheduler) RecalculatePrices(ctx context.Context) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	now := s.now().UTC()
	sum := Summary{At: now}

	params, err := s.params.Load(ctx)
	if err != nil {
		s.logger.Warn("using default pricing config", "err", err)
		sum.ParamsErr = err.Error()
	}

	teams, err := s.store.ListTeams(ctx)
	if err != nil {
		return sum, fmt.Errorf("list teams: %w", err)
	}
	sum.Teams = len(teams)

	for _, team := range teams {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		inserted, err := s.recalcTeam(ctx, params, team, now)
		if err != nil {
			sum.Failed++
			metrics.RecalcTeams.WithLabelValues("failed").Inc()
			s.logger.Error("price recalculation failed", "team_id", team.ID, "err", err)
			continue
		}
		metrics.RecalcTeams.WithLabelValues("ok").Inc()
		if inserted {
			sum.Updated++
		} else {
			sum.Skipped++
		}
	}

	elapsed := time.Since(start)
	metrics.RecalcDuration.Observe(elapsed.Seconds())
	sum.Duration = elapsed.String()
	s.logger.Info("prices recalculated",
		"teams", sum.Teams,
		"updated", sum.Updated,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"at", now,
	)
	return sum, nil
}

// recalcTeam records a tick and caches the price. A tick already present
// for the same instant is kept and the cached price is still refreshed.
func (s *Scheduler) recalcTeam(ctx context.Context, params pricing.Params, team model.Team, now time.Time) (bool, error) {
	price := params.Price(team.Money, team.P0)
	tick := model.PriceTick{
		TeamID: team.ID,
		Round:  pricing.Round1,
		Price:  price,
		TickTS: now,
	}
	inserted, err := s.store.InsertPriceTick(ctx, &tick)
	if err != nil {
		return false, fmt.Errorf("insert tick: %w", err)
	}
	if err := s.store.SetTeamPrice(ctx, team.ID, price); err != nil {
		return false, fmt.Errorf("set price: %w", err)
	}

	metrics.TeamPrice.WithLabelValues(strconv.FormatInt(team.ID, 10)).Set(float64(price))
	if inserted && s.publisher != nil {
		s.publisher.PublishPrice(tick)
	}
	return inserted, nil
}

// Run recalculates on the configured schedule until ctx is cancelled.
// A tick that fires while the previous cycle is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err := c.AddFunc(s.spec, func() {
		if _, err := s.RecalculatePrices(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("price recalculation cycle failed", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", s.spec, err)
	}

	s.logger.Info("price scheduler started", "spec", s.spec)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("price scheduler stopped")
	return nil
}
