package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/pricing"
	"github.com/ssugameworks/invest-system-backend/internal/scheduler"
	"github.com/ssugameworks/invest-system-backend/internal/settings"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

var fixed = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixed }

func seedTeam(t *testing.T, ms *store.MemoryStore, id, money, p0 int64) {
	t.Helper()
	if err := ms.CreateTeam(context.Background(), &model.Team{ID: id, Name: "t", Money: money, P0: p0}); err != nil {
		t.Fatalf("seed team: %v", err)
	}
}

func newScheduler(ms store.Store, opts ...scheduler.Option) *scheduler.Scheduler {
	src := settings.NewSource(ms, pricing.DefaultParams(), nil)
	return scheduler.New(ms, src, nil, append([]scheduler.Option{scheduler.WithClock(clock)}, opts...)...)
}

type recorder struct {
	mu    sync.Mutex
	ticks []model.PriceTick
}

func (r *recorder) PublishPrice(tick model.PriceTick) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, tick)
}

func TestRecalculatePrices_Floor(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 1, 0, 1000)
	rec := &recorder{}

	sum, err := newScheduler(ms, scheduler.WithPublisher(rec)).RecalculatePrices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Teams != 1 || sum.Updated != 1 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}

	team, _ := ms.GetTeam(ctx, 1)
	if team.P == nil || *team.P != 700 {
		t.Errorf("cached price = %v, want 700", team.P)
	}
	history, _ := ms.PriceHistory(ctx, 1, fixed)
	if len(history) != 1 || history[0].Price != 700 || history[0].Round != pricing.Round1 || !history[0].TickTS.Equal(fixed) {
		t.Errorf("history = %+v", history)
	}
	if len(rec.ticks) != 1 || rec.ticks[0].Price != 700 {
		t.Errorf("published = %+v", rec.ticks)
	}
}

func TestRecalculatePrices_UsesPersistedConfig(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	// E1 = 50 * 5000 / 5 = 50000, so an inflow of 50000 is par.
	_ = ms.SetConfig(ctx, "N", decimal.NewFromInt(50))
	_ = ms.SetConfig(ctx, "C1", decimal.NewFromInt(5000))
	_ = ms.SetConfig(ctx, "T", decimal.NewFromInt(5))
	seedTeam(t, ms, 1, 50000, 1000)
	seedTeam(t, ms, 2, 10_000_000, 1000)

	if _, err := newScheduler(ms).RecalculatePrices(ctx); err != nil {
		t.Fatal(err)
	}
	one, _ := ms.GetTeam(ctx, 1)
	two, _ := ms.GetTeam(ctx, 2)
	if *one.P != 1000 {
		t.Errorf("par price = %d, want 1000", *one.P)
	}
	if *two.P != 1500 {
		t.Errorf("capped price = %d, want 1500", *two.P)
	}
}

func TestRecalculatePrices_SameInstantIsSkipped(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 1, 0, 1000)
	s := newScheduler(ms)

	if _, err := s.RecalculatePrices(ctx); err != nil {
		t.Fatal(err)
	}
	sum, err := s.RecalculatePrices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Skipped != 1 || sum.Updated != 0 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if history, _ := ms.PriceHistory(ctx, 1, fixed); len(history) != 1 {
		t.Errorf("ticks = %d, want 1", len(history))
	}
}

// flakyStore fails price updates for one team.
type flakyStore struct {
	store.Store
	failTeam int64
}

func (f *flakyStore) SetTeamPrice(ctx context.Context, teamID, price int64) error {
	if teamID == f.failTeam {
		return errors.New("connection reset")
	}
	return f.Store.SetTeamPrice(ctx, teamID, price)
}

func TestRecalculatePrices_IsolatesTeamFailures(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		seedTeam(t, ms, id, 0, 1000)
	}

	sum, err := newScheduler(&flakyStore{Store: ms, failTeam: 2}).RecalculatePrices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Failed != 1 || sum.Updated != 2 {
		t.Errorf("summary = %+v", sum)
	}
	for _, id := range []int64{1, 3} {
		team, _ := ms.GetTeam(ctx, id)
		if team.P == nil || *team.P != 700 {
			t.Errorf("team %d price = %v", id, team.P)
		}
	}
	if team, _ := ms.GetTeam(ctx, 2); team.P != nil {
		t.Errorf("failed team got price %d", *team.P)
	}
}

type brokenSource struct{}

func (brokenSource) Load(context.Context) (pricing.Params, error) {
	return pricing.DefaultParams(), errors.New("relation does not exist")
}

func TestRecalculatePrices_ConfigErrorFallsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	seedTeam(t, ms, 1, 0, 1000)

	s := scheduler.New(ms, brokenSource{}, nil, scheduler.WithClock(clock))
	sum, err := s.RecalculatePrices(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.ParamsErr == "" || sum.Updated != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	ms := store.NewMemoryStore()
	seedTeam(t, ms, 1, 0, 1000)
	src := settings.NewSource(ms, pricing.DefaultParams(), nil)
	s := scheduler.New(ms, src, nil, scheduler.WithSpec("* * * * * *"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for {
		team, _ := ms.GetTeam(context.Background(), 1)
		if team.P != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("scheduler never ran")
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRun_BadSpec(t *testing.T) {
	s := scheduler.New(store.NewMemoryStore(), brokenSource{}, nil, scheduler.WithSpec("not a spec"))
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected schedule error")
	}
}
