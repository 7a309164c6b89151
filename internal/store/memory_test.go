package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

func i64(v int64) *int64 { return &v }

func seedTeam(t *testing.T, ms *store.MemoryStore, id int64) {
	t.Helper()
	if err := ms.CreateTeam(context.Background(), &model.Team{ID: id, Name: "team", P0: 1000}); err != nil {
		t.Fatalf("seed team: %v", err)
	}
}

func TestCreateUser_Conflicts(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.CreateUser(ctx, &model.User{Name: "brave fox", SchoolNumber: 1}); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateUser(ctx, &model.User{Name: "calm owl", SchoolNumber: 1}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate school number: err = %v", err)
	}
	if err := ms.CreateUser(ctx, &model.User{Name: "brave fox", SchoolNumber: 2}); !errors.Is(err, store.ErrConflict) {
		t.Errorf("duplicate name: err = %v", err)
	}
	exists, err := ms.UserNameExists(ctx, "brave fox")
	if err != nil || !exists {
		t.Errorf("UserNameExists = %v, %v", exists, err)
	}
}

func TestAccessTokenLookup(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	u := &model.User{Name: "a", SchoolNumber: 1}
	if err := ms.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	if _, err := ms.GetUserByToken(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("before login: err = %v", err)
	}
	if err := ms.SetAccessToken(ctx, u.ID, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := ms.SetAccessToken(ctx, u.ID, "t2"); err != nil {
		t.Fatal(err)
	}
	if _, err := ms.GetUserByToken(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("replaced token still valid: err = %v", err)
	}
	got, err := ms.GetUserByToken(ctx, "t2")
	if err != nil || got.ID != u.ID {
		t.Errorf("GetUserByToken = %+v, %v", got, err)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	users := []*model.User{
		{Name: "no-rank-low", SchoolNumber: 1, ROI: i64(-5)},
		{Name: "rank-2", SchoolNumber: 2, Rank: i64(2), ROI: i64(1)},
		{Name: "no-rank-null", SchoolNumber: 3},
		{Name: "rank-1", SchoolNumber: 4, Rank: i64(1), ROI: i64(0)},
		{Name: "no-rank-high", SchoolNumber: 5, ROI: i64(30)},
	}
	for _, u := range users {
		if err := ms.CreateUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ms.Leaderboard(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"rank-1", "rank-2", "no-rank-high", "no-rank-low", "no-rank-null"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d = %s, want %s", i, got[i].Name, name)
		}
	}

	page, _ := ms.Leaderboard(ctx, 4, 2)
	if len(page) != 1 || page[0].Name != "no-rank-null" {
		t.Errorf("last page = %+v", page)
	}
	if empty, _ := ms.Leaderboard(ctx, 10, 2); len(empty) != 0 {
		t.Errorf("past end = %d rows", len(empty))
	}
}

func TestInsertPriceTick_Idempotent(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 1)
	ts := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	inserted, err := ms.InsertPriceTick(ctx, &model.PriceTick{TeamID: 1, Round: 1, Price: 900, TickTS: ts})
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}
	inserted, err = ms.InsertPriceTick(ctx, &model.PriceTick{TeamID: 1, Round: 1, Price: 950, TickTS: ts})
	if err != nil || inserted {
		t.Fatalf("duplicate insert = %v, %v", inserted, err)
	}

	history, _ := ms.PriceHistory(ctx, 1, ts.Add(-time.Minute))
	if len(history) != 1 || history[0].Price != 900 {
		t.Errorf("history = %+v", history)
	}

	if _, err := ms.InsertPriceTick(ctx, &model.PriceTick{TeamID: 9, Round: 1, TickTS: ts}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown team: err = %v", err)
	}
}

func TestPriceHistoryAndLatest(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 1)
	seedTeam(t, ms, 2)
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	ticks := []model.PriceTick{
		{TeamID: 1, Round: 1, Price: 710, TickTS: base.Add(20 * time.Second)},
		{TeamID: 1, Round: 1, Price: 700, TickTS: base},
		{TeamID: 1, Round: 1, Price: 720, TickTS: base.Add(40 * time.Second)},
		{TeamID: 2, Round: 1, Price: 1000, TickTS: base.Add(10 * time.Second)},
	}
	for i := range ticks {
		if _, err := ms.InsertPriceTick(ctx, &ticks[i]); err != nil {
			t.Fatal(err)
		}
	}

	history, _ := ms.PriceHistory(ctx, 1, base.Add(10*time.Second))
	if len(history) != 2 || history[0].Price != 710 || history[1].Price != 720 {
		t.Errorf("history = %+v", history)
	}

	latest, _ := ms.LatestPrices(ctx)
	if len(latest) != 2 || latest[0].Price != 720 || latest[1].Price != 1000 {
		t.Errorf("latest = %+v", latest)
	}
}

func TestUpdateTeamPricing_Partial(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 1)

	got, err := ms.UpdateTeamPricing(ctx, 1, model.TeamPriceUpdate{P: i64(1200), Money: i64(500)})
	if err != nil {
		t.Fatal(err)
	}
	if got.P == nil || *got.P != 1200 || got.Money != 500 || got.P0 != 1000 {
		t.Errorf("team = %+v", got)
	}
	if _, err := ms.UpdateTeamPricing(ctx, 5, model.TeamPriceUpdate{P: i64(1)}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown team: err = %v", err)
	}
}

func TestInTx_RollbackOnError(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 1)
	u := &model.User{Name: "a", SchoolNumber: 1, Capital: 100}
	if err := ms.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := ms.InTx(ctx, func(tx store.Tx) error {
		if err := tx.SetTeamMoney(ctx, 1, 999); err != nil {
			return err
		}
		if err := tx.SavePosition(ctx, &model.Position{UserID: u.ID, TeamID: 1, Shares: decimal.NewFromInt(1)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	team, _ := ms.GetTeam(ctx, 1)
	if team.Money != 0 {
		t.Errorf("money = %d after rollback", team.Money)
	}
	if hs, _ := ms.ListHoldings(ctx, u.ID); len(hs) != 0 {
		t.Errorf("holdings = %d after rollback", len(hs))
	}
}

func TestInTx_CommitAndHoldingsJoin(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	seedTeam(t, ms, 2)
	seedTeam(t, ms, 1)
	u := &model.User{Name: "a", SchoolNumber: 1}
	if err := ms.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	err := ms.InTx(ctx, func(tx store.Tx) error {
		for _, teamID := range []int64{2, 1, 3} {
			p := &model.Position{UserID: u.ID, TeamID: teamID, Shares: decimal.NewFromInt(teamID)}
			if err := tx.SavePosition(ctx, p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	hs, _ := ms.ListHoldings(ctx, u.ID)
	if len(hs) != 3 {
		t.Fatalf("holdings = %d", len(hs))
	}
	for i, h := range hs {
		if h.TeamID != int64(i+1) {
			t.Errorf("holding %d team = %d", i, h.TeamID)
		}
	}
	if hs[2].Team != nil {
		t.Errorf("missing team should join as nil")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()

	if err := ms.SetConfig(ctx, "GAMMA", decimal.RequireFromString("0.6")); err != nil {
		t.Fatal(err)
	}
	if err := ms.SetConfig(ctx, "C1", decimal.NewFromInt(30000)); err != nil {
		t.Fatal(err)
	}
	entries, _ := ms.ListConfig(ctx)
	if len(entries) != 2 || entries[0].Key != "C1" || !entries[1].Value.Equal(decimal.RequireFromString("0.6")) {
		t.Errorf("entries = %+v", entries)
	}
}

func TestComments_OrderingAndAuthors(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	u := &model.User{Name: "bold lynx", SchoolNumber: 3, Department: "Math"}
	if err := ms.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}

	at := time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC)
	for _, c := range []*model.Comment{
		{TeamID: 1, AuthorID: u.ID, Body: "a", CreatedAt: at},
		{TeamID: 1, AuthorID: u.ID, Body: "b", CreatedAt: at},
		{TeamID: 1, AuthorID: 42, Body: "c", CreatedAt: at.Add(-time.Minute)},
		{TeamID: 2, AuthorID: u.ID, Body: "d", CreatedAt: at},
	} {
		if err := ms.CreateComment(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ms.ListTeamComments(ctx, 1, time.Time{}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Body != "b" || got[1].Body != "a" || got[2].Body != "c" {
		t.Fatalf("team comments = %+v", got)
	}
	if got[0].AuthorName != "bold lynx" || got[0].AuthorDepartment != "Math" || got[2].AuthorName != "" {
		t.Errorf("authors = %q, %q", got[0].AuthorName, got[2].AuthorName)
	}

	got, _ = ms.ListTeamComments(ctx, 1, at, 10)
	if len(got) != 1 || got[0].Body != "c" {
		t.Errorf("before %v: %+v", at, got)
	}

	feed, _ := ms.ListComments(ctx, 4, 2)
	if len(feed) != 2 || feed[0].ID != 3 || feed[1].ID != 2 {
		t.Errorf("feed = %+v", feed)
	}
	if n, _ := ms.CountComments(ctx); n != 4 {
		t.Errorf("count = %d", n)
	}
}
