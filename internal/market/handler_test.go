package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

var now = time.Date(2025, 5, 20, 15, 0, 0, 0, time.UTC)

func i64(v int64) *int64 { return &v }

func setup(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	h := NewHandler(ms, 150*time.Minute, nil)
	h.now = func() time.Time { return now }
	r := chi.NewRouter()
	r.Route("/api", h.Routes)
	return r, ms
}

func seedTeam(t *testing.T, ms *store.MemoryStore, id int64) {
	t.Helper()
	if err := ms.CreateTeam(context.Background(), &model.Team{ID: id, Name: fmt.Sprintf("team-%d", id), P0: 1000}); err != nil {
		t.Fatalf("seed team: %v", err)
	}
}

func seedTick(t *testing.T, ms *store.MemoryStore, teamID, price int64, at time.Time) {
	t.Helper()
	if _, err := ms.InsertPriceTick(context.Background(), &model.PriceTick{TeamID: teamID, Round: 1, Price: price, TickTS: at}); err != nil {
		t.Fatalf("seed tick: %v", err)
	}
}

func get(t *testing.T, h http.Handler, path string, dst any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	if dst != nil && rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return rec.Code
}

func TestTeams(t *testing.T) {
	h, ms := setup(t)

	var empty []model.Team
	if code := get(t, h, "/api/teams", &empty); code != http.StatusOK || empty == nil {
		t.Fatalf("empty list: code %d, %v", code, empty)
	}

	seedTeam(t, ms, 1)
	seedTeam(t, ms, 2)
	var teams []model.Team
	get(t, h, "/api/teams", &teams)
	if len(teams) != 2 {
		t.Fatalf("expected 2 teams, got %d", len(teams))
	}

	var team model.Team
	if code := get(t, h, "/api/teams/2", &team); code != http.StatusOK || team.Name != "team-2" {
		t.Errorf("get team: %d %+v", code, team)
	}
	if code := get(t, h, "/api/teams/9", nil); code != http.StatusNotFound {
		t.Errorf("missing team: got %d", code)
	}
	if code := get(t, h, "/api/teams/x", nil); code != http.StatusBadRequest {
		t.Errorf("bad id: got %d", code)
	}
}

func TestPriceHistory_Window(t *testing.T) {
	h, ms := setup(t)
	seedTeam(t, ms, 1)
	seedTick(t, ms, 1, 900, now.Add(-3*time.Hour))
	seedTick(t, ms, 1, 950, now.Add(-2*time.Hour))
	seedTick(t, ms, 1, 1000, now.Add(-time.Minute))

	var hist PriceHistory
	get(t, h, "/api/teams/1/prices", &hist)
	if len(hist.Ticks) != 2 || hist.Ticks[0].Price != 950 || hist.Ticks[1].Price != 1000 {
		t.Errorf("default window: %+v", hist.Ticks)
	}

	get(t, h, "/api/teams/1/prices?window=10m", &hist)
	if len(hist.Ticks) != 1 {
		t.Errorf("10m window: %+v", hist.Ticks)
	}

	for _, bad := range []string{"abc", "-1h", "1000h"} {
		if code := get(t, h, "/api/teams/1/prices?window="+bad, nil); code != http.StatusBadRequest {
			t.Errorf("window %q: got %d", bad, code)
		}
	}
}

func TestLatestPrices(t *testing.T) {
	h, ms := setup(t)
	seedTeam(t, ms, 1)
	seedTeam(t, ms, 2)
	seedTick(t, ms, 1, 900, now.Add(-time.Minute))
	seedTick(t, ms, 1, 910, now)
	seedTick(t, ms, 2, 1200, now)

	var ticks []model.PriceTick
	get(t, h, "/api/prices", &ticks)
	if len(ticks) != 2 || ticks[0].Price != 910 || ticks[1].Price != 1200 {
		t.Errorf("latest prices: %+v", ticks)
	}
}

func TestLeaderboard_Paging(t *testing.T) {
	h, ms := setup(t)
	rois := []*int64{i64(5), nil, i64(30), i64(-10), i64(12)}
	for i, roi := range rois {
		u := &model.User{Name: fmt.Sprintf("u%d", i), SchoolNumber: 100 + i, Department: "CS", ROI: roi}
		if err := ms.CreateUser(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}

	var lb Leaderboard
	get(t, h, "/api/leaderboard?pageSize=2", &lb)
	if lb.Page != 1 || lb.PageSize != 2 || len(lb.Entries) != 2 {
		t.Fatalf("page 1: %+v", lb)
	}
	if lb.Entries[0].Name != "u2" || lb.Entries[1].Name != "u4" {
		t.Errorf("page 1 order: %+v", lb.Entries)
	}

	get(t, h, "/api/leaderboard?page=3&pageSize=2", &lb)
	if len(lb.Entries) != 1 || lb.Entries[0].Name != "u1" {
		t.Errorf("null roi should sort last: %+v", lb.Entries)
	}

	get(t, h, "/api/leaderboard?page=9&pageSize=500", &lb)
	if lb.PageSize != maxPageSize || len(lb.Entries) != 0 {
		t.Errorf("clamped page: %+v", lb)
	}
}
