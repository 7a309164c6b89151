package portfolio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/portfolio"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func i64(v int64) *int64 { return &v }

func hold(teamID int64, shares string, invested, avg int64, team *model.Team) model.Holding {
	return model.Holding{
		Position: model.Position{
			TeamID:         teamID,
			Shares:         d(shares),
			InvestedAmount: invested,
			AveragePrice:   avg,
		},
		Team: team,
	}
}

func TestMarketValue(t *testing.T) {
	tests := []struct {
		shares string
		price  int64
		want   int64
	}{
		{"10", 1000, 10000},
		{"3.333333333333", 1500, 5000},
		{"0.0004", 1000, 0},
		{"0.0006", 1000, 1},
		{"5", 0, 0},
	}
	for _, tt := range tests {
		if got := portfolio.MarketValue(d(tt.shares), tt.price); got != tt.want {
			t.Errorf("MarketValue(%s, %d) = %d, want %d", tt.shares, tt.price, got, tt.want)
		}
	}
}

func TestValue(t *testing.T) {
	holdings := []model.Holding{
		hold(1, "10", 10000, 1000, &model.Team{ID: 1, Name: "Alpha", P: i64(1200), P0: 1000}),
		hold(2, "4", 4000, 1000, &model.Team{ID: 2, Name: "Beta", P0: 900}),
		hold(3, "2", 2000, 1000, nil),
	}

	sum := portfolio.Value(holdings)
	if len(sum.Items) != 2 {
		t.Fatalf("items = %d, want 2 (deleted team skipped)", len(sum.Items))
	}
	alpha := sum.Items[0]
	if alpha.CurrentPrice != 1200 || alpha.CurrentValue != 12000 || alpha.ProfitLoss != 2000 || alpha.ProfitRate != 20 {
		t.Errorf("alpha = %+v", alpha)
	}
	beta := sum.Items[1]
	if beta.CurrentPrice != 900 || beta.CurrentValue != 3600 || beta.ProfitLoss != -400 || beta.ProfitRate != -10 {
		t.Errorf("beta = %+v", beta)
	}
	if sum.TotalInvested != 14000 || sum.CurrentValue != 15600 || sum.ProfitLoss != 1600 {
		t.Errorf("totals = %+v", sum)
	}
	// 1600/14000 = 11.428...%
	if sum.ROI != 11.43 {
		t.Errorf("roi = %v, want 11.43", sum.ROI)
	}
}

func TestValue_Empty(t *testing.T) {
	sum := portfolio.Value(nil)
	if sum.ROI != 0 || sum.TotalInvested != 0 || sum.Items == nil {
		t.Errorf("empty summary = %+v", sum)
	}
}

func TestStockValue_IgnoresDeletedTeams(t *testing.T) {
	holdings := []model.Holding{
		hold(1, "10", 10000, 1000, &model.Team{ID: 1, P0: 1000}),
		hold(2, "10", 10000, 1000, nil),
	}
	if got := portfolio.StockValue(holdings); got != 10000 {
		t.Errorf("stock value = %d, want 10000", got)
	}
}

// --- Service ---

func seed(t *testing.T) (*portfolio.Service, *store.MemoryStore, *model.User) {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	token := "tok"
	u := &model.User{Name: "quiet otter", SchoolNumber: 20241234, AccessToken: &token, Capital: 40000}
	if err := ms.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateTeam(ctx, &model.Team{ID: 1, Name: "Alpha", P: i64(1100), P0: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := ms.CreateTeam(ctx, &model.Team{ID: 2, Name: "Beta", P0: 1000}); err != nil {
		t.Fatal(err)
	}
	err := ms.InTx(ctx, func(tx store.Tx) error {
		return tx.SavePosition(ctx, &model.Position{
			UserID: u.ID, TeamID: 1, Shares: d("10"), InvestedAmount: 10000, AveragePrice: 1000,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	return portfolio.NewService(ms), ms, u
}

func TestService_GetPortfolio(t *testing.T) {
	svc, _, _ := seed(t)

	sum, err := svc.GetPortfolio(context.Background(), "tok")
	if err != nil {
		t.Fatalf("get portfolio: %v", err)
	}
	if len(sum.Items) != 1 || sum.CurrentValue != 11000 || sum.ROI != 10 {
		t.Errorf("summary = %+v", sum)
	}

	if _, err := svc.GetPortfolio(context.Background(), "bad"); !errors.Is(err, portfolio.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestService_GetPosition(t *testing.T) {
	svc, _, _ := seed(t)
	ctx := context.Background()

	pos, err := svc.GetPosition(ctx, "tok", 1)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Amount != 11000 || pos.CurrentValue != 11000 || pos.TeamName != "Alpha" {
		t.Errorf("held position = %+v", pos)
	}

	pos, err = svc.GetPosition(ctx, "tok", 2)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Amount != 0 || !pos.Shares.IsZero() || pos.CurrentPrice != 1000 || pos.TeamName != "Beta" {
		t.Errorf("empty position = %+v", pos)
	}

	pos, err = svc.GetPosition(ctx, "tok", 77)
	if err != nil {
		t.Fatal(err)
	}
	if pos.TeamName != "Unknown" || pos.CurrentPrice != 0 {
		t.Errorf("unknown team position = %+v", pos)
	}
}
