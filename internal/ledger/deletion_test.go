package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ssugameworks/invest-system-backend/internal/ledger"
	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

func TestDeleteUser_RefundsTeamInflow(t *testing.T) {
	svc, ms := newLedger(t)
	ctx := context.Background()
	u := seedUser(t, ms, "tok-a")
	seedTeam(t, ms, 1, 15000, nil, 1000)
	seedTeam(t, ms, 2, 0, nil, 1000)

	if _, err := svc.Buy(ctx, "tok-a", 1, 5000); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Buy(ctx, "tok-a", 2, 3000); err != nil {
		t.Fatal(err)
	}
	if m := mustTeam(t, ms, 1).Money; m != 20000 {
		t.Fatalf("precondition: team money = %d, want 20000", m)
	}

	refund, err := svc.DeleteUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if refund.RefundedAmount != 8000 {
		t.Errorf("refunded = %d, want 8000", refund.RefundedAmount)
	}
	if m := mustTeam(t, ms, 1).Money; m != 15000 {
		t.Errorf("team 1 money = %d, want 15000", m)
	}
	if m := mustTeam(t, ms, 2).Money; m != 0 {
		t.Errorf("team 2 money = %d, want 0", m)
	}

	if _, err := ms.GetUser(ctx, u.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("user still present: %v", err)
	}
	if hs, _ := ms.ListHoldings(ctx, u.ID); len(hs) != 0 {
		t.Errorf("holdings left: %d", len(hs))
	}
	if trades, _ := ms.ListTrades(ctx, u.ID, 10); len(trades) != 0 {
		t.Errorf("trades left: %d", len(trades))
	}
}

func TestDeleteUser_FloorsTeamMoneyAtZero(t *testing.T) {
	svc, ms := newLedger(t)
	ctx := context.Background()
	u := seedUser(t, ms, "tok-a")
	seedTeam(t, ms, 1, 0, nil, 1000)

	if _, err := svc.Buy(ctx, "tok-a", 1, 5000); err != nil {
		t.Fatal(err)
	}
	if _, err := ms.UpdateTeamPricing(ctx, 1, model.TeamPriceUpdate{Money: i64(100)}); err != nil {
		t.Fatal(err)
	}

	refund, err := svc.DeleteUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if refund.RefundedAmount != 5000 {
		t.Errorf("refunded = %d, want 5000", refund.RefundedAmount)
	}
	if m := mustTeam(t, ms, 1).Money; m != 0 {
		t.Errorf("team money = %d, want 0", m)
	}
}

func TestDeleteUser_Unknown(t *testing.T) {
	svc, _ := newLedger(t)
	_, err := svc.DeleteUser(context.Background(), 404)
	if !errors.Is(err, ledger.ErrInvalidTarget) {
		t.Errorf("err = %v, want InvalidTarget", err)
	}
}

func TestDeleteUsers_ContinuesPastFailures(t *testing.T) {
	svc, ms := newLedger(t)
	ctx := context.Background()
	a := seedUser(t, ms, "tok-a")
	b := seedUser(t, ms, "tok-b")
	seedTeam(t, ms, 1, 0, nil, 1000)

	if _, err := svc.Buy(ctx, "tok-a", 1, 2000); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Buy(ctx, "tok-b", 1, 3000); err != nil {
		t.Fatal(err)
	}

	res := svc.DeleteUsers(ctx, []int64{a.ID, 999, b.ID})
	if res.DeletedCount != 2 {
		t.Errorf("deleted = %d, want 2", res.DeletedCount)
	}
	if res.TotalRefund != 5000 {
		t.Errorf("total refund = %d, want 5000", res.TotalRefund)
	}
	if len(res.Details) != 3 {
		t.Fatalf("details = %d, want 3", len(res.Details))
	}
	if res.Details[1].UserID != 999 || res.Details[1].Error == "" {
		t.Errorf("missing user detail = %+v", res.Details[1])
	}
	if m := mustTeam(t, ms, 1).Money; m != 0 {
		t.Errorf("team money = %d, want 0", m)
	}
}
