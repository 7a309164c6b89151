// Package ledger executes buys and sells against the cached team price.
//
// Each trade runs in one store transaction that locks the user, the team and
// the position in that order, moves capital and team inflow, upserts or
// removes the position, appends an immutable trade record and revalues the
// user. A rejected or failed step rolls the whole trade back.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/portfolio"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// ShareScale is the number of decimal places share quantities keep.
// Buy and sell derive shares from amount/price with the same scale, so
// selling what was bought at an unchanged price empties the position.
const ShareScale int32 = 12

// DustThreshold is the share quantity at or below which a position is
// treated as fully liquidated.
var DustThreshold = decimal.New(1, -4)

// Result is the outcome of a trade.
type Result struct {
	Amount  int64  `json:"amount"`
	Status  string `json:"status"`
	Message string `json:"message"`

	Trade   model.TradeRecord `json:"-"`
	Capital int64             `json:"-"`
}

// Service executes trades and account deletions.
type Service struct {
	store          store.Store
	initialCapital int64
	logger         *slog.Logger
}

// NewService creates a ledger. initialCapital is the signup endowment ROI
// is measured against.
func NewService(st store.Store, initialCapital int64, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:          st,
		initialCapital: initialCapital,
		logger:         logger,
	}
}

// SharesFor converts a currency amount into shares at price.
func SharesFor(amount, price int64) decimal.Decimal {
	return decimal.NewFromInt(amount).DivRound(decimal.NewFromInt(price), ShareScale)
}

// Buy spends amount of the token holder's capital on shares of teamID.
func (s *Service) Buy(ctx context.Context, token string, teamID, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var res Result
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		user, err := lockUser(ctx, tx, token)
		if err != nil {
			return err
		}
		if amount > user.Capital {
			return rejectf(KindInsufficientFunds, "insufficient capital: have %d, need %d", user.Capital, amount)
		}

		team, err := tx.LockTeam(ctx, teamID)
		if errors.Is(err, store.ErrNotFound) {
			return rejectf(KindInvalidTarget, "team %d does not exist", teamID)
		}
		if err != nil {
			return err
		}
		price := team.ExecutionPrice()
		if price <= 0 {
			return rejectf(KindInvalidPrice, "team %d has invalid price %d", teamID, price)
		}
		shares := SharesFor(amount, price)

		user.Capital -= amount
		if err := tx.SetTeamMoney(ctx, team.ID, team.Money+amount); err != nil {
			return err
		}

		pos, err := tx.LockPosition(ctx, user.ID, team.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			pos = &model.Position{
				UserID:         user.ID,
				TeamID:         team.ID,
				Shares:         shares,
				InvestedAmount: amount,
				AveragePrice:   price,
			}
		case err != nil:
			return err
		default:
			pos.Shares = pos.Shares.Add(shares)
			pos.InvestedAmount += amount
			pos.AveragePrice = averagePrice(pos.InvestedAmount, pos.Shares)
		}
		if err := tx.SavePosition(ctx, pos); err != nil {
			return err
		}

		rec := model.TradeRecord{
			UserID:    user.ID,
			TeamID:    team.ID,
			Type:      model.TradeBuy,
			Amount:    amount,
			Price:     price,
			Shares:    shares,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.InsertTrade(ctx, &rec); err != nil {
			return err
		}
		if err := s.revalue(ctx, tx, user); err != nil {
			return err
		}

		res = Result{
			Amount:  amount,
			Status:  "success",
			Message: fmt.Sprintf("investment complete (%s shares bought)", shares.StringFixed(4)),
			Trade:   rec,
			Capital: user.Capital,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trade executed",
		"type", res.Trade.Type,
		"user_id", res.Trade.UserID,
		"team_id", res.Trade.TeamID,
		"amount", amount,
		"price", res.Trade.Price,
		"shares", res.Trade.Shares.String(),
	)
	return &res, nil
}

// Sell liquidates amount worth of the token holder's shares in teamID at
// the current price.
func (s *Service) Sell(ctx context.Context, token string, teamID, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var res Result
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		user, err := lockUser(ctx, tx, token)
		if err != nil {
			return err
		}

		// A missing team cannot have positions; report NoHolding first.
		team, err := tx.LockTeam(ctx, teamID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		pos, err := tx.LockPosition(ctx, user.ID, teamID)
		if errors.Is(err, store.ErrNotFound) {
			return rejectf(KindNoHolding, "no holding in team %d", teamID)
		}
		if err != nil {
			return err
		}
		if team == nil {
			return rejectf(KindInvalidTarget, "team %d does not exist", teamID)
		}

		price := team.ExecutionPrice()
		if price <= 0 {
			return rejectf(KindInvalidPrice, "team %d has invalid price %d", teamID, price)
		}
		sharesToSell := SharesFor(amount, price)
		if sharesToSell.GreaterThan(pos.Shares) {
			return rejectf(KindInsufficientShares, "insufficient shares: requested %s, holding %s",
				sharesToSell.StringFixed(4), pos.Shares.StringFixed(4))
		}

		user.Capital += amount
		if team.Money < amount {
			return rejectf(KindInternalConsistency, "team %d inflow %d is below sell amount %d", team.ID, team.Money, amount)
		}
		if err := tx.SetTeamMoney(ctx, team.ID, team.Money-amount); err != nil {
			return err
		}

		costBasis := sharesToSell.Mul(decimal.NewFromInt(pos.AveragePrice)).Round(0).IntPart()
		pos.Shares = pos.Shares.Sub(sharesToSell)
		pos.InvestedAmount -= costBasis
		if pos.InvestedAmount < 0 {
			pos.InvestedAmount = 0
		}
		if pos.Shares.LessThanOrEqual(DustThreshold) {
			if err := tx.DeletePosition(ctx, user.ID, team.ID); err != nil {
				return err
			}
		} else {
			pos.AveragePrice = averagePrice(pos.InvestedAmount, pos.Shares)
			if err := tx.SavePosition(ctx, pos); err != nil {
				return err
			}
		}

		rec := model.TradeRecord{
			UserID:    user.ID,
			TeamID:    team.ID,
			Type:      model.TradeSell,
			Amount:    amount,
			Price:     price,
			Shares:    sharesToSell,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.InsertTrade(ctx, &rec); err != nil {
			return err
		}
		if err := s.revalue(ctx, tx, user); err != nil {
			return err
		}

		res = Result{
			Amount:  amount,
			Status:  "success",
			Message: fmt.Sprintf("sale complete (%s shares sold)", sharesToSell.StringFixed(4)),
			Trade:   rec,
			Capital: user.Capital,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("trade executed",
		"type", res.Trade.Type,
		"user_id", res.Trade.UserID,
		"team_id", res.Trade.TeamID,
		"amount", amount,
		"price", res.Trade.Price,
		"shares", res.Trade.Shares.String(),
	)
	return &res, nil
}

func lockUser(ctx context.Context, tx store.Tx, token string) (*model.User, error) {
	if token == "" {
		return nil, rejectf(KindUnauthorized, "missing session token")
	}
	user, err := tx.LockUserByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, rejectf(KindUnauthorized, "invalid session token")
	}
	return user, err
}

// revalue recomputes the user's derived asset fields from scratch and
// persists them together with capital.
func (s *Service) revalue(ctx context.Context, tx store.Tx, user *model.User) error {
	holdings, err := tx.ListHoldings(ctx, user.ID)
	if err != nil {
		return err
	}
	user.StockValue = portfolio.StockValue(holdings)
	user.TotalAssets = user.Capital + user.StockValue
	roi := ROI(user.TotalAssets, s.initialCapital)
	user.ROI = &roi
	return tx.SaveUserBalances(ctx, user)
}

// ROI is the whole-percent return of total against the initial endowment.
func ROI(total, initial int64) int64 {
	if initial <= 0 {
		return 0
	}
	// Halves round toward +Inf so a -0.5% loss reports 0.
	return int64(math.Floor(float64(total-initial)/float64(initial)*100 + 0.5))
}

func averagePrice(invested int64, shares decimal.Decimal) int64 {
	if !shares.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(invested).Div(shares).Round(0).IntPart()
}
