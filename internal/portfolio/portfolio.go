// Package portfolio values a user's holdings at the teams' mark prices.
package portfolio

import (
	"context"
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
	"github.com/ssugameworks/invest-system-backend/internal/store"
)

// ErrUnauthorized is returned when the session token matches no user.
var ErrUnauthorized = errors.New("portfolio: invalid session token")

// Item is the valuation of one holding.
type Item struct {
	TeamID         int64           `json:"team_id"`
	TeamName       string          `json:"team_name"`
	Shares         decimal.Decimal `json:"shares"`
	InvestedAmount int64           `json:"invested_amount"`
	AveragePrice   int64           `json:"average_price"`
	CurrentPrice   int64           `json:"current_price"`
	CurrentValue   int64           `json:"current_value"`
	ProfitLoss     int64           `json:"profit_loss"`
	ProfitRate     float64         `json:"profit_rate"`
}

// Summary is a whole portfolio.
type Summary struct {
	TotalInvested int64   `json:"total_invested"`
	CurrentValue  int64   `json:"current_value"`
	ProfitLoss    int64   `json:"profit_loss"`
	ROI           float64 `json:"roi"`
	Items         []Item  `json:"items"`
}

// Position is a single-team view; Amount is what a full sell would ask for.
type Position struct {
	Item
	Amount int64 `json:"amount"`
}

// MarketValue is round(shares * price).
func MarketValue(shares decimal.Decimal, price int64) int64 {
	return shares.Mul(decimal.NewFromInt(price)).Round(0).IntPart()
}

// StockValue sums the market value of holdings. Holdings of deleted teams
// are worth nothing.
func StockValue(holdings []model.Holding) int64 {
	var total int64
	for _, h := range holdings {
		if h.Team == nil {
			continue
		}
		total += MarketValue(h.Shares, h.Team.MarkPrice())
	}
	return total
}

// Value builds the portfolio summary. Holdings whose team no longer exists
// are left out.
func Value(holdings []model.Holding) Summary {
	sum := Summary{Items: make([]Item, 0, len(holdings))}
	for _, h := range holdings {
		if h.Team == nil {
			continue
		}
		item := valueItem(h.Position, h.Team)
		sum.Items = append(sum.Items, item)
		sum.TotalInvested += item.InvestedAmount
		sum.CurrentValue += item.CurrentValue
	}
	sum.ProfitLoss = sum.CurrentValue - sum.TotalInvested
	sum.ROI = rate(sum.ProfitLoss, sum.TotalInvested)
	return sum
}

func valueItem(p model.Position, t *model.Team) Item {
	price := t.MarkPrice()
	value := MarketValue(p.Shares, price)
	pl := value - p.InvestedAmount
	return Item{
		TeamID:         p.TeamID,
		TeamName:       t.Name,
		Shares:         p.Shares,
		InvestedAmount: p.InvestedAmount,
		AveragePrice:   p.AveragePrice,
		CurrentPrice:   price,
		CurrentValue:   value,
		ProfitLoss:     pl,
		ProfitRate:     rate(pl, p.InvestedAmount),
	}
}

// rate is pl/base as a percentage rounded to two places.
func rate(pl, base int64) float64 {
	if base <= 0 {
		return 0
	}
	return math.Round(float64(pl)/float64(base)*10000) / 100
}

// Service reads portfolios for authenticated users.
type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// GetPortfolio values every holding of the token's user.
func (s *Service) GetPortfolio(ctx context.Context, token string) (*Summary, error) {
	user, err := s.user(ctx, token)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.ListHoldings(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	sum := Value(holdings)
	return &sum, nil
}

// GetPosition values the user's holding in one team. A missing holding or
// team yields a zeroed position rather than an error.
func (s *Service) GetPosition(ctx context.Context, token string, teamID int64) (*Position, error) {
	user, err := s.user(ctx, token)
	if err != nil {
		return nil, err
	}

	team, err := s.store.GetTeam(ctx, teamID)
	if errors.Is(err, store.ErrNotFound) {
		return &Position{Item: Item{TeamID: teamID, TeamName: "Unknown", Shares: decimal.Zero}}, nil
	}
	if err != nil {
		return nil, err
	}

	holdings, err := s.store.ListHoldings(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	for _, h := range holdings {
		if h.TeamID == teamID {
			item := valueItem(h.Position, team)
			return &Position{Item: item, Amount: item.CurrentValue}, nil
		}
	}
	return &Position{Item: Item{
		TeamID:       teamID,
		TeamName:     team.Name,
		Shares:       decimal.Zero,
		CurrentPrice: team.MarkPrice(),
	}}, nil
}

func (s *Service) user(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	user, err := s.store.GetUserByToken(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return user, err
}
