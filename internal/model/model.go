// Package model defines the core domain types shared across the investment
// backend. Currency amounts are whole units held in int64; share quantities
// use shopspring/decimal and are never rounded to integers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultReferencePrice is the execution price used when a team has neither
// a cached price nor a reference price.
const DefaultReferencePrice int64 = 1000

// Share quantities go over the wire as JSON numbers.
func init() { decimal.MarshalJSONWithoutQuotes = true }

// TradeType is the direction of a TradeRecord.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// User is a player. Capital is never negative; StockValue, TotalAssets and
// ROI are caches recomputed after every trade.
type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	SchoolNumber int       `json:"schoolNumber"`
	Department   string    `json:"department"`
	PasswordHash string    `json:"-"`
	AccessToken  *string   `json:"-"`
	Capital      int64     `json:"capital"`
	StockValue   int64     `json:"stock_value"`
	TotalAssets  int64     `json:"total_assets"`
	ROI          *int64    `json:"roi"`
	Rank         *int64    `json:"rank"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Team is a competition entrant. Money is cumulative net inflow and never
// goes below zero. P is the cached current price, nil until the first
// recalculation. P1 and P2 belong to a second pricing round that is not
// driven by the scheduler.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"teamName"`
	Status    string    `json:"status"`
	Money     int64     `json:"money"`
	P         *int64    `json:"p"`
	P0        int64     `json:"p0"`
	P1        *int64    `json:"p1"`
	P2        *int64    `json:"p2"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionPrice is the price a trade against this team fills at:
// the cached price, else the reference price, else DefaultReferencePrice.
func (t *Team) ExecutionPrice() int64 {
	if t.P != nil {
		return *t.P
	}
	if t.P0 != 0 {
		return t.P0
	}
	return DefaultReferencePrice
}

// MarkPrice is the price positions are valued at: the cached price, else the
// reference price, else zero.
func (t *Team) MarkPrice() int64 {
	if t.P != nil {
		return *t.P
	}
	return t.P0
}

// PriceTick is an immutable price history point. (TeamID, Round, TickTS)
// is unique.
type PriceTick struct {
	ID     int64     `json:"id"`
	TeamID int64     `json:"teamId"`
	Round  int16     `json:"round"`
	Price  int64     `json:"price"`
	TickTS time.Time `json:"tickTs"`
}

// Position is a user's holding in one team.
type Position struct {
	UserID         int64           `json:"user_id"`
	TeamID         int64           `json:"team_id"`
	Shares         decimal.Decimal `json:"shares"`
	InvestedAmount int64           `json:"invested_amount"`
	AveragePrice   int64           `json:"average_price"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Holding is a Position joined with the pricing state of its team.
// Team is nil when the team row no longer exists.
type Holding struct {
	Position
	Team *Team `json:"team,omitempty"`
}

// TradeRecord is an immutable record of one buy or sell.
type TradeRecord struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	TeamID    int64           `json:"team_id"`
	Type      TradeType       `json:"type"`
	Amount    int64           `json:"amount"`
	Price     int64           `json:"price"`
	Shares    decimal.Decimal `json:"shares"`
	CreatedAt time.Time       `json:"created_at"`
}

// TeamPriceUpdate is a partial manual update of a team's pricing fields.
type TeamPriceUpdate struct {
	P     *int64 `json:"p,omitempty"`
	P0    *int64 `json:"p0,omitempty"`
	P1    *int64 `json:"p1,omitempty"`
	P2    *int64 `json:"p2,omitempty"`
	Money *int64 `json:"money,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u TeamPriceUpdate) Empty() bool {
	return u.P == nil && u.P0 == nil && u.P1 == nil && u.P2 == nil && u.Money == nil
}

// ConfigEntry is one row of the persisted pricing configuration.
type ConfigEntry struct {
	Key         string          `json:"key"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// GeneralCommentTeamID marks a comment posted to the site-wide feed rather
// than a team page.
const GeneralCommentTeamID int64 = 0

// Comment is a message left by a player. AuthorName and AuthorDepartment
// are read from the author's user row and are empty once it is deleted.
type Comment struct {
	ID               int64     `json:"id"`
	TeamID           int64     `json:"team_id"`
	AuthorID         int64     `json:"author_id"`
	AuthorName       string    `json:"author_name"`
	AuthorDepartment string    `json:"author_department"`
	Body             string    `json:"body"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
