// Package store defines the persistence interface for the investment backend.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("store: conflict")
)

// Store is the persistence interface. Reads outside InTx see committed
// state only; every multi-row mutation of user, team and position state
// happens inside InTx.
type Store interface {
	// --- Users ---

	// CreateUser persists a new user and assigns its ID. Returns
	// ErrConflict when the school number or name is taken.
	CreateUser(ctx context.Context, u *model.User) error

	GetUser(ctx context.Context, id int64) (*model.User, error)
	GetUserByToken(ctx context.Context, token string) (*model.User, error)
	GetUserBySchoolNumber(ctx context.Context, schoolNumber int) (*model.User, error)
	UserNameExists(ctx context.Context, name string) (bool, error)

	// SetAccessToken replaces the user's single session token.
	SetAccessToken(ctx context.Context, userID int64, token string) error

	// Leaderboard orders users by rank ascending then roi descending,
	// nulls last in both.
	Leaderboard(ctx context.Context, offset, limit int) ([]model.User, error)

	// --- Teams ---

	CreateTeam(ctx context.Context, t *model.Team) error
	GetTeam(ctx context.Context, id int64) (*model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)

	// UpdateTeamPricing applies a manual partial update and returns the
	// resulting team.
	UpdateTeamPricing(ctx context.Context, id int64, upd model.TeamPriceUpdate) (*model.Team, error)

	// --- Prices ---

	// InsertPriceTick appends a tick. A tick with the same
	// (team, round, timestamp) is left untouched and reported as false.
	InsertPriceTick(ctx context.Context, tick *model.PriceTick) (bool, error)

	// SetTeamPrice updates the team's cached current price.
	SetTeamPrice(ctx context.Context, teamID, price int64) error

	// LatestPrices returns the most recent tick of every team.
	LatestPrices(ctx context.Context) ([]model.PriceTick, error)

	// PriceHistory returns a team's ticks at or after since, oldest first.
	PriceHistory(ctx context.Context, teamID int64, since time.Time) ([]model.PriceTick, error)

	// --- Holdings & history ---

	ListHoldings(ctx context.Context, userID int64) ([]model.Holding, error)

	// ListTrades returns a user's trades, newest first.
	ListTrades(ctx context.Context, userID int64, limit int) ([]model.TradeRecord, error)

	// --- Comments ---

	// CreateComment persists c and assigns its ID and timestamps.
	CreateComment(ctx context.Context, c *model.Comment) error

	// ListTeamComments returns a team's comments created strictly before
	// before (no bound when zero), newest first.
	ListTeamComments(ctx context.Context, teamID int64, before time.Time, limit int) ([]model.Comment, error)

	// ListComments returns comments of every team with an ID below beforeID
	// (no bound when zero), highest ID first.
	ListComments(ctx context.Context, beforeID int64, limit int) ([]model.Comment, error)

	CountComments(ctx context.Context) (int64, error)

	// --- Pricing configuration ---

	ListConfig(ctx context.Context) ([]model.ConfigEntry, error)
	SetConfig(ctx context.Context, key string, value decimal.Decimal) error

	// InTx runs fn in a single transaction. fn's error rolls everything
	// back; a nil return commits.
	InTx(ctx context.Context, fn func(Tx) error) error
}

// Invalidator is implemented by stores that cache rows. Callers that write
// a table directly, bypassing Store, report the row so stale copies are
// dropped.
type Invalidator interface {
	InvalidateRow(ctx context.Context, table string, id int64)
}

// Tx is the transactional view used by the ledger. Lock methods hold the
// row until the transaction ends. Callers lock in the order
// user, team, position.
type Tx interface {
	LockUser(ctx context.Context, id int64) (*model.User, error)
	LockUserByToken(ctx context.Context, token string) (*model.User, error)
	LockTeam(ctx context.Context, id int64) (*model.Team, error)

	// LockPosition returns ErrNotFound when the user holds nothing in the team.
	LockPosition(ctx context.Context, userID, teamID int64) (*model.Position, error)

	ListHoldings(ctx context.Context, userID int64) ([]model.Holding, error)

	// SaveUserBalances writes capital, stock_value, total_assets and roi.
	SaveUserBalances(ctx context.Context, u *model.User) error

	SetTeamMoney(ctx context.Context, teamID, money int64) error

	// SavePosition inserts or replaces the (user, team) position.
	SavePosition(ctx context.Context, p *model.Position) error
	DeletePosition(ctx context.Context, userID, teamID int64) error

	InsertTrade(ctx context.Context, rec *model.TradeRecord) error

	// DeleteUser removes the user and its trade history.
	DeleteUser(ctx context.Context, id int64) error
}
