package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for the hot, shared read paths: teams, latest prices and pricing
// configuration. Writes go to the primary store and invalidate the cache;
// reads check Redis first then fall back to the primary. Transactions pass
// through and invalidate every team they touched once they commit.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateTeam(ctx context.Context, t *model.Team) error {
	if err := s.primary.CreateTeam(ctx, t); err != nil {
		return err
	}
	s.rdb.Del(ctx, teamsKey)
	return nil
}

func (s *CachedStore) UpdateTeamPricing(ctx context.Context, id int64, upd model.TeamPriceUpdate) (*model.Team, error) {
	t, err := s.primary.UpdateTeamPricing(ctx, id, upd)
	if err != nil {
		return nil, err
	}
	s.rdb.Del(ctx, teamKey(id), teamsKey)
	return t, nil
}

func (s *CachedStore) InsertPriceTick(ctx context.Context, tick *model.PriceTick) (bool, error) {
	inserted, err := s.primary.InsertPriceTick(ctx, tick)
	if err != nil {
		return false, err
	}
	if inserted {
		s.rdb.Del(ctx, latestPricesKey)
	}
	return inserted, nil
}

func (s *CachedStore) SetTeamPrice(ctx context.Context, teamID, price int64) error {
	if err := s.primary.SetTeamPrice(ctx, teamID, price); err != nil {
		return err
	}
	s.rdb.Del(ctx, teamKey(teamID), teamsKey)
	return nil
}

func (s *CachedStore) SetConfig(ctx context.Context, key string, value decimal.Decimal) error {
	if err := s.primary.SetConfig(ctx, key, value); err != nil {
		return err
	}
	s.rdb.Del(ctx, configKey)
	return nil
}

func (s *CachedStore) InTx(ctx context.Context, fn func(Tx) error) error {
	var touched []int64
	err := s.primary.InTx(ctx, func(tx Tx) error {
		touched = touched[:0]
		return fn(&recordingTx{Tx: tx, touched: &touched})
	})
	if err != nil {
		return err
	}
	if len(touched) > 0 {
		keys := make([]string, 0, len(touched)+1)
		for _, id := range touched {
			keys = append(keys, teamKey(id))
		}
		keys = append(keys, teamsKey)
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

// InvalidateRow drops the cache entries derived from a row of table.
func (s *CachedStore) InvalidateRow(ctx context.Context, table string, id int64) {
	switch table {
	case "competition_teams":
		s.rdb.Del(ctx, teamKey(id), teamsKey)
	case "prices":
		s.rdb.Del(ctx, latestPricesKey)
	case "pricing_config":
		s.rdb.Del(ctx, configKey)
	}
}

// recordingTx notes which teams a transaction changed so the cache can be
// invalidated after commit.
type recordingTx struct {
	Tx
	touched *[]int64
}

func (t *recordingTx) SetTeamMoney(ctx context.Context, teamID, money int64) error {
	if err := t.Tx.SetTeamMoney(ctx, teamID, money); err != nil {
		return err
	}
	*t.touched = append(*t.touched, teamID)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetTeam(ctx context.Context, id int64) (*model.Team, error) {
	var t model.Team
	if s.readCache(ctx, teamKey(id), &t) {
		return &t, nil
	}

	// Cache miss: read from primary.
	team, err := s.primary.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, teamKey(id), team)
	return team, nil
}

func (s *CachedStore) ListTeams(ctx context.Context) ([]model.Team, error) {
	var teams []model.Team
	if s.readCache(ctx, teamsKey, &teams) {
		return teams, nil
	}

	teams, err := s.primary.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, teamsKey, teams)
	return teams, nil
}

func (s *CachedStore) LatestPrices(ctx context.Context) ([]model.PriceTick, error) {
	var ticks []model.PriceTick
	if s.readCache(ctx, latestPricesKey, &ticks) {
		return ticks, nil
	}

	ticks, err := s.primary.LatestPrices(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, latestPricesKey, ticks)
	return ticks, nil
}

func (s *CachedStore) ListConfig(ctx context.Context) ([]model.ConfigEntry, error) {
	var entries []model.ConfigEntry
	if s.readCache(ctx, configKey, &entries) {
		return entries, nil
	}

	entries, err := s.primary.ListConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.writeCache(ctx, configKey, entries)
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) CreateUser(ctx context.Context, u *model.User) error {
	return s.primary.CreateUser(ctx, u)
}

func (s *CachedStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.primary.GetUser(ctx, id)
}

func (s *CachedStore) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	return s.primary.GetUserByToken(ctx, token)
}

func (s *CachedStore) GetUserBySchoolNumber(ctx context.Context, schoolNumber int) (*model.User, error) {
	return s.primary.GetUserBySchoolNumber(ctx, schoolNumber)
}

func (s *CachedStore) UserNameExists(ctx context.Context, name string) (bool, error) {
	return s.primary.UserNameExists(ctx, name)
}

func (s *CachedStore) SetAccessToken(ctx context.Context, userID int64, token string) error {
	return s.primary.SetAccessToken(ctx, userID, token)
}

func (s *CachedStore) Leaderboard(ctx context.Context, offset, limit int) ([]model.User, error) {
	return s.primary.Leaderboard(ctx, offset, limit)
}

func (s *CachedStore) PriceHistory(ctx context.Context, teamID int64, since time.Time) ([]model.PriceTick, error) {
	return s.primary.PriceHistory(ctx, teamID, since)
}

func (s *CachedStore) ListHoldings(ctx context.Context, userID int64) ([]model.Holding, error) {
	return s.primary.ListHoldings(ctx, userID)
}

func (s *CachedStore) ListTrades(ctx context.Context, userID int64, limit int) ([]model.TradeRecord, error) {
	return s.primary.ListTrades(ctx, userID, limit)
}

func (s *CachedStore) CreateComment(ctx context.Context, c *model.Comment) error {
	return s.primary.CreateComment(ctx, c)
}

func (s *CachedStore) ListTeamComments(ctx context.Context, teamID int64, before time.Time, limit int) ([]model.Comment, error) {
	return s.primary.ListTeamComments(ctx, teamID, before, limit)
}

func (s *CachedStore) ListComments(ctx context.Context, beforeID int64, limit int) ([]model.Comment, error) {
	return s.primary.ListComments(ctx, beforeID, limit)
}

func (s *CachedStore) CountComments(ctx context.Context) (int64, error) {
	return s.primary.CountComments(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) readCache(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) writeCache(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const (
	teamsKey        = "teams:all"
	latestPricesKey = "prices:latest"
	configKey       = "pricing:config"
)

func teamKey(id int64) string { return fmt.Sprintf("team:%d", id) }
