package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
//
// Transactions hold the write lock for their whole duration and work on a
// staged copy of the state, which replaces the live state on commit.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

type posKey struct{ userID, teamID int64 }

type memState struct {
	users     map[int64]*model.User
	teams     map[int64]*model.Team
	positions map[posKey]*model.Position
	trades    []model.TradeRecord
	ticks     []model.PriceTick
	comments  []model.Comment
	config    map[string]model.ConfigEntry

	nextUserID    int64
	nextTeamID    int64
	nextTradeID   int64
	nextTickID    int64
	nextCommentID int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memState{
			users:     make(map[int64]*model.User),
			teams:     make(map[int64]*model.Team),
			positions: make(map[posKey]*model.Position),
			config:    make(map[string]model.ConfigEntry),
		},
	}
}

func (st *memState) clone() *memState {
	c := &memState{
		users:         make(map[int64]*model.User, len(st.users)),
		teams:         make(map[int64]*model.Team, len(st.teams)),
		positions:     make(map[posKey]*model.Position, len(st.positions)),
		trades:        append([]model.TradeRecord(nil), st.trades...),
		ticks:         append([]model.PriceTick(nil), st.ticks...),
		comments:      append([]model.Comment(nil), st.comments...),
		config:        make(map[string]model.ConfigEntry, len(st.config)),
		nextUserID:    st.nextUserID,
		nextTeamID:    st.nextTeamID,
		nextTradeID:   st.nextTradeID,
		nextTickID:    st.nextTickID,
		nextCommentID: st.nextCommentID,
	}
	for id, u := range st.users {
		c.users[id] = copyUser(u)
	}
	for id, t := range st.teams {
		c.teams[id] = copyTeam(t)
	}
	for k, p := range st.positions {
		cp := *p
		c.positions[k] = &cp
	}
	for k, e := range st.config {
		c.config[k] = e
	}
	return c
}

func copyUser(u *model.User) *model.User {
	c := *u
	if u.AccessToken != nil {
		tok := *u.AccessToken
		c.AccessToken = &tok
	}
	c.ROI = copyInt(u.ROI)
	c.Rank = copyInt(u.Rank)
	return &c
}

func copyTeam(t *model.Team) *model.Team {
	c := *t
	c.P = copyInt(t.P)
	c.P1 = copyInt(t.P1)
	c.P2 = copyInt(t.P2)
	return &c
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// --- Users ---

func (s *MemoryStore) CreateUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.state.users {
		if existing.SchoolNumber == u.SchoolNumber {
			return fmt.Errorf("school number %d: %w", u.SchoolNumber, ErrConflict)
		}
		if existing.Name == u.Name {
			return fmt.Errorf("name %q: %w", u.Name, ErrConflict)
		}
	}

	s.state.nextUserID++
	u.ID = s.state.nextUserID
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.state.users[u.ID] = copyUser(u)
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return copyUser(u), nil
}

func (s *MemoryStore) GetUserByToken(_ context.Context, token string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u := s.state.userByToken(token)
	if u == nil {
		return nil, fmt.Errorf("user by token: %w", ErrNotFound)
	}
	return copyUser(u), nil
}

func (st *memState) userByToken(token string) *model.User {
	if token == "" {
		return nil
	}
	for _, u := range st.users {
		if u.AccessToken != nil && *u.AccessToken == token {
			return u
		}
	}
	return nil
}

func (s *MemoryStore) GetUserBySchoolNumber(_ context.Context, schoolNumber int) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.state.users {
		if u.SchoolNumber == schoolNumber {
			return copyUser(u), nil
		}
	}
	return nil, fmt.Errorf("user with school number %d: %w", schoolNumber, ErrNotFound)
}

func (s *MemoryStore) UserNameExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.state.users {
		if u.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) SetAccessToken(_ context.Context, userID int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.state.users[userID]
	if !ok {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	u.AccessToken = &token
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, offset, limit int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]model.User, 0, len(s.state.users))
	for _, u := range s.state.users {
		users = append(users, *copyUser(u))
	}
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if cmp := nullsLastAsc(a.Rank, b.Rank); cmp != 0 {
			return cmp < 0
		}
		if cmp := nullsLastDesc(a.ROI, b.ROI); cmp != 0 {
			return cmp < 0
		}
		return a.ID < b.ID
	})

	if offset >= len(users) {
		return []model.User{}, nil
	}
	end := offset + limit
	if end > len(users) {
		end = len(users)
	}
	return users[offset:end], nil
}

// nullsLastAsc compares two nullable values ascending with nil last.
func nullsLastAsc(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// nullsLastDesc compares two nullable values descending with nil last.
func nullsLastDesc(a, b *int64) int {
	if a != nil && b != nil {
		return nullsLastAsc(b, a)
	}
	return nullsLastAsc(a, b)
}

// --- Teams ---

func (s *MemoryStore) CreateTeam(_ context.Context, t *model.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == 0 {
		s.state.nextTeamID++
		t.ID = s.state.nextTeamID
	} else if _, ok := s.state.teams[t.ID]; ok {
		return fmt.Errorf("team %d: %w", t.ID, ErrConflict)
	} else if t.ID > s.state.nextTeamID {
		s.state.nextTeamID = t.ID
	}
	if t.Status == "" {
		t.Status = "upcoming"
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.state.teams[t.ID] = copyTeam(t)
	return nil
}

func (s *MemoryStore) GetTeam(_ context.Context, id int64) (*model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.state.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", id, ErrNotFound)
	}
	return copyTeam(t), nil
}

func (s *MemoryStore) ListTeams(_ context.Context) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	teams := make([]model.Team, 0, len(s.state.teams))
	for _, t := range s.state.teams {
		teams = append(teams, *copyTeam(t))
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].ID < teams[j].ID })
	return teams, nil
}

func (s *MemoryStore) UpdateTeamPricing(_ context.Context, id int64, upd model.TeamPriceUpdate) (*model.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", id, ErrNotFound)
	}
	if upd.P != nil {
		t.P = copyInt(upd.P)
	}
	if upd.P0 != nil {
		t.P0 = *upd.P0
	}
	if upd.P1 != nil {
		t.P1 = copyInt(upd.P1)
	}
	if upd.P2 != nil {
		t.P2 = copyInt(upd.P2)
	}
	if upd.Money != nil {
		t.Money = *upd.Money
	}
	t.UpdatedAt = time.Now().UTC()
	return copyTeam(t), nil
}

// --- Prices ---

func (s *MemoryStore) InsertPriceTick(_ context.Context, tick *model.PriceTick) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.state.teams[tick.TeamID]; !ok {
		return false, fmt.Errorf("team %d: %w", tick.TeamID, ErrNotFound)
	}
	for _, existing := range s.state.ticks {
		if existing.TeamID == tick.TeamID && existing.Round == tick.Round && existing.TickTS.Equal(tick.TickTS) {
			return false, nil
		}
	}
	s.state.nextTickID++
	tick.ID = s.state.nextTickID
	s.state.ticks = append(s.state.ticks, *tick)
	return true, nil
}

func (s *MemoryStore) SetTeamPrice(_ context.Context, teamID, price int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.state.teams[teamID]
	if !ok {
		return fmt.Errorf("team %d: %w", teamID, ErrNotFound)
	}
	t.P = &price
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) LatestPrices(_ context.Context) ([]model.PriceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[int64]model.PriceTick)
	for _, tick := range s.state.ticks {
		cur, ok := latest[tick.TeamID]
		if !ok || tick.TickTS.After(cur.TickTS) {
			latest[tick.TeamID] = tick
		}
	}
	result := make([]model.PriceTick, 0, len(latest))
	for _, tick := range latest {
		result = append(result, tick)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TeamID < result[j].TeamID })
	return result, nil
}

func (s *MemoryStore) PriceHistory(_ context.Context, teamID int64, since time.Time) ([]model.PriceTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.PriceTick
	for _, tick := range s.state.ticks {
		if tick.TeamID == teamID && !tick.TickTS.Before(since) {
			result = append(result, tick)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].TickTS.Before(result[j].TickTS) })
	return result, nil
}

// --- Holdings & history ---

func (s *MemoryStore) ListHoldings(_ context.Context, userID int64) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.holdings(userID), nil
}

func (st *memState) holdings(userID int64) []model.Holding {
	var result []model.Holding
	for k, p := range st.positions {
		if k.userID != userID {
			continue
		}
		h := model.Holding{Position: *p}
		if t, ok := st.teams[k.teamID]; ok {
			h.Team = copyTeam(t)
		}
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TeamID < result[j].TeamID })
	return result
}

func (s *MemoryStore) ListTrades(_ context.Context, userID int64, limit int) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for i := len(s.state.trades) - 1; i >= 0 && len(result) < limit; i-- {
		if s.state.trades[i].UserID == userID {
			result = append(result, s.state.trades[i])
		}
	}
	return result, nil
}

// --- Comments ---

func (s *MemoryStore) CreateComment(_ context.Context, c *model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.nextCommentID++
	c.ID = s.state.nextCommentID
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	stored := *c
	stored.AuthorName, stored.AuthorDepartment = "", ""
	s.state.comments = append(s.state.comments, stored)
	s.state.withAuthor(c)
	return nil
}

func (s *MemoryStore) ListTeamComments(_ context.Context, teamID int64, before time.Time, limit int) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Comment
	for _, c := range s.state.comments {
		if c.TeamID != teamID || (!before.IsZero() && !c.CreatedAt.Before(before)) {
			continue
		}
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return s.state.authored(result, limit), nil
}

func (s *MemoryStore) ListComments(_ context.Context, beforeID int64, limit int) ([]model.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Comment
	for i := len(s.state.comments) - 1; i >= 0; i-- {
		if c := s.state.comments[i]; beforeID <= 0 || c.ID < beforeID {
			result = append(result, c)
		}
	}
	return s.state.authored(result, limit), nil
}

func (s *MemoryStore) CountComments(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.state.comments)), nil
}

func (st *memState) authored(cs []model.Comment, limit int) []model.Comment {
	if len(cs) > limit {
		cs = cs[:limit]
	}
	for i := range cs {
		st.withAuthor(&cs[i])
	}
	return cs
}

func (st *memState) withAuthor(c *model.Comment) {
	if u, ok := st.users[c.AuthorID]; ok {
		c.AuthorName = u.Name
		c.AuthorDepartment = u.Department
	}
}

// --- Pricing configuration ---

func (s *MemoryStore) ListConfig(_ context.Context) ([]model.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]model.ConfigEntry, 0, len(s.state.config))
	for _, e := range s.state.config {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (s *MemoryStore) SetConfig(_ context.Context, key string, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.state.config[key]
	e.Key = key
	e.Value = value
	e.UpdatedAt = time.Now().UTC()
	s.state.config[key] = e
	return nil
}

// --- Transactions ---

func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// memTx needs no row locks: the store-wide write lock is held for the
// whole transaction.
type memTx struct {
	st *memState
}

func (tx *memTx) LockUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := tx.st.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return copyUser(u), nil
}

func (tx *memTx) LockUserByToken(_ context.Context, token string) (*model.User, error) {
	u := tx.st.userByToken(token)
	if u == nil {
		return nil, fmt.Errorf("user by token: %w", ErrNotFound)
	}
	return copyUser(u), nil
}

func (tx *memTx) LockTeam(_ context.Context, id int64) (*model.Team, error) {
	t, ok := tx.st.teams[id]
	if !ok {
		return nil, fmt.Errorf("team %d: %w", id, ErrNotFound)
	}
	return copyTeam(t), nil
}

func (tx *memTx) LockPosition(_ context.Context, userID, teamID int64) (*model.Position, error) {
	p, ok := tx.st.positions[posKey{userID, teamID}]
	if !ok {
		return nil, fmt.Errorf("position %d/%d: %w", userID, teamID, ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (tx *memTx) ListHoldings(_ context.Context, userID int64) ([]model.Holding, error) {
	return tx.st.holdings(userID), nil
}

func (tx *memTx) SaveUserBalances(_ context.Context, u *model.User) error {
	cur, ok := tx.st.users[u.ID]
	if !ok {
		return fmt.Errorf("user %d: %w", u.ID, ErrNotFound)
	}
	cur.Capital = u.Capital
	cur.StockValue = u.StockValue
	cur.TotalAssets = u.TotalAssets
	cur.ROI = copyInt(u.ROI)
	cur.UpdatedAt = time.Now().UTC()
	return nil
}

func (tx *memTx) SetTeamMoney(_ context.Context, teamID, money int64) error {
	t, ok := tx.st.teams[teamID]
	if !ok {
		return fmt.Errorf("team %d: %w", teamID, ErrNotFound)
	}
	t.Money = money
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (tx *memTx) SavePosition(_ context.Context, p *model.Position) error {
	now := time.Now().UTC()
	cp := *p
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	tx.st.positions[posKey{p.UserID, p.TeamID}] = &cp
	return nil
}

func (tx *memTx) DeletePosition(_ context.Context, userID, teamID int64) error {
	delete(tx.st.positions, posKey{userID, teamID})
	return nil
}

func (tx *memTx) InsertTrade(_ context.Context, rec *model.TradeRecord) error {
	tx.st.nextTradeID++
	rec.ID = tx.st.nextTradeID
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	tx.st.trades = append(tx.st.trades, *rec)
	return nil
}

func (tx *memTx) DeleteUser(_ context.Context, id int64) error {
	if _, ok := tx.st.users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	delete(tx.st.users, id)
	for k := range tx.st.positions {
		if k.userID == id {
			delete(tx.st.positions, k)
		}
	}
	kept := tx.st.trades[:0]
	for _, rec := range tx.st.trades {
		if rec.UserID != id {
			kept = append(kept, rec)
		}
	}
	tx.st.trades = kept
	return nil
}
