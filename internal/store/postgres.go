package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ssugameworks/invest-system-backend/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Share quantities are stored as NUMERIC and round-tripped through TEXT
// for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool

	maxAttempts int
	retryDelay  time.Duration
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pool:        pool,
		maxAttempts: 8,
		retryDelay:  75 * time.Millisecond,
	}
}

// Connect opens a pool with bounded connections and verifies it.
func Connect(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, schoolnumber, department, password, access_token,
	capital, stock_value, total_assets, roi, rank, created_at, updated_at`

const teamColumns = `id, "teamName", status, money, p, p0, p1, p2, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.SchoolNumber, &u.Department, &u.PasswordHash, &u.AccessToken,
		&u.Capital, &u.StockValue, &u.TotalAssets, &u.ROI, &u.Rank, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanTeam(row pgx.Row) (*model.Team, error) {
	var t model.Team
	err := row.Scan(&t.ID, &t.Name, &t.Status, &t.Money, &t.P, &t.P0, &t.P1, &t.P2, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound and wraps with context.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		err = ErrNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isRetryable reports serialization failures and deadlocks, which a fresh
// attempt of the same transaction can resolve.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "40001" || pgErr.Code == "40P01")
}

// --- Users ---

func (s *PostgresStore) CreateUser(ctx context.Context, u *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (name, schoolnumber, department, password, access_token,
		                    capital, stock_value, total_assets, roi, rank)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id, created_at, updated_at`,
		u.Name, u.SchoolNumber, u.Department, u.PasswordHash, u.AccessToken,
		u.Capital, u.StockValue, u.TotalAssets, u.ROI, u.Rank,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("create user %d: %w", u.SchoolNumber, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user %d: %w", u.SchoolNumber, err)
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get user %d", id)
	}
	return u, nil
}

func (s *PostgresStore) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE access_token = $1`, token))
	if err != nil {
		return nil, notFound(err, "get user by token")
	}
	return u, nil
}

func (s *PostgresStore) GetUserBySchoolNumber(ctx context.Context, schoolNumber int) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE schoolnumber = $1`, schoolNumber))
	if err != nil {
		return nil, notFound(err, "get user by school number %d", schoolNumber)
	}
	return u, nil
}

func (s *PostgresStore) UserNameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) SetAccessToken(ctx context.Context, userID int64, token string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET access_token = $2, updated_at = now() WHERE id = $1`, userID, token)
	if err != nil {
		return fmt.Errorf("set access token %d: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set access token %d: %w", userID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, offset, limit int) ([]model.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 ORDER BY rank ASC NULLS LAST, roi DESC NULLS LAST, id ASC
		 OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// --- Teams ---

func (s *PostgresStore) CreateTeam(ctx context.Context, t *model.Team) error {
	if t.Status == "" {
		t.Status = "upcoming"
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO competition_teams ("teamName", status, money, p, p0, p1, p2)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		t.Name, t.Status, t.Money, t.P, t.P0, t.P1, t.P2,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create team %q: %w", t.Name, err)
	}
	return nil
}

func (s *PostgresStore) GetTeam(ctx context.Context, id int64) (*model.Team, error) {
	t, err := scanTeam(s.pool.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM competition_teams WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "get team %d", id)
	}
	return t, nil
}

func (s *PostgresStore) ListTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+teamColumns+` FROM competition_teams ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	teams := []model.Team{}
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		teams = append(teams, *t)
	}
	return teams, rows.Err()
}

func (s *PostgresStore) UpdateTeamPricing(ctx context.Context, id int64, upd model.TeamPriceUpdate) (*model.Team, error) {
	// COALESCE keeps columns the update leaves unset.
	t, err := scanTeam(s.pool.QueryRow(ctx,
		`UPDATE competition_teams
		 SET p = COALESCE($2, p),
		     p0 = COALESCE($3, p0),
		     p1 = COALESCE($4, p1),
		     p2 = COALESCE($5, p2),
		     money = COALESCE($6, money),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+teamColumns,
		id, upd.P, upd.P0, upd.P1, upd.P2, upd.Money))
	if err != nil {
		return nil, notFound(err, "update team pricing %d", id)
	}
	return t, nil
}

// --- Prices ---

func (s *PostgresStore) InsertPriceTick(ctx context.Context, tick *model.PriceTick) (bool, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO prices (team_id, round, price, tick_ts)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (team_id, round, tick_ts) DO NOTHING
		 RETURNING id`,
		tick.TeamID, tick.Round, tick.Price, tick.TickTS,
	).Scan(&tick.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert price tick team %d: %w", tick.TeamID, err)
	}
	return true, nil
}

func (s *PostgresStore) SetTeamPrice(ctx context.Context, teamID, price int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE competition_teams SET p = $2, updated_at = now() WHERE id = $1`, teamID, price)
	if err != nil {
		return fmt.Errorf("set team price %d: %w", teamID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set team price %d: %w", teamID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) LatestPrices(ctx context.Context) ([]model.PriceTick, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT ON (team_id) id, team_id, round, price, tick_ts
		 FROM prices
		 ORDER BY team_id, tick_ts DESC, round DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTicks(rows)
}

func (s *PostgresStore) PriceHistory(ctx context.Context, teamID int64, since time.Time) ([]model.PriceTick, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, team_id, round, price, tick_ts
		 FROM prices
		 WHERE team_id = $1 AND tick_ts >= $2
		 ORDER BY tick_ts ASC`, teamID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTicks(rows)
}

func scanTicks(rows pgx.Rows) ([]model.PriceTick, error) {
	ticks := []model.PriceTick{}
	for rows.Next() {
		var t model.PriceTick
		if err := rows.Scan(&t.ID, &t.TeamID, &t.Round, &t.Price, &t.TickTS); err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// --- Holdings & history ---

func (s *PostgresStore) ListHoldings(ctx context.Context, userID int64) ([]model.Holding, error) {
	return listHoldings(ctx, s.pool, userID)
}

func listHoldings(ctx context.Context, q querier, userID int64) ([]model.Holding, error) {
	rows, err := q.Query(ctx,
		`SELECT ui.user_id, ui.team_id, ui.shares::TEXT, ui.invested_amount, ui.average_price,
		        ui.created_at, ui.updated_at,
		        t.id, t."teamName", t.status, t.money, t.p, t.p0, t.p1, t.p2, t.created_at, t.updated_at
		 FROM user_investments ui
		 LEFT JOIN competition_teams t ON t.id = ui.team_id
		 WHERE ui.user_id = $1
		 ORDER BY ui.team_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list holdings %d: %w", userID, err)
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		var h model.Holding
		var shares string
		var teamID, money, p0 *int64
		var name, status *string
		var createdAt, updatedAt *time.Time
		var team model.Team
		if err := rows.Scan(&h.UserID, &h.TeamID, &shares, &h.InvestedAmount, &h.AveragePrice,
			&h.CreatedAt, &h.UpdatedAt,
			&teamID, &name, &status, &money, &team.P, &p0, &team.P1, &team.P2, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		h.Shares, _ = decimal.NewFromString(shares)
		if teamID != nil {
			team.ID = *teamID
			team.Name = *name
			team.Status = *status
			team.Money = *money
			team.P0 = *p0
			team.CreatedAt = *createdAt
			team.UpdatedAt = *updatedAt
			h.Team = &team
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) ListTrades(ctx context.Context, userID int64, limit int) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, team_id, type, amount, price, shares::TEXT, created_at
		 FROM investment_history
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	trades := []model.TradeRecord{}
	for rows.Next() {
		var rec model.TradeRecord
		var shares string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.TeamID, &rec.Type, &rec.Amount,
			&rec.Price, &shares, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Shares, _ = decimal.NewFromString(shares)
		trades = append(trades, rec)
	}
	return trades, rows.Err()
}

// --- Comments ---

const commentColumns = `c.id, c.team_id, c.author_id, COALESCE(u.name, ''), COALESCE(u.department, ''),
	c.body, c.created_at, c.updated_at`

func (s *PostgresStore) CreateComment(ctx context.Context, c *model.Comment) error {
	err := s.pool.QueryRow(ctx,
		`WITH ins AS (
		     INSERT INTO team_comments (team_id, author_id, body)
		     VALUES ($1, $2, $3)
		     RETURNING id, created_at, updated_at
		 )
		 SELECT ins.id, ins.created_at, ins.updated_at,
		        COALESCE(u.name, ''), COALESCE(u.department, '')
		 FROM ins LEFT JOIN users u ON u.id = $2`,
		c.TeamID, c.AuthorID, c.Body,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt, &c.AuthorName, &c.AuthorDepartment)
	if err != nil {
		return fmt.Errorf("create comment on team %d: %w", c.TeamID, err)
	}
	return nil
}

func (s *PostgresStore) ListTeamComments(ctx context.Context, teamID int64, before time.Time, limit int) ([]model.Comment, error) {
	var bound *time.Time
	if !before.IsZero() {
		bound = &before
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentColumns+`
		 FROM team_comments c LEFT JOIN users u ON u.id = c.author_id
		 WHERE c.team_id = $1 AND ($2::TIMESTAMPTZ IS NULL OR c.created_at < $2)
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT $3`, teamID, bound, limit)
	if err != nil {
		return nil, err
	}
	return collectComments(rows)
}

func (s *PostgresStore) ListComments(ctx context.Context, beforeID int64, limit int) ([]model.Comment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+commentColumns+`
		 FROM team_comments c LEFT JOIN users u ON u.id = c.author_id
		 WHERE $1 <= 0 OR c.id < $1
		 ORDER BY c.id DESC
		 LIMIT $2`, beforeID, limit)
	if err != nil {
		return nil, err
	}
	return collectComments(rows)
}

func (s *PostgresStore) CountComments(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM team_comments`).Scan(&n)
	return n, err
}

func collectComments(rows pgx.Rows) ([]model.Comment, error) {
	defer rows.Close()
	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.TeamID, &c.AuthorID, &c.AuthorName, &c.AuthorDepartment,
			&c.Body, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// --- Pricing configuration ---

func (s *PostgresStore) ListConfig(ctx context.Context) ([]model.ConfigEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value::TEXT, COALESCE(description, ''), updated_at
		 FROM pricing_config ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.ConfigEntry
	for rows.Next() {
		var e model.ConfigEntry
		var value string
		if err := rows.Scan(&e.Key, &value, &e.Description, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Value, err = decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("pricing config %s: %w", e.Key, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) SetConfig(ctx context.Context, key string, value decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pricing_config (key, value)
		 VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value.String())
	if err != nil {
		return fmt.Errorf("set pricing config %s: %w", key, err)
	}
	return nil
}

// --- Transactions ---

// InTx runs fn in a read-committed transaction. Row locks taken through
// Tx serialize conflicting trades; serialization failures and deadlocks
// retry with doubling backoff.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Tx) error) error {
	delay := s.retryDelay
	var err error
	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			return err
		}
		if delay < 1200*time.Millisecond {
			delay *= 2
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "lock user %d", id)
	}
	return u, nil
}

func (t *pgTx) LockUserByToken(ctx context.Context, token string) (*model.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE access_token = $1 FOR UPDATE`, token))
	if err != nil {
		return nil, notFound(err, "lock user by token")
	}
	return u, nil
}

func (t *pgTx) LockTeam(ctx context.Context, id int64) (*model.Team, error) {
	team, err := scanTeam(t.tx.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM competition_teams WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err, "lock team %d", id)
	}
	return team, nil
}

func (t *pgTx) LockPosition(ctx context.Context, userID, teamID int64) (*model.Position, error) {
	var p model.Position
	var shares string
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, team_id, shares::TEXT, invested_amount, average_price, created_at, updated_at
		 FROM user_investments
		 WHERE user_id = $1 AND team_id = $2
		 FOR UPDATE`, userID, teamID).
		Scan(&p.UserID, &p.TeamID, &shares, &p.InvestedAmount, &p.AveragePrice, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "lock position %d/%d", userID, teamID)
	}
	p.Shares, _ = decimal.NewFromString(shares)
	return &p, nil
}

func (t *pgTx) ListHoldings(ctx context.Context, userID int64) ([]model.Holding, error) {
	return listHoldings(ctx, t.tx, userID)
}

func (t *pgTx) SaveUserBalances(ctx context.Context, u *model.User) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE users
		 SET capital = $2, stock_value = $3, total_assets = $4, roi = $5, updated_at = now()
		 WHERE id = $1`,
		u.ID, u.Capital, u.StockValue, u.TotalAssets, u.ROI)
	if err != nil {
		return fmt.Errorf("save user balances %d: %w", u.ID, err)
	}
	return nil
}

func (t *pgTx) SetTeamMoney(ctx context.Context, teamID, money int64) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE competition_teams SET money = $2, updated_at = now() WHERE id = $1`, teamID, money)
	if err != nil {
		return fmt.Errorf("set team money %d: %w", teamID, err)
	}
	return nil
}

func (t *pgTx) SavePosition(ctx context.Context, p *model.Position) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO user_investments (user_id, team_id, shares, invested_amount, average_price)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5)
		 ON CONFLICT (user_id, team_id) DO UPDATE
		 SET shares = EXCLUDED.shares,
		     invested_amount = EXCLUDED.invested_amount,
		     average_price = EXCLUDED.average_price,
		     updated_at = now()`,
		p.UserID, p.TeamID, p.Shares.String(), p.InvestedAmount, p.AveragePrice)
	if err != nil {
		return fmt.Errorf("save position %d/%d: %w", p.UserID, p.TeamID, err)
	}
	return nil
}

func (t *pgTx) DeletePosition(ctx context.Context, userID, teamID int64) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM user_investments WHERE user_id = $1 AND team_id = $2`, userID, teamID)
	if err != nil {
		return fmt.Errorf("delete position %d/%d: %w", userID, teamID, err)
	}
	return nil
}

func (t *pgTx) InsertTrade(ctx context.Context, rec *model.TradeRecord) error {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO investment_history (user_id, team_id, type, amount, price, shares)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC)
		 RETURNING id, created_at`,
		rec.UserID, rec.TeamID, string(rec.Type), rec.Amount, rec.Price, rec.Shares.String(),
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade user %d: %w", rec.UserID, err)
	}
	return nil
}

func (t *pgTx) DeleteUser(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete user %d: %w", id, ErrNotFound)
	}
	return nil
}
