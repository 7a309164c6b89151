package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ssugameworks/invest-system-backend/internal/store"
)

var (
	ErrInvalidIdentifier = errors.New("admin: invalid identifier")
	ErrUnknownTable      = errors.New("admin: unknown table")
	ErrUnknownColumn     = errors.New("admin: unknown column")
	ErrReadOnlyColumn    = errors.New("admin: column cannot be written")
)

var identifierRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maskedColumns are never returned in clear and never written through the
// inspector.
var maskedColumns = map[string]bool{"password": true, "access_token": true}

const maskValue = "********"

// ValidIdentifier reports whether s is a plain SQL identifier.
func ValidIdentifier(s string) bool {
	return identifierRE.MatchString(s)
}

// Table describes one inspectable table.
type Table struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Rows    int64    `json:"rows"`
}

// Row is one table row keyed by column name.
type Row map[string]any

// TableInspector gives operators generic row access to the database.
// Implementations receive identifiers that already passed ValidIdentifier.
type TableInspector interface {
	ListTables(ctx context.Context) ([]Table, error)
	ReadRow(ctx context.Context, table string, id int64) (Row, error)
	WriteRow(ctx context.Context, table string, id int64, values Row) (Row, error)
}

// mask replaces credential columns in place.
func mask(row Row) Row {
	for col := range row {
		if maskedColumns[col] {
			row[col] = maskValue
		}
	}
	return row
}

// checkWrite validates a row update before it reaches the inspector.
func checkWrite(table string, values Row) error {
	if !ValidIdentifier(table) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, table)
	}
	if len(values) == 0 {
		return errors.New("admin: no columns to update")
	}
	for col := range values {
		if !ValidIdentifier(col) {
			return fmt.Errorf("%w: %q", ErrInvalidIdentifier, col)
		}
		if col == "id" || maskedColumns[col] {
			return fmt.Errorf("%w: %s", ErrReadOnlyColumn, col)
		}
	}
	return nil
}

// PGInspector reads and writes rows of the public schema.
type PGInspector struct {
	pool *pgxpool.Pool
}

func NewPGInspector(pool *pgxpool.Pool) *PGInspector {
	return &PGInspector{pool: pool}
}

func (p *PGInspector) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	byName := make(map[string]*Table)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		t, ok := byName[table]
		if !ok {
			t = &Table{Name: table}
			byName[table] = t
		}
		t.Columns = append(t.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Table, 0, len(byName))
	for _, t := range byName {
		if !ValidIdentifier(t.Name) {
			continue
		}
		err := p.pool.QueryRow(ctx, "SELECT count(*) FROM "+pgx.Identifier{t.Name}.Sanitize()).Scan(&t.Rows)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Name, err)
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (p *PGInspector) columns(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	cols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set, nil
}

func (p *PGInspector) ReadRow(ctx context.Context, table string, id int64) (Row, error) {
	if _, err := p.columns(ctx, table); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, "SELECT * FROM "+pgx.Identifier{table}.Sanitize()+" WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("read %s %d: %w", table, id, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", table, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s %d: %w", table, id, err)
	}
	return Row(row), nil
}

func (p *PGInspector) WriteRow(ctx context.Context, table string, id int64, values Row) (Row, error) {
	cols, err := p.columns(ctx, table)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(values))
	for col := range values {
		if !cols[col] {
			return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, col)
		}
		names = append(names, col)
	}
	sort.Strings(names)

	sets := make([]string, len(names))
	args := make([]any, 0, len(names)+1)
	for i, col := range names {
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{col}.Sanitize(), i+1)
		args = append(args, values[col])
	}
	args = append(args, id)
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		pgx.Identifier{table}.Sanitize(), strings.Join(sets, ", "), len(args))

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", table, id, err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s %d: %w", table, id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update %s %d: %w", table, id, err)
	}
	return Row(row), nil
}
