package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
)

// ViewName is the view a Parquet export is registered under.
const ViewName = "ismn"

// QueryResult holds the rows of a query in memory.
type QueryResult struct {
	Columns []string
	Rows    [][]interface{}
}

// Engine runs SQL over Parquet exports with an in-memory DuckDB.
type Engine struct {
	db *sql.DB
}

// NewEngine opens an in-memory DuckDB and registers the Parquet file at
// path as the view "ismn".
func NewEngine(ctx context.Context, path string) (*Engine, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("export not found: %w", err)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	q := fmt.Sprintf(`CREATE VIEW %s AS SELECT * FROM read_parquet('%s')`, ViewName, escapePath(path))
	if _, err := db.ExecContext(ctx, q); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register export: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close releases the database.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Query runs query and collects every row.
func (e *Engine) Query(ctx context.Context, query string) (*QueryResult, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	res := &QueryResult{Columns: cols}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// CountBy counts exported files per distinct value of column.
func (e *Engine) CountBy(ctx context.Context, column string) (map[string]int64, error) {
	q := fmt.Sprintf(`SELECT CAST(%s AS VARCHAR), COUNT(*) FROM %s GROUP BY 1 ORDER BY 1`,
		quoteIdent(column), ViewName)
	rows, err := e.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			key sql.NullString
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key.String] += n
	}
	return out, rows.Err()
}

// QueryParquet opens path, runs query and closes the engine.
func QueryParquet(ctx context.Context, path, query string) (*QueryResult, error) {
	e, err := NewEngine(ctx, path)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.Query(ctx, query)
}

func escapePath(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
