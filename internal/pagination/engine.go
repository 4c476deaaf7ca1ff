package pagination

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// tieBreak is appended to every ORDER BY so pages are stable for an
// unchanged table; it is also the default order (newest first).
const tieBreak = "created_at DESC, id DESC"

// Querier is the subset of *sql.DB used by the engine.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc decodes one row selected with Query.Columns.
type ScanFunc[T any] func(Scanner) (T, error)

// Query describes the filtered collection to page through.
type Query struct {
	Table   string
	Columns []string
	// Where is a boolean SQL expression without the WHERE keyword.
	Where string
	Args  []any
	// Sortable maps API field names to columns. Sort entries naming other
	// fields are ignored.
	Sortable map[string]string
}

// Search is the ranked match stage of PaginateSearch.
type Search struct {
	Column string
	Term   string
}

// Meta is the pagination block of a page envelope.
type Meta struct {
	Page         int `json:"page"`
	Limit        int `json:"limit"`
	TotalPages   int `json:"totalPages"`
	TotalResults int `json:"totalResults"`
}

// Page is the uniform list envelope.
type Page[T any] struct {
	Results    []T  `json:"results"`
	Pagination Meta `json:"pagination"`
}

// TotalPages returns ceil(total/limit).
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Paginate returns one page of q ordered by opts.Sort. The count and data
// phases run concurrently over the same filter.
func Paginate[T any](ctx context.Context, db Querier, q Query, opts Options, scan ScanFunc[T]) (*Page[T], error) {
	return run(ctx, db, q, "", nil, opts, scan)
}

// PaginateSearch is Paginate restricted to rows whose s.Column fuzzily
// matches s.Term, ordered by relevance first. The match predicate is shared
// by both phases so totalResults always agrees with the ranked results.
// An empty term behaves like Paginate.
func PaginateSearch[T any](ctx context.Context, db Querier, q Query, s Search, opts Options, scan ScanFunc[T]) (*Page[T], error) {
	term := strings.TrimSpace(s.Term)
	if term == "" || s.Column == "" {
		return Paginate(ctx, db, q, opts, scan)
	}
	score := fmt.Sprintf("%s(%s, ?)", ScoreFunction, s.Column)
	return run(ctx, db, q, score, term, opts, scan)
}

func run[T any](ctx context.Context, db Querier, q Query, score string, term any, opts Options, scan ScanFunc[T]) (*Page[T], error) {
	opts = normalise(opts)

	where, args := q.Where, append([]any(nil), q.Args...)
	if score != "" {
		if where != "" {
			where = "(" + where + ") AND "
		}
		where += score + " > 0"
		args = append(args, term)
	}
	whereClause := ""
	if where != "" {
		whereClause = " WHERE " + where
	}

	order := orderBy(q.Sortable, opts.Sort)
	dataArgs := append([]any(nil), args...)
	if score != "" {
		order = score + " DESC, " + order
		dataArgs = append(dataArgs, term)
	}
	dataArgs = append(dataArgs, opts.Limit, opts.Offset())

	countSQL := "SELECT COUNT(*) FROM " + q.Table + whereClause
	dataSQL := "SELECT " + strings.Join(q.Columns, ", ") + " FROM " + q.Table + whereClause +
		" ORDER BY " + order + " LIMIT ? OFFSET ?"

	var (
		total   int
		results = make([]T, 0, opts.Limit)
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := db.QueryRowContext(gctx, countSQL, args...).Scan(&total); err != nil {
			return fmt.Errorf("counting %s: %w", q.Table, err)
		}
		return nil
	})
	g.Go(func() error {
		rows, err := db.QueryContext(gctx, dataSQL, dataArgs...)
		if err != nil {
			return fmt.Errorf("listing %s: %w", q.Table, err)
		}
		defer rows.Close()
		for rows.Next() {
			item, err := scan(rows)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", q.Table, err)
			}
			results = append(results, item)
		}
		return rows.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Page[T]{
		Results: results,
		Pagination: Meta{
			Page:         opts.Page,
			Limit:        opts.Limit,
			TotalPages:   TotalPages(total, opts.Limit),
			TotalResults: total,
		},
	}, nil
}

func normalise(opts Options) Options {
	if opts.Page < 1 {
		opts.Page = DefaultPage
	}
	if opts.Limit < 1 {
		opts.Limit = DefaultLimit
	}
	return opts
}

func orderBy(sortable map[string]string, fields []SortField) string {
	var parts []string
	seen := map[string]bool{}
	for _, f := range fields {
		col, ok := sortable[f.Field]
		if !ok || seen[col] {
			continue
		}
		seen[col] = true
		dir := "ASC"
		if f.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	parts = append(parts, tieBreak)
	return strings.Join(parts, ", ")
}
