// Package postgres provides the Postgres-backed issue store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/comic-crawler/internal/comic"
)

// ErrNoUpdateFields is returned when an update sets none of the recognized fields.
var ErrNoUpdateFields = comic.ErrNoUpdateFields

// Schema creates the comics table. It is safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS comics (
	id SERIAL PRIMARY KEY,
	title TEXT NOT NULL,
	url TEXT NOT NULL UNIQUE,
	publication_date DATE,
	panel_urls JSONB NOT NULL,
	text JSONB,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	date_added TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const selectColumns = `id, title, url, publication_date, panel_urls, text, processed, date_added`

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// IssueStore persists issues in the comics table.
type IssueStore struct {
	pool Pool
}

var _ comic.Store = (*IssueStore)(nil)

// NewIssueStore opens a pool and verifies connectivity with a ping.
func NewIssueStore(ctx context.Context, cfg Config) (*IssueStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &IssueStore{pool: pool}, nil
}

// NewIssueStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewIssueStoreWithPool(pool Pool) (*IssueStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &IssueStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *IssueStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *IssueStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Migrate creates the schema when it does not exist yet.
func (s *IssueStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate comics schema: %w", err)
	}
	return nil
}

// Insert adds a new issue. An existing URL leaves the row untouched and reports created=false.
func (s *IssueStore) Insert(ctx context.Context, issue comic.Issue) (int64, bool, error) {
	panelsJSON, err := json.Marshal(issue.PanelURLs)
	if err != nil {
		return 0, false, fmt.Errorf("marshal panel urls: %w", err)
	}

	var id int64
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
INSERT INTO comics (title, url, publication_date, panel_urls)
VALUES ($1, $2, $3, $4)
ON CONFLICT (url) DO NOTHING
RETURNING id`,
			issue.Title,
			issue.URL,
			dateArg(issue.PublicationDate),
			panelsJSON,
		)
		return row.Scan(&id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert comic: %w", err)
	}
	return id, true, nil
}

// Update applies the set fields of update to the issue with the given id.
func (s *IssueStore) Update(ctx context.Context, id int64, update comic.IssueUpdate) error {
	if update.Empty() {
		return ErrNoUpdateFields
	}

	sets := make([]string, 0, 2)
	args := make([]any, 0, 3)
	if update.Text != nil {
		textJSON, err := json.Marshal(*update.Text)
		if err != nil {
			return fmt.Errorf("marshal text: %w", err)
		}
		args = append(args, textJSON)
		sets = append(sets, "text = $"+strconv.Itoa(len(args)))
	}
	if update.Processed != nil {
		args = append(args, *update.Processed)
		sets = append(sets, "processed = $"+strconv.Itoa(len(args)))
	}
	args = append(args, id)
	query := "UPDATE comics SET " + strings.Join(sets, ", ") + " WHERE id = $" + strconv.Itoa(len(args))

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return comic.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update comic %d: %w", id, err)
	}
	return nil
}

// Latest returns the most recently inserted issue, or nil for an empty table.
func (s *IssueStore) Latest(ctx context.Context) (*comic.Issue, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+selectColumns+" FROM comics ORDER BY date_added DESC, id DESC LIMIT 1")
	issue, err := scanIssue(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest comic: %w", err)
	}
	return &issue, nil
}

// All returns every issue, newest publication first with undated issues last.
func (s *IssueStore) All(ctx context.Context) ([]comic.Issue, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectColumns+" FROM comics ORDER BY publication_date DESC NULLS LAST, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list comics: %w", err)
	}
	defer rows.Close()

	var issues []comic.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comic: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comics: %w", err)
	}
	return issues, nil
}

// withTx runs fn in its own transaction, committing on success and rolling back otherwise.
func (s *IssueStore) withTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			// The caller's error is the one worth reporting.
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanIssue(row pgx.Row) (comic.Issue, error) {
	var (
		issue      comic.Issue
		pubDate    *time.Time
		panelsJSON []byte
		textJSON   []byte
	)
	if err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.URL,
		&pubDate,
		&panelsJSON,
		&textJSON,
		&issue.Processed,
		&issue.AddedAt,
	); err != nil {
		return comic.Issue{}, err
	}
	issue.PublicationDate = pubDate
	if len(panelsJSON) > 0 {
		if err := json.Unmarshal(panelsJSON, &issue.PanelURLs); err != nil {
			return comic.Issue{}, fmt.Errorf("decode panel_urls: %w", err)
		}
	}
	if len(textJSON) > 0 {
		var text comic.Panels
		if err := json.Unmarshal(textJSON, &text); err != nil {
			return comic.Issue{}, fmt.Errorf("decode text: %w", err)
		}
		issue.Text = &text
	}
	return issue, nil
}

// dateArg keeps an untyped nil for a missing date so the driver writes NULL.
func dateArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
