package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/developer-az/commit-warrior/internal/commits"
)

// MaxListLimit caps List page size
const MaxListLimit = 500

// Record is one stored check outcome
type Record struct {
	ID           int64          `json:"id"`
	Username     string         `json:"username"`
	CheckedAt    time.Time      `json:"checkedAt"`
	Day          string         `json:"day"`
	Success      bool           `json:"success"`
	HasCommitted bool           `json:"hasCommitted"`
	CommitCount  int            `json:"commitCount"`
	Streak       int            `json:"streak"`
	Method       commits.Method `json:"method,omitempty"`
	Cached       bool           `json:"cached"`
	Inferred     bool           `json:"inferred"`
	ErrorKind    string         `json:"errorKind,omitempty"`
	Message      string         `json:"message,omitempty"`
}

// FromResult flattens a check result for storage
func FromResult(username string, res commits.CheckResult) *Record {
	return &Record{
		Username:     username,
		CheckedAt:    res.CheckedAt,
		Day:          res.Date,
		Success:      res.Success,
		HasCommitted: res.HasCommitted,
		CommitCount:  res.CommitCount,
		Streak:       res.Streak,
		Method:       res.Method,
		Cached:       res.Cached,
		Inferred:     res.Inferred,
		ErrorKind:    res.ErrorKind(),
		Message:      res.Message,
	}
}

// Store persists check results in check_results
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a store over pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Insert stores rec and fills in its ID
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec.Day == "" {
		return fmt.Errorf("check record for %s has no day", rec.Username)
	}
	if rec.CheckedAt.IsZero() {
		rec.CheckedAt = time.Now()
	}

	query := `
		INSERT INTO check_results (
			username, checked_at, day, success, has_committed,
			commit_count, streak, method, cached, inferred,
			error_kind, message
		) VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	err := s.pool.QueryRow(ctx, query,
		rec.Username, rec.CheckedAt, rec.Day, rec.Success, rec.HasCommitted,
		rec.CommitCount, rec.Streak, string(rec.Method), rec.Cached, rec.Inferred,
		rec.ErrorKind, rec.Message,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert check result: %w", err)
	}
	return nil
}

const recordColumns = `id, username, checked_at, to_char(day, 'YYYY-MM-DD'), success,
	has_committed, commit_count, streak, method, cached, inferred, error_kind, message`

func scanRecord(row pgx.Row) (*Record, error) {
	rec := &Record{}
	var method string
	err := row.Scan(
		&rec.ID, &rec.Username, &rec.CheckedAt, &rec.Day, &rec.Success,
		&rec.HasCommitted, &rec.CommitCount, &rec.Streak, &method, &rec.Cached, &rec.Inferred,
		&rec.ErrorKind, &rec.Message,
	)
	rec.Method = commits.Method(method)
	return rec, err
}

// Latest returns the newest record for username, or nil if there is none
func (s *Store) Latest(ctx context.Context, username string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM check_results
		WHERE username = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT 1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, username))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest check result: %w", err)
	}
	return rec, nil
}

// List returns up to limit records for username, newest first
func (s *Store) List(ctx context.Context, username string, limit int) ([]*Record, error) {
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `SELECT ` + recordColumns + ` FROM check_results
		WHERE username = $1
		ORDER BY checked_at DESC, id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list check results: %w", err)
	}
	defer rows.Close()

	records := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan check result: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check results: %w", err)
	}
	return records, nil
}
