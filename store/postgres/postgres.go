package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/secondary"
)

const (
	// DriverPgx selects github.com/jackc/pgx/v5/stdlib.
	DriverPgx = "pgx"
	// DriverPQ selects github.com/lib/pq.
	DriverPQ = "postgres"
)

const uniqueViolation = "23505"

// Store implements the account, refresh and secondary credential stores on
// PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var (
	_ account.Store   = (*Store)(nil)
	_ refresh.Store   = (*Store)(nil)
	_ secondary.Store = (*Store)(nil)
)

// Open connects with the named driver and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case "":
		driver = DriverPgx
	case DriverPgx, DriverPQ:
	default:
		return nil, fmt.Errorf("postgres: unsupported driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// DeleteStale removes refresh tokens and secondary credentials that expired
// before cutoff.
func (s *Store) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"refresh_tokens", "password_reset_tokens", "email_verification_codes"} {
		res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at < $1`, cutoff.UTC())
		if err != nil {
			return total, fmt.Errorf("delete stale %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("count stale %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == uniqueViolation
	}
	return false
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func timePtrValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
