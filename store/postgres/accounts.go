package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/account"
)

const accountColumns = `id, email, password_hash, role, status, failed_login_attempts,
	locked_until, last_failed_login_attempt, created_at, updated_at`

type accountRow struct {
	ID             int64        `db:"id"`
	Email          string       `db:"email"`
	PasswordHash   string       `db:"password_hash"`
	Role           string       `db:"role"`
	Status         int16        `db:"status"`
	FailedAttempts int          `db:"failed_login_attempts"`
	LockedUntil    sql.NullTime `db:"locked_until"`
	LastFailedAt   sql.NullTime `db:"last_failed_login_attempt"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

func (r accountRow) account() account.Account {
	return account.Account{
		ID:           r.ID,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         r.Role,
		Status:       account.Status(r.Status),
		Lockout: account.LockoutState{
			FailedAttempts: r.FailedAttempts,
			LockedUntil:    nullTimePtr(r.LockedUntil),
			LastFailedAt:   nullTimePtr(r.LastFailedAt),
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func (s *Store) CreateAccount(ctx context.Context, a account.Account) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO users (email, password_hash, role, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+accountColumns,
		strings.ToLower(strings.TrimSpace(a.Email)), a.PasswordHash, a.Role, int16(a.Status))
	if err != nil {
		if isUniqueViolation(err) {
			return account.Account{}, account.ErrExists
		}
		return account.Account{}, fmt.Errorf("insert user: %w", err)
	}
	return row.account(), nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("query user by email: %w", err)
	}
	return row.account(), nil
}

func (s *Store) GetAccountByID(ctx context.Context, id int64) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, fmt.Errorf("query user by id: %w", err)
	}
	return row.account(), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.ErrNotFound
	}
	return nil
}

// UpdateLockout reads the lockout columns under FOR UPDATE, applies fn and
// writes the result back in the same transaction.
func (s *Store) UpdateLockout(ctx context.Context, id int64, fn func(account.LockoutState) account.LockoutState) (account.LockoutState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return account.LockoutState{}, fmt.Errorf("begin lockout tx: %w", err)
	}
	defer tx.Rollback()

	var row struct {
		FailedAttempts int          `db:"failed_login_attempts"`
		LockedUntil    sql.NullTime `db:"locked_until"`
		LastFailedAt   sql.NullTime `db:"last_failed_login_attempt"`
	}
	err = tx.GetContext(ctx, &row, `
		SELECT failed_login_attempts, locked_until, last_failed_login_attempt
		FROM users
		WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.LockoutState{}, account.ErrNotFound
		}
		return account.LockoutState{}, fmt.Errorf("lock user row: %w", err)
	}

	next := fn(account.LockoutState{
		FailedAttempts: row.FailedAttempts,
		LockedUntil:    nullTimePtr(row.LockedUntil),
		LastFailedAt:   nullTimePtr(row.LastFailedAt),
	})

	_, err = tx.ExecContext(ctx, `
		UPDATE users
		SET failed_login_attempts = $2, locked_until = $3, last_failed_login_attempt = $4, updated_at = NOW()
		WHERE id = $1
	`, id, next.FailedAttempts, timePtrValue(next.LockedUntil), timePtrValue(next.LastFailedAt))
	if err != nil {
		return account.LockoutState{}, fmt.Errorf("update lockout: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return account.LockoutState{}, fmt.Errorf("commit lockout tx: %w", err)
	}
	return next, nil
}
