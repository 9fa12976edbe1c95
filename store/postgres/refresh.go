package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/refresh"
)

type refreshRow struct {
	ID        string    `db:"id"`
	TokenHash string    `db:"token_hash"`
	UserID    int64     `db:"user_id"`
	ExpiresAt time.Time `db:"expires_at"`
	CreatedAt time.Time `db:"created_at"`
	Revoked   bool      `db:"revoked"`
}

func (r refreshRow) token() refresh.Token {
	return refresh.Token{
		ID:        r.ID,
		TokenHash: r.TokenHash,
		UserID:    r.UserID,
		ExpiresAt: r.ExpiresAt.UTC(),
		CreatedAt: r.CreatedAt.UTC(),
		Revoked:   r.Revoked,
	}
}

const insertRefreshToken = `
	INSERT INTO refresh_tokens (id, token_hash, user_id, expires_at, created_at, revoked)
	VALUES ($1, $2, $3, $4, $5, FALSE)
`

func (s *Store) CreateRefreshToken(ctx context.Context, t refresh.Token) error {
	_, err := s.db.ExecContext(ctx, insertRefreshToken, t.ID, t.TokenHash, t.UserID, t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (refresh.Token, error) {
	var row refreshRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, token_hash, user_id, expires_at, created_at, revoked
		FROM refresh_tokens
		WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return refresh.Token{}, refresh.ErrNotFound
		}
		return refresh.Token{}, fmt.Errorf("query refresh token: %w", err)
	}
	return row.token(), nil
}

// RotateRefreshToken relies on the conditional UPDATE taking a row lock:
// of two concurrent rotations of the same hash, the second re-checks
// revoked = FALSE after the first commits and matches nothing.
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash string, next refresh.Token) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin rotate tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE
	`, oldHash)
	if err != nil {
		return false, fmt.Errorf("revoke rotated token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count rotated token: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, insertRefreshToken, next.ID, next.TokenHash, next.UserID, next.ExpiresAt.UTC(), next.CreatedAt.UTC()); err != nil {
		return false, fmt.Errorf("insert rotated token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit rotate tx: %w", err)
	}
	return true, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token_hash = $1 AND revoked = FALSE
	`, tokenHash)
	if err != nil {
		return false, fmt.Errorf("revoke refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count revoked token: %w", err)
	}
	return n > 0, nil
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE user_id = $1 AND revoked = FALSE
	`, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count revoked tokens: %w", err)
	}
	return n, nil
}
