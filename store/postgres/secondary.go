package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/secondary"
)

type credentialRow struct {
	ID         string    `db:"id"`
	UserID     int64     `db:"user_id"`
	SecretHash string    `db:"secret_hash"`
	ExpiresAt  time.Time `db:"expires_at"`
	CreatedAt  time.Time `db:"created_at"`
	Used       bool      `db:"used"`
	Attempts   int       `db:"attempts"`
}

func (r credentialRow) credential(kind secondary.Kind) secondary.Credential {
	return secondary.Credential{
		ID:         r.ID,
		UserID:     r.UserID,
		Kind:       kind,
		SecretHash: r.SecretHash,
		ExpiresAt:  r.ExpiresAt.UTC(),
		CreatedAt:  r.CreatedAt.UTC(),
		Used:       r.Used,
		Attempts:   r.Attempts,
	}
}

const credentialColumns = `id, user_id, secret_hash, expires_at, created_at, used, attempts`

func credentialTable(kind secondary.Kind) (string, error) {
	switch kind {
	case secondary.KindPasswordReset:
		return "password_reset_tokens", nil
	case secondary.KindEmailVerification:
		return "email_verification_codes", nil
	default:
		return "", fmt.Errorf("postgres: unknown credential kind %d", kind)
	}
}

func (s *Store) ReplaceSecondaryCredential(ctx context.Context, c secondary.Credential) error {
	table, err := credentialTable(c.Kind)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = $1 AND used = FALSE`, c.UserID); err != nil {
		return fmt.Errorf("delete superseded %s: %w", table, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+table+` (id, user_id, secret_hash, expires_at, created_at, used, attempts)
		VALUES ($1, $2, $3, $4, $5, FALSE, 0)
	`, c.ID, c.UserID, c.SecretHash, c.ExpiresAt.UTC(), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace tx: %w", err)
	}
	return nil
}

func (s *Store) FindSecondaryCredential(ctx context.Context, kind secondary.Kind, secretHash string) (secondary.Credential, error) {
	table, err := credentialTable(kind)
	if err != nil {
		return secondary.Credential{}, err
	}
	var row credentialRow
	err = s.db.GetContext(ctx, &row, `
		SELECT `+credentialColumns+` FROM `+table+`
		WHERE secret_hash = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, secretHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return secondary.Credential{}, secondary.ErrNotFound
		}
		return secondary.Credential{}, fmt.Errorf("query %s: %w", table, err)
	}
	return row.credential(kind), nil
}

func (s *Store) ConsumeSecondaryCredential(
	ctx context.Context,
	kind secondary.Kind,
	lookup secondary.Lookup,
	decide func(secondary.Credential) secondary.Decision,
	effect secondary.Effect,
) (secondary.Credential, error) {
	table, err := credentialTable(kind)
	if err != nil {
		return secondary.Credential{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return secondary.Credential{}, fmt.Errorf("begin consume tx: %w", err)
	}
	defer tx.Rollback()

	where, arg := `secret_hash = $1`, any(lookup.SecretHash)
	if lookup.UserID != 0 {
		where, arg = `user_id = $1`, any(lookup.UserID)
	}
	var row credentialRow
	err = tx.GetContext(ctx, &row, `
		SELECT `+credentialColumns+` FROM `+table+`
		WHERE `+where+`
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return secondary.Credential{}, secondary.ErrNotFound
		}
		return secondary.Credential{}, fmt.Errorf("lock %s: %w", table, err)
	}

	found := row.credential(kind)
	d := decide(found)
	if d.Err == nil {
		if err := applyEffect(ctx, tx, found.UserID, effect); err != nil {
			return found, err
		}
	}
	if d.IncrementAttempts || d.MarkUsed {
		_, err = tx.ExecContext(ctx, `
			UPDATE `+table+`
			SET attempts = attempts + CASE WHEN $2 THEN 1 ELSE 0 END,
			    used = used OR $3
			WHERE id = $1
		`, found.ID, d.IncrementAttempts, d.MarkUsed)
		if err != nil {
			return found, fmt.Errorf("update %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return found, fmt.Errorf("commit consume tx: %w", err)
	}
	return found, d.Err
}

func applyEffect(ctx context.Context, tx *sqlx.Tx, userID int64, effect secondary.Effect) error {
	var (
		res sql.Result
		err error
	)
	switch effect.Kind {
	case secondary.EffectNone:
		return nil
	case secondary.EffectActivateAccount:
		res, err = tx.ExecContext(ctx, `
			UPDATE users
			SET status = CASE WHEN status = $2 THEN $3 ELSE status END, updated_at = NOW()
			WHERE id = $1
		`, userID, int16(account.StatusPendingVerification), int16(account.StatusActive))
	case secondary.EffectSetPasswordHash:
		res, err = tx.ExecContext(ctx, `
			UPDATE users SET password_hash = $2, updated_at = NOW()
			WHERE id = $1
		`, userID, effect.PasswordHash)
	default:
		return fmt.Errorf("postgres: unknown effect %d", effect.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply credential effect: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return account.ErrNotFound
	}
	return nil
}
