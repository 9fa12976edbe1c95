// Package memory is an in-process implementation of the account, refresh and
// secondary credential stores. One mutex guards all three, which gives every
// multi-record operation the same atomicity the SQL store gets from a
// transaction.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/secondary"
)

type credentialEntry struct {
	cred secondary.Credential
	seq  uint64
}

// Store is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	nextAccountID int64
	accounts      map[int64]account.Account
	byEmail       map[string]int64

	refresh map[string]refresh.Token

	seq         uint64
	credentials map[string]*credentialEntry

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts:    make(map[int64]account.Account),
		byEmail:     make(map[string]int64),
		refresh:     make(map[string]refresh.Token),
		credentials: make(map[string]*credentialEntry),
		now:         time.Now,
	}
}

var (
	_ account.Store   = (*Store)(nil)
	_ refresh.Store   = (*Store)(nil)
	_ secondary.Store = (*Store)(nil)
)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateAccount(_ context.Context, a account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(a.Email)
	if _, ok := s.byEmail[email]; ok {
		return account.Account{}, account.ErrExists
	}
	s.nextAccountID++
	now := s.now()
	a.ID = s.nextAccountID
	a.Email = email
	a.CreatedAt = now
	a.UpdatedAt = now
	s.accounts[a.ID] = a
	s.byEmail[email] = a.ID
	return a, nil
}

func (s *Store) GetAccountByEmail(_ context.Context, email string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return s.accounts[id], nil
}

func (s *Store) GetAccountByID(_ context.Context, id int64) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}
	return a, nil
}

func (s *Store) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return nil
}

func (s *Store) UpdateLockout(_ context.Context, id int64, fn func(account.LockoutState) account.LockoutState) (account.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return account.LockoutState{}, account.ErrNotFound
	}
	a.Lockout = fn(a.Lockout)
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return a.Lockout, nil
}

// SetStatus changes an account's lifecycle state.
func (s *Store) SetStatus(_ context.Context, id int64, status account.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = s.now()
	s.accounts[id] = a
	return nil
}

func (s *Store) CreateRefreshToken(_ context.Context, t refresh.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.refresh[t.TokenHash] = t
	return nil
}

func (s *Store) GetRefreshToken(_ context.Context, tokenHash string) (refresh.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refresh[tokenHash]
	if !ok {
		return refresh.Token{}, refresh.ErrNotFound
	}
	return t, nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldHash string, next refresh.Token) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.refresh[oldHash]
	if !ok || old.Revoked {
		return false, nil
	}
	old.Revoked = true
	s.refresh[oldHash] = old
	s.refresh[next.TokenHash] = next
	return true, nil
}

func (s *Store) RevokeRefreshToken(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.refresh[tokenHash]
	if !ok || t.Revoked {
		return false, nil
	}
	t.Revoked = true
	s.refresh[tokenHash] = t
	return true, nil
}

func (s *Store) RevokeAllRefreshTokens(_ context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.refresh {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			s.refresh[hash] = t
			n++
		}
	}
	return n, nil
}

func (s *Store) ReplaceSecondaryCredential(_ context.Context, c secondary.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.credentials {
		if e.cred.UserID == c.UserID && e.cred.Kind == c.Kind && !e.cred.Used {
			delete(s.credentials, id)
		}
	}
	s.seq++
	c.Secret = ""
	s.credentials[c.ID] = &credentialEntry{cred: c, seq: s.seq}
	return nil
}

func (s *Store) FindSecondaryCredential(_ context.Context, kind secondary.Kind, secretHash string) (secondary.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.newest(func(c secondary.Credential) bool {
		return c.Kind == kind && c.SecretHash == secretHash
	})
	if e == nil {
		return secondary.Credential{}, secondary.ErrNotFound
	}
	return e.cred, nil
}

func (s *Store) ConsumeSecondaryCredential(
	_ context.Context,
	kind secondary.Kind,
	lookup secondary.Lookup,
	decide func(secondary.Credential) secondary.Decision,
	effect secondary.Effect,
) (secondary.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.newest(func(c secondary.Credential) bool {
		if c.Kind != kind {
			return false
		}
		if lookup.UserID != 0 {
			return c.UserID == lookup.UserID
		}
		return c.SecretHash == lookup.SecretHash
	})
	if e == nil {
		return secondary.Credential{}, secondary.ErrNotFound
	}

	found := e.cred
	d := decide(found)
	if d.Err == nil {
		if err := s.applyEffect(found.UserID, effect); err != nil {
			return found, err
		}
	}
	if d.IncrementAttempts {
		e.cred.Attempts++
	}
	if d.MarkUsed {
		e.cred.Used = true
	}
	return found, d.Err
}

// newest returns the most recently issued credential matching keep.
// Callers hold s.mu.
func (s *Store) newest(keep func(secondary.Credential) bool) *credentialEntry {
	var best *credentialEntry
	for _, e := range s.credentials {
		if keep(e.cred) && (best == nil || e.seq > best.seq) {
			best = e
		}
	}
	return best
}

// applyEffect runs under s.mu.
func (s *Store) applyEffect(userID int64, effect secondary.Effect) error {
	if effect.Kind == secondary.EffectNone {
		return nil
	}
	a, ok := s.accounts[userID]
	if !ok {
		return account.ErrNotFound
	}
	switch effect.Kind {
	case secondary.EffectActivateAccount:
		if a.Status == account.StatusPendingVerification {
			a.Status = account.StatusActive
		}
	case secondary.EffectSetPasswordHash:
		a.PasswordHash = effect.PasswordHash
	}
	a.UpdatedAt = s.now()
	s.accounts[userID] = a
	return nil
}

// DeleteStale removes refresh tokens and secondary credentials that expired
// before cutoff.
func (s *Store) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for hash, t := range s.refresh {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.refresh, hash)
			n++
		}
	}
	for id, e := range s.credentials {
		if e.cred.ExpiresAt.Before(cutoff) {
			delete(s.credentials, id)
			n++
		}
	}
	return n, nil
}
