// Package memstore is an in-memory implementation of every persistence port,
// used in dev mode (USE_SUPABASE=false) and in tests. A single mutex guards
// all state, so check-and-mutate operations are atomic the same way the SQL
// functions are.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type accountKey struct {
	uid       string
	accountID string
}

// Store holds all banking state in memory.
type Store struct {
	mu sync.Mutex

	users        map[string]domain.User       // uid -> user
	accounts     map[accountKey]*domain.Account
	transactions map[accountKey][]domain.Transaction
	lockouts     map[string]*domain.LockoutRecord // email -> record
	credentials  map[string]credential            // email -> credential
	tokens       map[string]*domain.RefreshToken  // token hash -> record
}

type credential struct {
	uid          string
	email        string
	passwordHash []byte
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:        make(map[string]domain.User),
		accounts:     make(map[accountKey]*domain.Account),
		transactions: make(map[accountKey][]domain.Transaction),
		lockouts:     make(map[string]*domain.LockoutRecord),
		credentials:  make(map[string]credential),
		tokens:       make(map[string]*domain.RefreshToken),
	}
}

// ============================================================
// port.LedgerStore
// ============================================================

func (s *Store) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[uid]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: uid}
	}
	out := u
	return &out, nil
}

func (s *Store) CreateUserWithAccounts(ctx context.Context, user *domain.User, accounts []domain.Account, opening []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.UID]; exists {
		return &domain.ErrConflict{Message: "user already provisioned"}
	}

	s.users[user.UID] = *user
	for _, a := range accounts {
		acc := a
		s.accounts[accountKey{uid: a.UserID, accountID: a.ID}] = &acc
	}
	for _, t := range opening {
		key := accountKey{uid: t.UserID, accountID: t.AccountID}
		s.transactions[key] = append(s.transactions[key], t)
	}
	return nil
}

func (s *Store) ListAccounts(ctx context.Context, uid string) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Account
	// Stable slug order, matching the provisioning set.
	for _, id := range []string{"checking", "savings", "credit"} {
		if a, ok := s.accounts[accountKey{uid: uid, accountID: id}]; ok {
			out = append(out, *a)
		}
	}
	for key, a := range s.accounts {
		if key.uid == uid && key.accountID != "checking" && key.accountID != "savings" && key.accountID != "credit" {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *Store) GetAccount(ctx context.Context, uid, accountID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountKey{uid: uid, accountID: accountID}]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	out := *a
	return &out, nil
}

func (s *Store) ListTransactions(ctx context.Context, uid, accountID string) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[accountKey{uid: uid, accountID: accountID}]; !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}

	stored := s.transactions[accountKey{uid: uid, accountID: accountID}]
	// Newest first, mirroring the PostgREST order=date.desc reads.
	out := make([]domain.Transaction, len(stored))
	for i, t := range stored {
		out[len(stored)-1-i] = t
	}
	return out, nil
}

func (s *Store) Deposit(ctx context.Context, uid, accountID string, amount float64, description string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountKey{uid: uid, accountID: accountID}]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}

	a.Balance += amount
	s.appendLocked(uid, accountID, description, amount)

	out := *a
	return &out, nil
}

func (s *Store) Withdraw(ctx context.Context, uid, accountID string, amount float64, description string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountKey{uid: uid, accountID: accountID}]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}
	if a.Balance < amount {
		return nil, &domain.ErrInsufficientFunds{Available: a.Balance, Required: amount}
	}

	a.Balance -= amount
	s.appendLocked(uid, accountID, description, -amount)

	out := *a
	return &out, nil
}

func (s *Store) ApplyTransfer(ctx context.Context, instr *domain.TransferInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.accounts[accountKey{uid: instr.SenderUID, accountID: instr.SenderAccountID}]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: instr.SenderAccountID}
	}
	recipient, ok := s.accounts[accountKey{uid: instr.RecipientUID, accountID: instr.RecipientAccountID}]
	if !ok {
		return &domain.ErrNotFound{Resource: "account", ID: instr.RecipientAccountID}
	}
	if sender.Balance < instr.Amount {
		return &domain.ErrInsufficientFunds{Available: sender.Balance, Required: instr.Amount}
	}

	sender.Balance -= instr.Amount
	recipient.Balance += instr.Amount
	s.appendLocked(instr.SenderUID, instr.SenderAccountID, instr.SenderDescription, -instr.Amount)
	s.appendLocked(instr.RecipientUID, instr.RecipientAccountID, instr.RecipientDescription, instr.Amount)
	return nil
}

func (s *Store) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.User
	for _, u := range s.users {
		if u.Email == email {
			out = append(out, u)
		}
	}
	return out, nil
}

// appendLocked adds a ledger entry. Callers must hold s.mu.
func (s *Store) appendLocked(uid, accountID, description string, amount float64) {
	key := accountKey{uid: uid, accountID: accountID}
	s.transactions[key] = append(s.transactions[key], domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      uid,
		AccountID:   accountID,
		Date:        time.Now().UTC(),
		Description: description,
		Amount:      amount,
	})
}

// ============================================================
// port.LockoutStore
// ============================================================

func (s *Store) GetLockout(ctx context.Context, email string) (*domain.LockoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lockouts[email]
	if !ok {
		return &domain.LockoutRecord{Email: email}, nil
	}
	out := *rec
	return &out, nil
}

func (s *Store) RecordFailure(ctx context.Context, email string, threshold int, lockFor time.Duration) (*domain.LockoutRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.lockouts[email]
	if !ok {
		rec = &domain.LockoutRecord{Email: email}
		s.lockouts[email] = rec
	}

	rec.FailedAttempts++
	if rec.FailedAttempts >= threshold {
		until := time.Now().UTC().Add(lockFor)
		rec.LockoutEndTime = &until
		rec.FailedAttempts = 0
	}

	out := *rec
	return &out, nil
}

func (s *Store) ClearLockout(ctx context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.lockouts, email)
	return nil
}

// ============================================================
// port.IdentityProvider (bcrypt-backed, dev only)
// ============================================================

func (s *Store) CreateIdentity(ctx context.Context, email, password string) (*domain.Identity, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[normalized]; exists {
		return nil, &domain.ErrConflict{Message: "email already registered"}
	}

	uid := uuid.NewString()
	s.credentials[normalized] = credential{uid: uid, email: normalized, passwordHash: hash}
	return &domain.Identity{UID: uid, Email: normalized}, nil
}

func (s *Store) VerifyCredentials(ctx context.Context, email, password string) (*domain.Identity, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	cred, ok := s.credentials[normalized]
	s.mu.Unlock()

	// bcrypt comparison happens outside the lock; it is deliberately slow.
	if !ok {
		return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}
	if err := bcrypt.CompareHashAndPassword(cred.passwordHash, []byte(password)); err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}
	return &domain.Identity{UID: cred.uid, Email: cred.email}, nil
}

// ============================================================
// port.TokenStore
// ============================================================

func (s *Store) StoreRefreshToken(ctx context.Context, uid, email, tokenHash string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[tokenHash] = &domain.RefreshToken{
		ID:        uuid.NewString(),
		UID:       uid,
		Email:     email,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "refresh_token", ID: "(hash)"}
	}
	out := *t
	return &out, nil
}

func (s *Store) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tokens[tokenHash]; ok {
		t.Revoked = true
	}
	return nil
}

func (s *Store) RevokeAllRefreshTokens(ctx context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.UID == uid {
			t.Revoked = true
		}
	}
	return nil
}
