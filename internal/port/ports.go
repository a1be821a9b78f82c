// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
)

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// LedgerStore defines all data operations for accounts and the transaction
// log. Implemented by the Supabase adapter and the in-memory store.
//
// Deposit, Withdraw and ApplyTransfer are atomic: the balance check, the
// balance mutation and the ledger append happen as one unit or not at all.
type LedgerStore interface {
	// Provisioning
	GetUser(ctx context.Context, uid string) (*domain.User, error)
	CreateUserWithAccounts(ctx context.Context, user *domain.User, accounts []domain.Account, opening []domain.Transaction) error

	// Accounts
	ListAccounts(ctx context.Context, uid string) ([]domain.Account, error)
	GetAccount(ctx context.Context, uid, accountID string) (*domain.Account, error)

	// Transaction log (append-only; writes happen only via the atomic
	// mutations below)
	ListTransactions(ctx context.Context, uid, accountID string) ([]domain.Transaction, error)

	// Atomic mutations
	Deposit(ctx context.Context, uid, accountID string, amount float64, description string) (*domain.Account, error)
	Withdraw(ctx context.Context, uid, accountID string, amount float64, description string) (*domain.Account, error)
	ApplyTransfer(ctx context.Context, instr *domain.TransferInstruction) error

	// Email lookup (normalized, exact match)
	FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error)
}

// LockoutStore persists per-identity failed-login state. RecordFailure is an
// atomic read-modify-write: it increments the counter and, at the threshold,
// sets the lock and resets the counter in one step.
type LockoutStore interface {
	GetLockout(ctx context.Context, email string) (*domain.LockoutRecord, error)
	RecordFailure(ctx context.Context, email string, threshold int, lockFor time.Duration) (*domain.LockoutRecord, error)
	ClearLockout(ctx context.Context, email string) error
}

// IdentityProvider is the external credential authority. It owns passwords;
// this system never sees or stores them beyond pass-through.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, email, password string) (*domain.Identity, error)
	VerifyCredentials(ctx context.Context, email, password string) (*domain.Identity, error)
}

// TokenStore persists refresh tokens (sha256-hashed at rest).
type TokenStore interface {
	StoreRefreshToken(ctx context.Context, uid, email, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeAllRefreshTokens(ctx context.Context, uid string) error
}
