// Package service holds the application services: the ledger (account
// provisioning and all money movement), the auth gateway and the login
// lockout policy. Every ledger mutation is delegated to an atomic store
// operation, so the service layer never does a read-then-write balance
// check of its own.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ledgerTracer = otel.Tracer("service/ledger")

const emailCacheName = "email_lookup"

// reconcileTolerance absorbs float64 rounding noise when summing the ledger.
const reconcileTolerance = 1e-6

// LedgerService orchestrates account and transaction operations.
type LedgerService struct {
	store      port.LedgerStore
	emailCache port.Cache[domain.User]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewLedgerService creates a ledger service.
func NewLedgerService(store port.LedgerStore, emailCache port.Cache[domain.User], metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		store:      store,
		emailCache: emailCache,
		metrics:    metrics,
		logger:     logger,
	}
}

// validAmount rejects non-positive, NaN and infinite amounts.
func validAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return &domain.ErrValidation{Field: "amount", Message: "amount must be a finite number"}
	}
	if amount <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "amount must be greater than zero"}
	}
	return nil
}

// ============================================================
// Provisioning - GET /account/{uid}/accounts
// ============================================================

// GetOrCreateAccounts returns the user's accounts, provisioning the default
// set on first contact: three accounts at zero balance, each with a single
// zero-amount opening entry. Safe to call repeatedly.
func (s *LedgerService) GetOrCreateAccounts(ctx context.Context, uid, email string) ([]domain.Account, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetOrCreateAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	if _, err := s.store.GetUser(ctx, uid); err != nil {
		var notFound *domain.ErrNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}

		now := time.Now().UTC()
		user := &domain.User{UID: uid, Email: normalizeEmail(email), CreatedAt: now}
		accounts := domain.DefaultAccounts(uid)

		opening := make([]domain.Transaction, 0, len(accounts))
		for _, a := range accounts {
			opening = append(opening, domain.Transaction{
				ID:          uuid.NewString(),
				UserID:      uid,
				AccountID:   a.ID,
				Date:        now,
				Description: domain.DescAccountOpened,
				Amount:      0,
			})
		}

		if err := s.store.CreateUserWithAccounts(ctx, user, accounts, opening); err != nil {
			// A concurrent request may have provisioned first; fall through
			// to the read in that case.
			var conflict *domain.ErrConflict
			if !errors.As(err, &conflict) {
				return nil, err
			}
		} else {
			s.logger.Info("default accounts provisioned", zap.String("uid", uid))
		}
	}

	return s.store.ListAccounts(ctx, uid)
}

// ============================================================
// Deposit - POST /account/deposit
// ============================================================

func (s *LedgerService) Deposit(ctx context.Context, req *domain.DepositRequest) (*domain.MutationResponse, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Deposit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", req.UID),
		attribute.String("account.id", req.AccountID),
	)
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("deposit", time.Since(start)) }()

	if err := validAmount(req.Amount); err != nil {
		s.metrics.IncrLedgerOp("deposit", "error")
		return nil, err
	}

	account, err := s.store.Deposit(ctx, req.UID, req.AccountID, req.Amount, domain.DescDeposit)
	if err != nil {
		s.metrics.IncrLedgerOp("deposit", "error")
		return nil, err
	}

	s.metrics.IncrLedgerOp("deposit", "success")
	s.logger.Info("deposit applied",
		zap.String("uid", req.UID),
		zap.String("account_id", req.AccountID),
		zap.Float64("amount", req.Amount),
	)

	return &domain.MutationResponse{
		Message: "Deposit successful",
		Balance: account.Balance,
	}, nil
}

// ============================================================
// Withdraw - POST /account/withdraw
// ============================================================

func (s *LedgerService) Withdraw(ctx context.Context, req *domain.WithdrawRequest) (*domain.MutationResponse, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Withdraw")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", req.UID),
		attribute.String("account.id", req.AccountID),
	)
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("withdraw", time.Since(start)) }()

	if err := validAmount(req.Amount); err != nil {
		s.metrics.IncrLedgerOp("withdraw", "error")
		return nil, err
	}

	account, err := s.store.Withdraw(ctx, req.UID, req.AccountID, req.Amount, domain.DescWithdrawal)
	if err != nil {
		s.metrics.IncrLedgerOp("withdraw", "error")
		return nil, err
	}

	s.metrics.IncrLedgerOp("withdraw", "success")
	s.logger.Info("withdrawal applied",
		zap.String("uid", req.UID),
		zap.String("account_id", req.AccountID),
		zap.Float64("amount", req.Amount),
	)

	return &domain.MutationResponse{
		Message: "Withdrawal successful",
		Balance: account.Balance,
	}, nil
}

// ============================================================
// Transfer - POST /account/transfer
// ============================================================

// Transfer resolves the recipient (another of the sender's accounts for
// internal moves, an email lookup for external ones), then hands the store a
// fully resolved instruction to apply all-or-nothing.
func (s *LedgerService) Transfer(ctx context.Context, req *domain.TransferRequest) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Transfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("sender.uid", req.SenderUID),
		attribute.Bool("internal", req.IsInternalTransfer),
	)
	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("transfer", time.Since(start)) }()

	if err := validAmount(req.Amount); err != nil {
		s.metrics.IncrLedgerOp("transfer", "error")
		return err
	}

	instr, err := s.resolveTransfer(ctx, req)
	if err != nil {
		s.metrics.IncrLedgerOp("transfer", "error")
		return err
	}

	if err := s.store.ApplyTransfer(ctx, instr); err != nil {
		s.metrics.IncrLedgerOp("transfer", "error")
		return err
	}

	s.metrics.IncrLedgerOp("transfer", "success")
	s.logger.Info("transfer applied",
		zap.String("sender_uid", instr.SenderUID),
		zap.String("recipient_uid", instr.RecipientUID),
		zap.Float64("amount", instr.Amount),
		zap.Bool("internal", req.IsInternalTransfer),
	)
	return nil
}

func (s *LedgerService) resolveTransfer(ctx context.Context, req *domain.TransferRequest) (*domain.TransferInstruction, error) {
	if req.IsInternalTransfer {
		if req.RecipientAccountID == "" {
			return nil, &domain.ErrValidation{Field: "recipientAccountId", Message: "recipient account is required for internal transfers"}
		}
		if req.RecipientAccountID == req.SenderAccountID {
			return nil, &domain.ErrValidation{Field: "recipientAccountId", Message: "cannot transfer to the same account"}
		}

		return &domain.TransferInstruction{
			SenderUID:            req.SenderUID,
			SenderAccountID:      req.SenderAccountID,
			RecipientUID:         req.SenderUID,
			RecipientAccountID:   req.RecipientAccountID,
			Amount:               req.Amount,
			SenderDescription:    fmt.Sprintf("Transfer to %s", req.RecipientAccountID),
			RecipientDescription: fmt.Sprintf("Transfer from %s", req.SenderAccountID),
		}, nil
	}

	if req.RecipientEmail == "" {
		return nil, &domain.ErrValidation{Field: "recipientEmail", Message: "recipient email is required"}
	}

	recipient, err := s.LookupUserByEmail(ctx, req.RecipientEmail)
	if err != nil {
		return nil, err
	}

	sender, err := s.store.GetUser(ctx, req.SenderUID)
	if err != nil {
		return nil, err
	}

	// External transfers land in the recipient's default account.
	if recipient.UID == req.SenderUID && req.SenderAccountID == domain.DefaultAccountID {
		return nil, &domain.ErrValidation{Field: "recipientEmail", Message: "cannot transfer to the same account"}
	}

	return &domain.TransferInstruction{
		SenderUID:            req.SenderUID,
		SenderAccountID:      req.SenderAccountID,
		RecipientUID:         recipient.UID,
		RecipientAccountID:   domain.DefaultAccountID,
		Amount:               req.Amount,
		SenderDescription:    fmt.Sprintf("Transfer to %s", recipient.Email),
		RecipientDescription: fmt.Sprintf("Transfer from %s", sender.Email),
	}, nil
}

// ============================================================
// Email lookup - POST /account/user/email
// ============================================================

// LookupUserByEmail resolves a normalized email to exactly one user. Zero
// matches is a not-found; multiple matches is an explicit ambiguity error,
// never a silent first-match.
func (s *LedgerService) LookupUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.LookupUserByEmail")
	defer span.End()

	normalized := normalizeEmail(email)
	if normalized == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email is required"}
	}

	if cached, ok := s.emailCache.Get(normalized); ok {
		s.metrics.IncrCacheHit(emailCacheName)
		out := cached
		return &out, nil
	}
	s.metrics.IncrCacheMiss(emailCacheName)

	users, err := s.store.FindUsersByEmail(ctx, normalized)
	if err != nil {
		return nil, err
	}

	switch len(users) {
	case 0:
		return nil, &domain.ErrNotFound{Resource: "user", ID: normalized}
	case 1:
		s.emailCache.Set(normalized, users[0])
		out := users[0]
		return &out, nil
	default:
		s.logger.Error("email lookup matched multiple users",
			zap.String("email", normalized),
			zap.Int("matches", len(users)),
		)
		return nil, &domain.ErrAmbiguousEmail{Email: normalized, Matches: len(users)}
	}
}

// ============================================================
// Reads - statements, overview, reconciliation
// ============================================================

// ListTransactions returns one account's ledger, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, uid, accountID string) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", uid),
		attribute.String("account.id", accountID),
	)

	return s.store.ListTransactions(ctx, uid, accountID)
}

// Overview fetches all accounts and their ledgers concurrently.
func (s *LedgerService) Overview(ctx context.Context, uid string) (*domain.Overview, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Overview")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	accounts, err := s.store.ListAccounts(ctx, uid)
	if err != nil {
		return nil, err
	}

	statements := make([]domain.AccountStatement, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	for i, account := range accounts {
		g.Go(func() error {
			txs, err := s.store.ListTransactions(gctx, uid, account.ID)
			if err != nil {
				return fmt.Errorf("list transactions for %s: %w", account.ID, err)
			}
			statements[i] = domain.AccountStatement{Account: account, Transactions: txs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Overview{UID: uid, Statements: statements}, nil
}

// Reconcile checks that an account's balance equals the sum of its ledger.
// A drift means a mutation and its ledger entry were not applied together.
func (s *LedgerService) Reconcile(ctx context.Context, uid, accountID string) (*domain.ReconciliationReport, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.Reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", uid),
		attribute.String("account.id", accountID),
	)

	account, err := s.store.GetAccount(ctx, uid, accountID)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.ListTransactions(ctx, uid, accountID)
	if err != nil {
		return nil, err
	}

	var sum float64
	for _, t := range txs {
		sum += t.Amount
	}

	drift := account.Balance - sum
	reconciled := math.Abs(drift) < reconcileTolerance
	if !reconciled {
		s.logger.Error("ledger drift detected",
			zap.String("uid", uid),
			zap.String("account_id", accountID),
			zap.Float64("balance", account.Balance),
			zap.Float64("ledger_sum", sum),
		)
	}

	return &domain.ReconciliationReport{
		UID:        uid,
		AccountID:  accountID,
		Balance:    account.Balance,
		LedgerSum:  sum,
		Drift:      drift,
		Reconciled: reconciled,
	}, nil
}
