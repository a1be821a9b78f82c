package service_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/cache"
	"github.com/acebanks/acebank-api-go/internal/infra/memstore"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/service"

	"go.uber.org/zap"
)

func newLedgerService() (*service.LedgerService, *memstore.Store) {
	store := memstore.New()
	svc := service.NewLedgerService(
		store,
		cache.New[domain.User](5*time.Minute),
		observability.NewMetrics(),
		zap.NewNop(),
	)
	return svc, store
}

func mustProvision(t *testing.T, svc *service.LedgerService, uid, email string) {
	t.Helper()
	if _, err := svc.GetOrCreateAccounts(context.Background(), uid, email); err != nil {
		t.Fatalf("provisioning failed: %v", err)
	}
}

func TestGetOrCreateAccounts_ProvisionsDefaults(t *testing.T) {
	svc, _ := newLedgerService()

	accounts, err := svc.GetOrCreateAccounts(context.Background(), "u-1", "u1@example.com")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("expected 3 default accounts, got %d", len(accounts))
	}

	want := map[string]string{
		"checking": "Checking Account",
		"savings":  "Savings Account",
		"credit":   "Credit Card Account",
	}
	for _, a := range accounts {
		if a.Balance != 0 {
			t.Errorf("account %s: expected zero balance, got %f", a.ID, a.Balance)
		}
		if want[a.ID] != a.Type {
			t.Errorf("account %s: expected type '%s', got '%s'", a.ID, want[a.ID], a.Type)
		}
	}

	// Each account opens with a single zero-amount entry
	txs, err := svc.ListTransactions(context.Background(), "u-1", "checking")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Description != domain.DescAccountOpened || txs[0].Amount != 0 {
		t.Errorf("expected single zero-amount opening entry, got %+v", txs)
	}
}

func TestGetOrCreateAccounts_Idempotent(t *testing.T) {
	svc, _ := newLedgerService()
	ctx := context.Background()

	first, err := svc.GetOrCreateAccounts(ctx, "u-1", "u1@example.com")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := svc.GetOrCreateAccounts(ctx, "u-1", "u1@example.com")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("expected same account set, got %d then %d", len(first), len(second))
	}

	txs, _ := svc.ListTransactions(ctx, "u-1", "checking")
	if len(txs) != 1 {
		t.Errorf("expected provisioning to not duplicate opening entries, got %d", len(txs))
	}
}

func TestDeposit_InvalidAmounts(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "u-1", "u1@example.com")

	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		_, err := svc.Deposit(context.Background(), &domain.DepositRequest{
			UID: "u-1", AccountID: "checking", Amount: amount,
		})
		var validation *domain.ErrValidation
		if !errors.As(err, &validation) {
			t.Errorf("amount %f: expected validation error, got %v", amount, err)
		}
	}
}

func TestDepositWithdraw_Flow(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "u-1", "u1@example.com")
	ctx := context.Background()

	resp, err := svc.Deposit(ctx, &domain.DepositRequest{UID: "u-1", AccountID: "checking", Amount: 150})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if resp.Balance != 150 {
		t.Errorf("expected balance 150, got %f", resp.Balance)
	}

	resp, err = svc.Withdraw(ctx, &domain.WithdrawRequest{UID: "u-1", AccountID: "checking", Amount: 60})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if resp.Balance != 90 {
		t.Errorf("expected balance 90, got %f", resp.Balance)
	}

	_, err = svc.Withdraw(ctx, &domain.WithdrawRequest{UID: "u-1", AccountID: "checking", Amount: 1000})
	var insufficient *domain.ErrInsufficientFunds
	if !errors.As(err, &insufficient) {
		t.Errorf("expected insufficient funds error, got %v", err)
	}

	report, err := svc.Reconcile(ctx, "u-1", "checking")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Reconciled {
		t.Errorf("expected account to reconcile, drift %f", report.Drift)
	}
}

func TestTransfer_Internal(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "u-1", "u1@example.com")
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, &domain.DepositRequest{UID: "u-1", AccountID: "checking", Amount: 100}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := svc.Transfer(ctx, &domain.TransferRequest{
		SenderUID:          "u-1",
		SenderAccountID:    "checking",
		RecipientAccountID: "savings",
		Amount:             40,
		IsInternalTransfer: true,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	overview, err := svc.Overview(ctx, "u-1")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	balances := map[string]float64{}
	for _, st := range overview.Statements {
		balances[st.Account.ID] = st.Account.Balance
	}
	if balances["checking"] != 60 || balances["savings"] != 40 {
		t.Errorf("expected 60/40 split, got %f/%f", balances["checking"], balances["savings"])
	}
}

func TestTransfer_SameAccountRejected(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "u-1", "u1@example.com")

	err := svc.Transfer(context.Background(), &domain.TransferRequest{
		SenderUID:          "u-1",
		SenderAccountID:    "savings",
		RecipientAccountID: "savings",
		Amount:             10,
		IsInternalTransfer: true,
	})
	var validation *domain.ErrValidation
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for same-account transfer, got %v", err)
	}
}

func TestTransfer_External_Conservation(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "sender", "sender@example.com")
	mustProvision(t, svc, "recipient", "recipient@example.com")
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, &domain.DepositRequest{UID: "sender", AccountID: "checking", Amount: 100}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Email matching is case- and whitespace-insensitive
	err := svc.Transfer(ctx, &domain.TransferRequest{
		SenderUID:       "sender",
		SenderAccountID: "checking",
		RecipientEmail:  "  Recipient@Example.COM ",
		Amount:          35,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	senderOverview, _ := svc.Overview(ctx, "sender")
	recipientOverview, _ := svc.Overview(ctx, "recipient")

	var total float64
	for _, st := range append(senderOverview.Statements, recipientOverview.Statements...) {
		total += st.Account.Balance
	}
	if total != 100 {
		t.Errorf("transfer did not conserve total balance: got %f", total)
	}

	// Recipient's entry lands in the default account with the sender's email
	txs, _ := svc.ListTransactions(ctx, "recipient", domain.DefaultAccountID)
	if len(txs) < 1 || txs[0].Description != "Transfer from sender@example.com" {
		t.Errorf("unexpected recipient ledger: %+v", txs)
	}
	if txs[0].Amount != 35 {
		t.Errorf("expected credit of 35, got %f", txs[0].Amount)
	}
}

func TestTransfer_RecipientNotFound(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "sender", "sender@example.com")
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, &domain.DepositRequest{UID: "sender", AccountID: "checking", Amount: 100}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := svc.Transfer(ctx, &domain.TransferRequest{
		SenderUID:       "sender",
		SenderAccountID: "checking",
		RecipientEmail:  "ghost@example.com",
		Amount:          10,
	})
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected not found error, got %v", err)
	}

	// Sender untouched by the failed transfer
	report, _ := svc.Reconcile(ctx, "sender", "checking")
	if report.Balance != 100 {
		t.Errorf("expected sender balance 100 after failed transfer, got %f", report.Balance)
	}
}

func TestLookupUserByEmail_Ambiguous(t *testing.T) {
	svc, store := newLedgerService()
	ctx := context.Background()

	// Two provisioned users sharing an email: the lookup must refuse to pick.
	for _, uid := range []string{"u-1", "u-2"} {
		user := &domain.User{UID: uid, Email: "dup@example.com", CreatedAt: time.Now().UTC()}
		if err := store.CreateUserWithAccounts(ctx, user, domain.DefaultAccounts(uid), nil); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	_, err := svc.LookupUserByEmail(ctx, "dup@example.com")
	var ambiguous *domain.ErrAmbiguousEmail
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected ambiguous email error, got %v", err)
	}
	if ambiguous.Matches != 2 {
		t.Errorf("expected 2 matches, got %d", ambiguous.Matches)
	}
}

func TestConcurrentWithdrawals_OneWins(t *testing.T) {
	svc, _ := newLedgerService()
	mustProvision(t, svc, "u-1", "u1@example.com")
	ctx := context.Background()

	if _, err := svc.Deposit(ctx, &domain.DepositRequest{UID: "u-1", AccountID: "checking", Amount: 100}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Withdraw(ctx, &domain.WithdrawRequest{UID: "u-1", AccountID: "checking", Amount: 80})
		}()
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly one concurrent withdrawal to succeed, got %d", successes)
	}

	report, err := svc.Reconcile(ctx, "u-1", "checking")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Balance != 20 || !report.Reconciled {
		t.Errorf("expected reconciled balance 20, got %f (reconciled=%v)", report.Balance, report.Reconciled)
	}
}
