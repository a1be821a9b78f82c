package memstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/memstore"

	"github.com/google/uuid"
)

func provision(t *testing.T, s *memstore.Store, uid, email string) {
	t.Helper()
	now := time.Now().UTC()
	user := &domain.User{UID: uid, Email: email, CreatedAt: now}
	accounts := domain.DefaultAccounts(uid)
	opening := make([]domain.Transaction, 0, len(accounts))
	for _, a := range accounts {
		opening = append(opening, domain.Transaction{
			ID:          uuid.NewString(),
			UserID:      uid,
			AccountID:   a.ID,
			Date:        now,
			Description: domain.DescAccountOpened,
		})
	}
	if err := s.CreateUserWithAccounts(context.Background(), user, accounts, opening); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
}

func TestDepositWithdraw_BalanceAndLedger(t *testing.T) {
	s := memstore.New()
	provision(t, s, "u-1", "u1@example.com")
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "u-1", "checking", 100, domain.DescDeposit); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	acc, err := s.Withdraw(ctx, "u-1", "checking", 30, domain.DescWithdrawal)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if acc.Balance != 70 {
		t.Errorf("expected balance 70, got %f", acc.Balance)
	}

	txs, err := s.ListTransactions(ctx, "u-1", "checking")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	// Opening entry + deposit + withdrawal
	if len(txs) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(txs))
	}
	// Newest first
	if txs[0].Amount != -30 {
		t.Errorf("expected newest entry -30, got %f", txs[0].Amount)
	}

	var sum float64
	for _, tx := range txs {
		sum += tx.Amount
	}
	if sum != acc.Balance {
		t.Errorf("ledger sum %f does not match balance %f", sum, acc.Balance)
	}
}

func TestWithdraw_InsufficientFunds(t *testing.T) {
	s := memstore.New()
	provision(t, s, "u-1", "u1@example.com")
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "u-1", "savings", 50, domain.DescDeposit); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	_, err := s.Withdraw(ctx, "u-1", "savings", 80, domain.DescWithdrawal)
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}

	// Balance untouched, no ledger entry appended
	acc, _ := s.GetAccount(ctx, "u-1", "savings")
	if acc.Balance != 50 {
		t.Errorf("expected balance 50 after rejected withdrawal, got %f", acc.Balance)
	}
	txs, _ := s.ListTransactions(ctx, "u-1", "savings")
	if len(txs) != 2 {
		t.Errorf("expected 2 ledger entries, got %d", len(txs))
	}
}

func TestConcurrentWithdrawals_ExactlyOneSucceeds(t *testing.T) {
	s := memstore.New()
	provision(t, s, "u-1", "u1@example.com")
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "u-1", "checking", 100, domain.DescDeposit); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = s.Withdraw(ctx, "u-1", "checking", 80, domain.DescWithdrawal)
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
		t.Fatalf("expected exactly one of two concurrent withdrawals to succeed, got %d", successes)
	}

	acc, _ := s.GetAccount(ctx, "u-1", "checking")
	if acc.Balance != 20 {
		t.Errorf("expected balance 20, got %f", acc.Balance)
	}
}

func TestApplyTransfer_AllOrNothing(t *testing.T) {
	s := memstore.New()
	provision(t, s, "sender", "sender@example.com")
	provision(t, s, "recipient", "recipient@example.com")
	ctx := context.Background()

	if _, err := s.Deposit(ctx, "sender", "checking", 40, domain.DescDeposit); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Insufficient funds: neither side changes
	err := s.ApplyTransfer(ctx, &domain.TransferInstruction{
		SenderUID:            "sender",
		SenderAccountID:      "checking",
		RecipientUID:         "recipient",
		RecipientAccountID:   "checking",
		Amount:               100,
		SenderDescription:    "Transfer to recipient@example.com",
		RecipientDescription: "Transfer from sender@example.com",
	})
	if err == nil {
		t.Fatal("expected insufficient funds error")
	}
	recAcc, _ := s.GetAccount(ctx, "recipient", "checking")
	if recAcc.Balance != 0 {
		t.Errorf("expected recipient balance 0 after failed transfer, got %f", recAcc.Balance)
	}

	// Successful transfer conserves the total
	err = s.ApplyTransfer(ctx, &domain.TransferInstruction{
		SenderUID:            "sender",
		SenderAccountID:      "checking",
		RecipientUID:         "recipient",
		RecipientAccountID:   "checking",
		Amount:               25,
		SenderDescription:    "Transfer to recipient@example.com",
		RecipientDescription: "Transfer from sender@example.com",
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	senderAcc, _ := s.GetAccount(ctx, "sender", "checking")
	recAcc, _ = s.GetAccount(ctx, "recipient", "checking")
	if senderAcc.Balance != 15 {
		t.Errorf("expected sender balance 15, got %f", senderAcc.Balance)
	}
	if recAcc.Balance != 25 {
		t.Errorf("expected recipient balance 25, got %f", recAcc.Balance)
	}
	if senderAcc.Balance+recAcc.Balance != 40 {
		t.Errorf("transfer did not conserve total: %f", senderAcc.Balance+recAcc.Balance)
	}
}

func TestRecordFailure_ThresholdSetsLockAndResetsCounter(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rec, err := s.RecordFailure(ctx, "x@example.com", 3, time.Minute)
		if err != nil {
			t.Fatalf("record failure: %v", err)
		}
		if rec.LockoutEndTime != nil {
			t.Fatalf("unexpected lock after %d failures", i+1)
		}
	}

	rec, err := s.RecordFailure(ctx, "x@example.com", 3, time.Minute)
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if rec.LockoutEndTime == nil {
		t.Fatal("expected lock after threshold failures")
	}
	if rec.FailedAttempts != 0 {
		t.Errorf("expected counter reset to 0 when lock set, got %d", rec.FailedAttempts)
	}
}

func TestVerifyCredentials_Bcrypt(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	id, err := s.CreateIdentity(ctx, " Alice@Example.COM ", "hunter22")
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	if id.Email != "alice@example.com" {
		t.Errorf("expected normalized email, got '%s'", id.Email)
	}

	if _, err := s.VerifyCredentials(ctx, "alice@example.com", "hunter22"); err != nil {
		t.Fatalf("expected credentials to verify, got %v", err)
	}
	if _, err := s.VerifyCredentials(ctx, "alice@example.com", "wrong"); err == nil {
		t.Fatal("expected wrong password to fail")
	}
	if _, err := s.CreateIdentity(ctx, "alice@example.com", "other"); err == nil {
		t.Fatal("expected duplicate signup to fail")
	}
}
