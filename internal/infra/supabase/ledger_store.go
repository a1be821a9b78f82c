package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// Tags raised by the SQL functions in db/schema.sql.
const (
	tagInsufficientFunds = "INSUFFICIENT_FUNDS"
	tagAccountNotFound   = "ACCOUNT_NOT_FOUND"
)

// ============================================================
// Row mappings
// ============================================================

type userRow struct {
	UID       string `json:"uid"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

func (r userRow) toDomain() domain.User {
	t, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return domain.User{UID: r.UID, Email: r.Email, CreatedAt: t}
}

type accountRow struct {
	AccountID string  `json:"account_id"`
	UserID    string  `json:"user_id"`
	Type      string  `json:"account_type"`
	Balance   float64 `json:"balance"`
}

func (r accountRow) toDomain() domain.Account {
	return domain.Account{ID: r.AccountID, UserID: r.UserID, Type: r.Type, Balance: r.Balance}
}

type transactionRow struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	AccountID   string  `json:"account_id"`
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
}

func (r transactionRow) toDomain() domain.Transaction {
	t, _ := time.Parse(time.RFC3339, r.Date)
	return domain.Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		AccountID:   r.AccountID,
		Date:        t,
		Description: r.Description,
		Amount:      r.Amount,
	}
}

// ============================================================
// Provisioning (implements part of port.LedgerStore)
// ============================================================

// GetUser fetches a bank user record by uid.
func (c *Client) GetUser(ctx context.Context, uid string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	var user *domain.User

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("bank_users?uid=eq.%s&limit=1", url.QueryEscape(uid))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "user", ID: uid}
			}

			var rows []userRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode user: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "user", ID: uid}
			}

			u := rows[0].toDomain()
			user = &u
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/users", err)
	}
	return user, nil
}

// CreateUserWithAccounts provisions the user record, the default accounts and
// their opening ledger entries. Inserts are ordered so a crash mid-way leaves
// a re-runnable state for the idempotent provisioning read.
func (c *Client) CreateUserWithAccounts(ctx context.Context, user *domain.User, accounts []domain.Account, opening []domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUserWithAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", user.UID))

	_, err := c.cb.Execute(func() (any, error) {
		if _, err := c.doPost(ctx, "bank_users", map[string]any{
			"uid":        user.UID,
			"email":      user.Email,
			"created_at": user.CreatedAt.Format(time.RFC3339),
		}); err != nil {
			return nil, err
		}

		accountRows := make([]map[string]any, 0, len(accounts))
		for _, a := range accounts {
			accountRows = append(accountRows, map[string]any{
				"account_id":   a.ID,
				"user_id":      a.UserID,
				"account_type": a.Type,
				"balance":      a.Balance,
			})
		}
		if _, err := c.doPost(ctx, "accounts", accountRows); err != nil {
			return nil, err
		}

		txRows := make([]map[string]any, 0, len(opening))
		for _, t := range opening {
			txRows = append(txRows, map[string]any{
				"id":          t.ID,
				"user_id":     t.UserID,
				"account_id":  t.AccountID,
				"date":        t.Date.Format(time.RFC3339),
				"description": t.Description,
				"amount":      t.Amount,
			})
		}
		if _, err := c.doPost(ctx, "account_transactions", txRows); err != nil {
			return nil, err
		}
		return nil, nil
	})

	if err != nil {
		return wrapStoreError("supabase/users", err)
	}
	return nil
}

// ============================================================
// Accounts / transaction log
// ============================================================

// ListAccounts fetches all accounts for a user.
func (c *Client) ListAccounts(ctx context.Context, uid string) ([]domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListAccounts")
	defer span.End()
	span.SetAttributes(attribute.String("user.uid", uid))

	var accounts []domain.Account

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("accounts?user_id=eq.%s&order=account_id.asc", url.QueryEscape(uid))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			accounts = []domain.Account{}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []accountRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode accounts: %w", err)
			}
			for _, r := range rows {
				accounts = append(accounts, r.toDomain())
			}
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/accounts", err)
	}
	return accounts, nil
}

// GetAccount fetches one account.
func (c *Client) GetAccount(ctx context.Context, uid, accountID string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetAccount")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", uid),
		attribute.String("account.id", accountID),
	)

	var account *domain.Account

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("accounts?user_id=eq.%s&account_id=eq.%s&limit=1",
				url.QueryEscape(uid), url.QueryEscape(accountID))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "account", ID: accountID}
			}

			var rows []accountRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode account: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "account", ID: accountID}
			}

			a := rows[0].toDomain()
			account = &a
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/accounts", err)
	}
	return account, nil
}

// ListTransactions fetches the ledger for one account, newest first.
func (c *Client) ListTransactions(ctx context.Context, uid, accountID string) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTransactions")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", uid),
		attribute.String("account.id", accountID),
	)

	var transactions []domain.Transaction

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("account_transactions?user_id=eq.%s&account_id=eq.%s&order=date.desc",
				url.QueryEscape(uid), url.QueryEscape(accountID))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			transactions = []domain.Transaction{}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []transactionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode transactions: %w", err)
			}
			for _, r := range rows {
				transactions = append(transactions, r.toDomain())
			}
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/transactions", err)
	}
	return transactions, nil
}

// ============================================================
// Atomic mutations (PostgREST RPC, no client-side retry)
// ============================================================

// Deposit credits an account and appends the ledger entry in one SQL call.
func (c *Client) Deposit(ctx context.Context, uid, accountID string, amount float64, description string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Deposit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", uid),
		attribute.String("account.id", accountID),
	)

	return c.callMutationRPC(ctx, "ledger_deposit", map[string]any{
		"p_uid":         uid,
		"p_account_id":  accountID,
		"p_amount":      amount,
		"p_description": description,
	}, accountID)
}

// Withdraw debits an account if funds suffice, appending the ledger entry in
// the same SQL call. Insufficient funds raise a tagged SQL error.
func (c *Client) Withdraw(ctx context.Context, uid, accountID string, amount float64, description string) (*domain.Account, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Withdraw")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.uid", uid),
		attribute.String("account.id", accountID),
	)

	return c.callMutationRPC(ctx, "ledger_withdraw", map[string]any{
		"p_uid":         uid,
		"p_account_id":  accountID,
		"p_amount":      amount,
		"p_description": description,
	}, accountID)
}

// ApplyTransfer debits the sender and credits the recipient, with both ledger
// entries, in one SQL transaction. All-or-nothing.
func (c *Client) ApplyTransfer(ctx context.Context, instr *domain.TransferInstruction) error {
	ctx, span := tracer.Start(ctx, "Supabase.ApplyTransfer")
	defer span.End()
	span.SetAttributes(
		attribute.String("sender.uid", instr.SenderUID),
		attribute.String("recipient.uid", instr.RecipientUID),
	)

	_, err := c.cb.Execute(func() (any, error) {
		return c.doRPC(ctx, "ledger_transfer", map[string]any{
			"p_sender_uid":            instr.SenderUID,
			"p_sender_account_id":     instr.SenderAccountID,
			"p_recipient_uid":         instr.RecipientUID,
			"p_recipient_account_id":  instr.RecipientAccountID,
			"p_amount":                instr.Amount,
			"p_sender_description":    instr.SenderDescription,
			"p_recipient_description": instr.RecipientDescription,
		})
	})

	if err != nil {
		return mapMutationError("supabase/ledger", err, instr.SenderAccountID)
	}
	return nil
}

func (c *Client) callMutationRPC(ctx context.Context, fn string, params map[string]any, accountID string) (*domain.Account, error) {
	var account *domain.Account

	_, err := c.cb.Execute(func() (any, error) {
		body, err := c.doRPC(ctx, fn, params)
		if err != nil {
			return nil, err
		}

		var row accountRow
		if err := json.Unmarshal(body, &row); err != nil {
			return nil, fmt.Errorf("failed to decode %s result: %w", fn, err)
		}
		a := row.toDomain()
		account = &a
		return nil, nil
	})

	if err != nil {
		return nil, mapMutationError("supabase/ledger", err, accountID)
	}
	return account, nil
}

// ============================================================
// Email lookup
// ============================================================

// FindUsersByEmail returns all bank users with the given normalized email.
// The caller decides what zero or multiple matches mean.
func (c *Client) FindUsersByEmail(ctx context.Context, email string) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.FindUsersByEmail")
	defer span.End()

	var users []domain.User

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("bank_users?email=eq.%s", url.QueryEscape(email))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			users = []domain.User{}
			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []userRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode users: %w", err)
			}
			for _, r := range rows {
				users = append(users, r.toDomain())
			}
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/users", err)
	}
	return users, nil
}

// ============================================================
// Error mapping
// ============================================================

// wrapStoreError passes domain errors through and wraps everything else as an
// external service failure.
func wrapStoreError(service string, err error) error {
	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return notFound
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}

// mapMutationError translates SQL-raised business failures from RPC calls
// into their domain error forms.
func mapMutationError(service string, err error, accountID string) error {
	var rpcErr *rpcError
	if errors.As(err, &rpcErr) {
		switch {
		case rpcErr.contains(tagInsufficientFunds):
			return &domain.ErrInsufficientFunds{}
		case rpcErr.contains(tagAccountNotFound):
			return &domain.ErrNotFound{Resource: "account", ID: accountID}
		}
	}
	return &domain.ErrExternalService{Service: service, Err: err}
}
