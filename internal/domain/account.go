package domain

import "time"

// ============================================================
// Accounts
// ============================================================

// Account is one of a user's named accounts. IDs are stable slugs unique
// within the user's account set ("checking", "savings", "credit").
type Account struct {
	ID      string  `json:"id"`
	UserID  string  `json:"user_id"`
	Type    string  `json:"type"`
	Balance float64 `json:"balance"`
}

// DefaultAccounts returns the account set provisioned for a new user,
// all at zero balance.
func DefaultAccounts(uid string) []Account {
	return []Account{
		{ID: "checking", UserID: uid, Type: "Checking Account"},
		{ID: "savings", UserID: uid, Type: "Savings Account"},
		{ID: "credit", UserID: uid, Type: "Credit Card Account"},
	}
}

// DefaultAccountID is the account credited by external (email) transfers.
const DefaultAccountID = "checking"

// ============================================================
// Transaction log (append-only)
// ============================================================

// Transaction is a single ledger entry. Amount is signed: positive for
// credits, negative for debits.
type Transaction struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	AccountID   string    `json:"account_id"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      float64   `json:"amount"`
}

// Canonical ledger entry descriptions.
const (
	DescAccountOpened = "Account opened"
	DescDeposit       = "Deposit"
	DescWithdrawal    = "Withdrawal"
)

// ============================================================
// Users
// ============================================================

// User is the banking-side record of an identity. The uid comes from the
// identity provider; email is the human-facing lookup key for transfers.
type User struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountStatement pairs an account with its transaction log.
type AccountStatement struct {
	Account      Account       `json:"account"`
	Transactions []Transaction `json:"transactions"`
}

// Overview is the balance-page aggregate: all accounts plus their
// recent transactions.
type Overview struct {
	UID        string             `json:"uid"`
	Statements []AccountStatement `json:"statements"`
}
