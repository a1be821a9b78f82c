package domain

// ============================================================
// Ledger - request / response types (matches frontend API contract)
// ============================================================

// DepositRequest is the body for POST /account/deposit.
type DepositRequest struct {
	UID       string  `json:"uid"`
	AccountID string  `json:"accountId"`
	Amount    float64 `json:"amount"`
}

// WithdrawRequest is the body for POST /account/withdraw.
type WithdrawRequest struct {
	UID       string  `json:"uid"`
	AccountID string  `json:"accountId"`
	Amount    float64 `json:"amount"`
}

// TransferRequest is the body for POST /account/transfer.
// Exactly one of RecipientEmail (external) or RecipientAccountID (internal)
// is used, selected by IsInternalTransfer.
type TransferRequest struct {
	SenderUID          string  `json:"senderUid"`
	SenderAccountID    string  `json:"senderAccountId"`
	RecipientEmail     string  `json:"recipientEmail,omitempty"`
	RecipientAccountID string  `json:"recipientAccountId,omitempty"`
	Amount             float64 `json:"amount"`
	IsInternalTransfer bool    `json:"isInternalTransfer"`
}

// EmailLookupRequest is the body for POST /account/user/email.
type EmailLookupRequest struct {
	Email string `json:"email"`
}

// MutationResponse is the 200 body for deposit/withdraw: a human-readable
// message plus the post-operation balance.
type MutationResponse struct {
	Message string  `json:"message"`
	Balance float64 `json:"balance"`
}

// TransferInstruction is the fully resolved, validated two-sided update the
// store applies as one atomic unit. Amount is always positive; the store
// debits the sender side and credits the recipient side or does neither.
type TransferInstruction struct {
	SenderUID            string
	SenderAccountID      string
	RecipientUID         string
	RecipientAccountID   string
	Amount               float64
	SenderDescription    string
	RecipientDescription string
}

// ReconciliationReport compares an account's stored balance against the sum
// of its transaction log. A drift means a mutation and its ledger entry were
// not applied together.
type ReconciliationReport struct {
	UID        string  `json:"uid"`
	AccountID  string  `json:"account_id"`
	Balance    float64 `json:"balance"`
	LedgerSum  float64 `json:"ledger_sum"`
	Drift      float64 `json:"drift"`
	Reconciled bool    `json:"reconciled"`
}
