package handler

import (
	"net/http"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AccountHandler serves the /account routes.
type AccountHandler struct {
	ledger *service.LedgerService
	logger *zap.Logger
}

// NewAccountHandler creates an account handler.
func NewAccountHandler(ledger *service.LedgerService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{ledger: ledger, logger: logger}
}

// ListAccounts handles GET /account/{uid}/accounts. First contact provisions
// the default account set.
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	email := EmailFromContext(r.Context())

	accounts, err := h.ledger.GetOrCreateAccounts(r.Context(), uid, email)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// ListTransactions handles GET /account/{uid}/accounts/{accountId}/transactions.
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	accountID := chi.URLParam(r, "accountId")

	txs, err := h.ledger.ListTransactions(r.Context(), uid, accountID)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

// Overview handles GET /account/{uid}/overview.
func (h *AccountHandler) Overview(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")

	overview, err := h.ledger.Overview(r.Context(), uid)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// Reconcile handles GET /account/{uid}/accounts/{accountId}/reconcile.
func (h *AccountHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	accountID := chi.URLParam(r, "accountId")

	report, err := h.ledger.Reconcile(r.Context(), uid, accountID)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Deposit handles POST /account/deposit.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req domain.DepositRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if req.UID != UIDFromContext(r.Context()) {
		handleServiceError(w, &domain.ErrForbidden{Action: "cannot deposit into another user's account"}, h.logger)
		return
	}

	resp, err := h.ledger.Deposit(r.Context(), &req)
	if err != nil {
		handleMutationError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Withdraw handles POST /account/withdraw.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if req.UID != UIDFromContext(r.Context()) {
		handleServiceError(w, &domain.ErrForbidden{Action: "cannot withdraw from another user's account"}, h.logger)
		return
	}

	resp, err := h.ledger.Withdraw(r.Context(), &req)
	if err != nil {
		handleMutationError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Transfer handles POST /account/transfer.
func (h *AccountHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	if req.SenderUID != UIDFromContext(r.Context()) {
		handleServiceError(w, &domain.ErrForbidden{Action: "cannot transfer from another user's account"}, h.logger)
		return
	}

	if err := h.ledger.Transfer(r.Context(), &req); err != nil {
		handleMutationError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Transfer successful"})
}

// LookupUserByEmail handles POST /account/user/email.
func (h *AccountHandler) LookupUserByEmail(w http.ResponseWriter, r *http.Request) {
	var req domain.EmailLookupRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, err, h.logger)
		return
	}

	user, err := h.ledger.LookupUserByEmail(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"uid":   user.UID,
		"email": user.Email,
	})
}
