package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/handler"
	"github.com/acebanks/acebank-api-go/internal/infra/cache"
	"github.com/acebanks/acebank-api-go/internal/infra/memstore"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/service"

	"go.uber.org/zap"
)

// newTestRouter wires the full stack over the in-memory store.
func newTestRouter() http.Handler {
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memstore.New()

	lockoutSvc := service.NewLockoutService(store, 3, time.Minute, metrics, logger)
	authSvc := service.NewAuthService(store, store, lockoutSvc, "test-secret", 15*time.Minute, 24*time.Hour, metrics, logger)
	ledgerSvc := service.NewLedgerService(store, cache.New[domain.User](5*time.Minute), metrics, logger)

	return handler.NewRouter(ledgerSvc, authSvc, metrics, nil, logger)
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// signupAndLogin registers a user and returns uid and access token.
func signupAndLogin(t *testing.T, router http.Handler, email string) (uid, token string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/auth/signup", "", map[string]string{
		"email": email, "password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email": email, "password": "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.UID, resp.AccessToken
}

func TestOperationalEndpoints(t *testing.T) {
	router := newTestRouter()

	for _, path := range []string{"/healthz", "/readyz", "/metrics", "/ping", "/ops/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
		}
	}
}

func TestAccountRoutes_RequireToken(t *testing.T) {
	router := newTestRouter()

	rec := doJSON(t, router, http.MethodGet, "/account/u-1/accounts", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/account/deposit", "", map[string]any{
		"uid": "u-1", "accountId": "checking", "amount": 10,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}
}

func TestAccountRoutes_RejectForeignUID(t *testing.T) {
	router := newTestRouter()
	_, aliceToken := signupAndLogin(t, router, "alice@example.com")
	bobUID, _ := signupAndLogin(t, router, "bob@example.com")

	rec := doJSON(t, router, http.MethodGet, "/account/"+bobUID+"/accounts", aliceToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign uid read, got %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/account/deposit", aliceToken, map[string]any{
		"uid": bobUID, "accountId": "checking", "amount": 10,
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for foreign uid deposit, got %d", rec.Code)
	}
}

func TestProvisioningAndDepositFlow(t *testing.T) {
	router := newTestRouter()
	uid, token := signupAndLogin(t, router, "alice@example.com")

	rec := doJSON(t, router, http.MethodGet, "/account/"+uid+"/accounts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list accounts: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var accounts []domain.Account
	if err := json.NewDecoder(rec.Body).Decode(&accounts); err != nil {
		t.Fatalf("decode accounts: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("expected 3 default accounts, got %d", len(accounts))
	}

	rec = doJSON(t, router, http.MethodPost, "/account/deposit", token, map[string]any{
		"uid": uid, "accountId": "checking", "amount": 42.5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var mutation domain.MutationResponse
	if err := json.NewDecoder(rec.Body).Decode(&mutation); err != nil {
		t.Fatalf("decode deposit response: %v", err)
	}
	if mutation.Balance != 42.5 {
		t.Errorf("expected balance 42.5, got %f", mutation.Balance)
	}

	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/account/%s/accounts/checking/transactions", uid), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("transactions: expected 200, got %d", rec.Code)
	}
	var txs []domain.Transaction
	if err := json.NewDecoder(rec.Body).Decode(&txs); err != nil {
		t.Fatalf("decode transactions: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("expected opening entry plus deposit, got %d entries", len(txs))
	}
	if txs[0].Description != domain.DescDeposit || txs[0].Amount != 42.5 {
		t.Errorf("unexpected newest entry: %+v", txs[0])
	}
}

func TestWithdraw_InsufficientFundsIs400(t *testing.T) {
	router := newTestRouter()
	uid, token := signupAndLogin(t, router, "alice@example.com")

	// Provision via first read
	doJSON(t, router, http.MethodGet, "/account/"+uid+"/accounts", token, nil)

	rec := doJSON(t, router, http.MethodPost, "/account/withdraw", token, map[string]any{
		"uid": uid, "accountId": "checking", "amount": 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for insufficient funds, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	var errResp struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errResp.Message == "" {
		t.Error("expected error body with message field")
	}
}

func TestTransfer_EndToEnd(t *testing.T) {
	router := newTestRouter()
	aliceUID, aliceToken := signupAndLogin(t, router, "alice@example.com")
	bobUID, bobToken := signupAndLogin(t, router, "bob@example.com")

	doJSON(t, router, http.MethodGet, "/account/"+aliceUID+"/accounts", aliceToken, nil)
	doJSON(t, router, http.MethodGet, "/account/"+bobUID+"/accounts", bobToken, nil)

	rec := doJSON(t, router, http.MethodPost, "/account/deposit", aliceToken, map[string]any{
		"uid": aliceUID, "accountId": "checking", "amount": 100,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit: %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/account/transfer", aliceToken, map[string]any{
		"senderUid":          aliceUID,
		"senderAccountId":    "checking",
		"recipientEmail":     "bob@example.com",
		"amount":             60,
		"isInternalTransfer": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("transfer: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/account/"+bobUID+"/overview", bobToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("overview: %d", rec.Code)
	}
	var overview domain.Overview
	if err := json.NewDecoder(rec.Body).Decode(&overview); err != nil {
		t.Fatalf("decode overview: %v", err)
	}
	for _, st := range overview.Statements {
		if st.Account.ID == domain.DefaultAccountID && st.Account.Balance != 60 {
			t.Errorf("expected bob's checking balance 60, got %f", st.Account.Balance)
		}
	}

	rec = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/account/%s/accounts/checking/reconcile", aliceUID), aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile: %d", rec.Code)
	}
	var report domain.ReconciliationReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if !report.Reconciled || report.Balance != 40 {
		t.Errorf("expected reconciled balance 40, got %+v", report)
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	router := newTestRouter()
	uid, token := signupAndLogin(t, router, "alice@example.com")

	rec := doJSON(t, router, http.MethodPost, "/account/deposit", token, map[string]any{
		"uid": uid, "accountId": "checking", "amount": 10, "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown field, got %d", rec.Code)
	}
}

func TestCheckLockoutEndpoint(t *testing.T) {
	router := newTestRouter()
	signupAndLogin(t, router, "alice@example.com")

	for i := 0; i < 3; i++ {
		doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "wrong",
		})
	}

	rec := doJSON(t, router, http.MethodPost, "/auth/check-lockout", "", map[string]string{
		"email": "alice@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("check-lockout: expected 200, got %d", rec.Code)
	}
	var state domain.CheckLockoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.IsLockedOut {
		t.Error("expected lockout after three failed logins")
	}

	// Locked login returns 403 with the unlock time in the message
	rec = doJSON(t, router, http.MethodPost, "/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "hunter22",
	})
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 while locked, got %d", rec.Code)
	}
}

func TestEmailLookup(t *testing.T) {
	router := newTestRouter()
	aliceUID, aliceToken := signupAndLogin(t, router, "alice@example.com")

	// Provision so the bank user record exists
	doJSON(t, router, http.MethodGet, "/account/"+aliceUID+"/accounts", aliceToken, nil)

	rec := doJSON(t, router, http.MethodPost, "/account/user/email", aliceToken, map[string]string{
		"email": "ALICE@example.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d. Body: %s", rec.Code, rec.Body.String())
	}
	var result map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result["uid"] != aliceUID {
		t.Errorf("expected uid %s, got %s", aliceUID, result["uid"])
	}

	rec = doJSON(t, router, http.MethodPost, "/account/user/email", aliceToken, map[string]string{
		"email": "ghost@example.com",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown email, got %d", rec.Code)
	}
}

func TestLogout(t *testing.T) {
	router := newTestRouter()
	_, token := signupAndLogin(t, router, "alice@example.com")

	rec := doJSON(t, router, http.MethodPost, "/auth/logout", token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
