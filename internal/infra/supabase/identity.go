package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/acebanks/acebank-api-go/internal/domain"

	"go.uber.org/zap"
)

// GoTrue is the external identity provider. It owns passwords end to end;
// this adapter only passes them through over TLS and never persists them.

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueSignupResponse struct {
	ID    string     `json:"id"`
	Email string     `json:"email"`
	User  gotrueUser `json:"user"`
}

type gotrueTokenResponse struct {
	AccessToken string     `json:"access_token"`
	User        gotrueUser `json:"user"`
}

type gotrueErrorResponse struct {
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

func (e gotrueErrorResponse) message() string {
	if e.Msg != "" {
		return e.Msg
	}
	return e.ErrorDescription
}

func (c *Client) doAuthPost(ctx context.Context, path string, payload any) (int, []byte, error) {
	url := fmt.Sprintf("%s/auth/v1/%s", c.baseURL, path)
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		c.logger.Error("supabase: auth request failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// CreateIdentity registers a new identity with GoTrue (implements
// port.IdentityProvider).
func (c *Client) CreateIdentity(ctx context.Context, email, password string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateIdentity")
	defer span.End()

	status, body, err := c.doAuthPost(ctx, "signup", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	if status < 200 || status >= 300 {
		var gerr gotrueErrorResponse
		_ = json.Unmarshal(body, &gerr)
		msg := gerr.message()

		if strings.Contains(strings.ToLower(msg), "already registered") {
			return nil, &domain.ErrConflict{Message: "email already registered"}
		}
		if status >= 400 && status < 500 {
			return nil, &domain.ErrValidation{Field: "email", Message: msg}
		}
		return nil, &domain.ErrExternalService{
			Service: "supabase/auth",
			Err:     fmt.Errorf("signup returned %d: %s", status, msg),
		}
	}

	var sr gotrueSignupResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	uid := sr.ID
	if uid == "" {
		uid = sr.User.ID
	}
	return &domain.Identity{UID: uid, Email: email}, nil
}

// VerifyCredentials checks an email/password pair against GoTrue. Wrong
// credentials come back as ErrUnauthorized with no detail about which part
// was wrong.
func (c *Client) VerifyCredentials(ctx context.Context, email, password string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.VerifyCredentials")
	defer span.End()

	status, body, err := c.doAuthPost(ctx, "token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}

	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}
	if status < 200 || status >= 300 {
		return nil, &domain.ErrExternalService{
			Service: "supabase/auth",
			Err:     fmt.Errorf("token returned %d: %s", status, string(body)),
		}
	}

	var tr gotrueTokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/auth", Err: err}
	}
	return &domain.Identity{UID: tr.User.ID, Email: email}, nil
}
