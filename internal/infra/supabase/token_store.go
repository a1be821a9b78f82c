package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/resilience"

	"github.com/google/uuid"
)

type refreshTokenRow struct {
	ID        string `json:"id"`
	UID       string `json:"uid"`
	Email     string `json:"email"`
	TokenHash string `json:"token_hash"`
	ExpiresAt string `json:"expires_at"`
	CreatedAt string `json:"created_at"`
	Revoked   bool   `json:"revoked"`
}

func (r refreshTokenRow) toDomain() domain.RefreshToken {
	exp, _ := time.Parse(time.RFC3339, r.ExpiresAt)
	created, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return domain.RefreshToken{
		ID:        r.ID,
		UID:       r.UID,
		Email:     r.Email,
		TokenHash: r.TokenHash,
		ExpiresAt: exp,
		CreatedAt: created,
		Revoked:   r.Revoked,
	}
}

// StoreRefreshToken persists a new refresh token hash.
func (c *Client) StoreRefreshToken(ctx context.Context, uid, email, tokenHash string, expiresAt time.Time) error {
	ctx, span := tracer.Start(ctx, "Supabase.StoreRefreshToken")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		return c.doPost(ctx, "auth_refresh_tokens", map[string]any{
			"id":         uuid.NewString(),
			"uid":        uid,
			"email":      email,
			"token_hash": tokenHash,
			"expires_at": expiresAt.Format(time.RFC3339),
			"created_at": time.Now().UTC().Format(time.RFC3339),
			"revoked":    false,
		})
	})

	if err != nil {
		return wrapStoreError("supabase/tokens", err)
	}
	return nil
}

// GetRefreshToken looks up a token by hash. Revoked and expired tokens are
// still returned; the auth service decides how to treat them.
func (c *Client) GetRefreshToken(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetRefreshToken")
	defer span.End()

	var token *domain.RefreshToken

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("auth_refresh_tokens?token_hash=eq.%s&limit=1", url.QueryEscape(tokenHash))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "refresh_token", ID: "(hash)"}
			}

			var rows []refreshTokenRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode refresh token: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "refresh_token", ID: "(hash)"}
			}

			t := rows[0].toDomain()
			token = &t
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/tokens", err)
	}
	return token, nil
}

// RevokeRefreshToken marks one token revoked.
func (c *Client) RevokeRefreshToken(ctx context.Context, tokenHash string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeRefreshToken")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("auth_refresh_tokens?token_hash=eq.%s", url.QueryEscape(tokenHash))
		return nil, c.doPatch(ctx, path, map[string]any{"revoked": true})
	})

	if err != nil {
		return wrapStoreError("supabase/tokens", err)
	}
	return nil
}

// RevokeAllRefreshTokens marks every token for a uid revoked (logout).
func (c *Client) RevokeAllRefreshTokens(ctx context.Context, uid string) error {
	ctx, span := tracer.Start(ctx, "Supabase.RevokeAllRefreshTokens")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("auth_refresh_tokens?uid=eq.%s", url.QueryEscape(uid))
		return nil, c.doPatch(ctx, path, map[string]any{"revoked": true})
	})

	if err != nil {
		return wrapStoreError("supabase/tokens", err)
	}
	return nil
}
