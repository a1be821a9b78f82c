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
)

type lockoutRow struct {
	Email          string  `json:"email"`
	FailedAttempts int     `json:"failed_attempts"`
	LockoutEndTime *string `json:"lockout_end_time"`
}

func (r lockoutRow) toDomain() domain.LockoutRecord {
	rec := domain.LockoutRecord{Email: r.Email, FailedAttempts: r.FailedAttempts}
	if r.LockoutEndTime != nil {
		if t, err := time.Parse(time.RFC3339, *r.LockoutEndTime); err == nil {
			rec.LockoutEndTime = &t
		}
	}
	return rec
}

// GetLockout fetches the lockout record for an email. A missing row means a
// clean record (zero failed attempts, no lock).
func (c *Client) GetLockout(ctx context.Context, email string) (*domain.LockoutRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetLockout")
	defer span.End()

	record := &domain.LockoutRecord{Email: email}

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("login_lockouts?email=eq.%s&limit=1", url.QueryEscape(email))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}

			if body == nil || string(body) == "[]" {
				return nil
			}

			var rows []lockoutRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode lockout: %w", err)
			}
			if len(rows) > 0 {
				rec := rows[0].toDomain()
				record = &rec
			}
			return nil
		})
	})

	if err != nil {
		return nil, wrapStoreError("supabase/lockouts", err)
	}
	return record, nil
}

// RecordFailure bumps the failed-attempt counter via the
// lockout_record_failure SQL function. The increment, the threshold check and
// the lock write happen in one statement, so two concurrent failures cannot
// both observe the same counter value. When the threshold is reached the
// function sets the lock and resets the counter to zero.
func (c *Client) RecordFailure(ctx context.Context, email string, threshold int, lockFor time.Duration) (*domain.LockoutRecord, error) {
	ctx, span := tracer.Start(ctx, "Supabase.RecordFailure")
	defer span.End()

	var record *domain.LockoutRecord

	_, err := c.cb.Execute(func() (any, error) {
		body, err := c.doRPC(ctx, "lockout_record_failure", map[string]any{
			"p_email":        email,
			"p_threshold":    threshold,
			"p_lock_seconds": int(lockFor.Seconds()),
		})
		if err != nil {
			return nil, err
		}

		var row lockoutRow
		if err := json.Unmarshal(body, &row); err != nil {
			return nil, fmt.Errorf("failed to decode lockout result: %w", err)
		}
		rec := row.toDomain()
		record = &rec
		return nil, nil
	})

	if err != nil {
		return nil, wrapStoreError("supabase/lockouts", err)
	}
	return record, nil
}

// ClearLockout resets the record after a successful login or a lazily
// expired lock.
func (c *Client) ClearLockout(ctx context.Context, email string) error {
	ctx, span := tracer.Start(ctx, "Supabase.ClearLockout")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		path := fmt.Sprintf("login_lockouts?email=eq.%s", url.QueryEscape(email))
		return nil, c.doPatch(ctx, path, map[string]any{
			"failed_attempts":  0,
			"lockout_end_time": nil,
		})
	})

	if err != nil {
		return wrapStoreError("supabase/lockouts", err)
	}
	return nil
}
