package service

import (
	"context"
	"fmt"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var lockoutTracer = otel.Tracer("service/lockout")

// LockoutService enforces the failed-login lockout policy: after the
// configured number of consecutive failures the identity is locked for a
// fixed window. Locks expire lazily; nothing runs on a timer.
type LockoutService struct {
	store     port.LockoutStore
	threshold int
	duration  time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewLockoutService creates a lockout service.
func NewLockoutService(store port.LockoutStore, threshold int, duration time.Duration, metrics *observability.Metrics, logger *zap.Logger) *LockoutService {
	return &LockoutService{
		store:     store,
		threshold: threshold,
		duration:  duration,
		metrics:   metrics,
		logger:    logger,
	}
}

// Check reports the current lockout state for an email. An expired lock is
// cleared on read, so the failure counter starts fresh afterwards.
func (s *LockoutService) Check(ctx context.Context, email string) (*domain.CheckLockoutResponse, error) {
	ctx, span := lockoutTracer.Start(ctx, "LockoutService.Check")
	defer span.End()

	rec, err := s.store.GetLockout(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("get lockout: %w", err)
	}

	now := time.Now().UTC()
	if rec.LockoutEndTime != nil && !rec.Locked(now) {
		// Lazy expiry
		if err := s.store.ClearLockout(ctx, email); err != nil {
			s.logger.Warn("lockout: failed to clear expired lock", zap.Error(err))
		}
		return &domain.CheckLockoutResponse{IsLockedOut: false}, nil
	}

	if rec.Locked(now) {
		return &domain.CheckLockoutResponse{
			IsLockedOut:    true,
			LockoutEndTime: rec.LockoutEndTime,
		}, nil
	}
	return &domain.CheckLockoutResponse{IsLockedOut: false}, nil
}

// RecordFailure registers one failed login attempt. When the threshold is
// reached the store sets the lock and resets the counter in the same atomic
// step. Returns ErrLockedOut when this failure triggered the lock.
func (s *LockoutService) RecordFailure(ctx context.Context, email string) error {
	ctx, span := lockoutTracer.Start(ctx, "LockoutService.RecordFailure")
	defer span.End()

	rec, err := s.store.RecordFailure(ctx, email, s.threshold, s.duration)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	if rec.LockoutEndTime != nil && rec.Locked(time.Now().UTC()) {
		s.metrics.IncrLockout()
		s.logger.Warn("lockout: identity locked after repeated failures",
			zap.Int("threshold", s.threshold),
			zap.Duration("duration", s.duration),
			zap.Timep("until", rec.LockoutEndTime),
		)
		return &domain.ErrLockedOut{Until: *rec.LockoutEndTime}
	}

	s.logger.Info("lockout: failed attempt recorded",
		zap.Int("attempts", rec.FailedAttempts),
		zap.Int("threshold", s.threshold),
	)
	return nil
}

// RecordSuccess resets the failure counter after a successful login.
func (s *LockoutService) RecordSuccess(ctx context.Context, email string) error {
	ctx, span := lockoutTracer.Start(ctx, "LockoutService.RecordSuccess")
	defer span.End()

	if err := s.store.ClearLockout(ctx, email); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}
