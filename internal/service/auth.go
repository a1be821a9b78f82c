package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/acebanks/acebank-api-go/internal/domain"
	"github.com/acebanks/acebank-api-go/internal/infra/observability"
	"github.com/acebanks/acebank-api-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var authTracer = otel.Tracer("service/auth")

// AuthService orchestrates signup, login, lockout checks and token rotation.
type AuthService struct {
	provider   port.IdentityProvider
	tokens     port.TokenStore
	lockout    *LockoutService
	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(provider port.IdentityProvider, tokens port.TokenStore, lockout *LockoutService, jwtSecret string, accessTTL, refreshTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *AuthService {
	return &AuthService{
		provider:   provider,
		tokens:     tokens,
		lockout:    lockout,
		jwtSecret:  []byte(jwtSecret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		metrics:    metrics,
		logger:     logger,
	}
}

// normalizeEmail is the single normalization applied everywhere an email is
// used as a key: trim whitespace, lowercase.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ============================================================
// Signup - POST /auth/signup
// ============================================================

func (s *AuthService) Signup(ctx context.Context, req *domain.SignupRequest) (*domain.SignupResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Signup")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &domain.ErrValidation{Field: "email", Message: "a valid email is required"}
	}
	if len(req.Password) < 6 {
		return nil, &domain.ErrValidation{Field: "password", Message: "password must be at least 6 characters"}
	}

	identity, err := s.provider.CreateIdentity(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", zap.String("uid", identity.UID))

	return &domain.SignupResponse{
		UID:     identity.UID,
		Message: "account created",
	}, nil
}

// ============================================================
// Login - POST /auth/login
// ============================================================

// Login runs the lockout gate before touching the identity provider: a locked
// identity is rejected without a credential check, so failed guesses during a
// lock cannot extend it.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email and password are required"}
	}

	// Lockout gate
	state, err := s.lockout.Check(ctx, email)
	if err != nil {
		return nil, err
	}
	if state.IsLockedOut {
		s.metrics.IncrLoginAttempt("locked")
		s.logger.Warn("login: identity locked", zap.Timep("until", state.LockoutEndTime))
		return nil, &domain.ErrLockedOut{Until: *state.LockoutEndTime}
	}

	identity, err := s.provider.VerifyCredentials(ctx, email, req.Password)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			s.metrics.IncrLoginAttempt("failure")
			if lockErr := s.lockout.RecordFailure(ctx, email); lockErr != nil {
				var locked *domain.ErrLockedOut
				if errors.As(lockErr, &locked) {
					return nil, locked
				}
				s.logger.Warn("login: failed to record lockout failure", zap.Error(lockErr))
			}
			return nil, unauthorized
		}
		return nil, err
	}

	if err := s.lockout.RecordSuccess(ctx, email); err != nil {
		s.logger.Warn("login: failed to reset lockout state", zap.Error(err))
	}

	resp, err := s.issueSession(ctx, identity.UID, identity.Email)
	if err != nil {
		return nil, err
	}

	s.metrics.IncrLoginAttempt("success")
	s.logger.Info("user logged in", zap.String("uid", identity.UID))
	return resp, nil
}

// ============================================================
// CheckLockout - POST /auth/check-lockout
// ============================================================

func (s *AuthService) CheckLockout(ctx context.Context, req *domain.CheckLockoutRequest) (*domain.CheckLockoutResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.CheckLockout")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" {
		return nil, &domain.ErrValidation{Field: "email", Message: "email is required"}
	}
	return s.lockout.Check(ctx, email)
}

// issueSession signs an access token and stores a fresh refresh token.
func (s *AuthService) issueSession(ctx context.Context, uid, email string) (*domain.LoginResponse, error) {
	accessToken, err := s.signAccessToken(uid, email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken, refreshHash, err := s.generateRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	if err := s.tokens.StoreRefreshToken(ctx, uid, email, refreshHash, time.Now().Add(s.refreshTTL)); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.LoginResponse{
		UID:          uid,
		Email:        email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}
