package usecase

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/SchemaBio/schema-platform-sub003/internal/adapters/api"
	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/internal/expiry"
	pkglog "github.com/SchemaBio/schema-platform-sub003/pkg/log"
)

// Service is the authentication network boundary. Refresh is single-flight:
// no matter how many callers ask at once, at most one refresh request is
// outstanding and every caller receives its result.
type Service interface {
	Login(ctx context.Context, email, password string) (*domain.User, *domain.AuthToken, error)
	Logout(ctx context.Context, accessToken string)
	RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthToken, error)
	IsTokenExpiring(expiresAt string, threshold time.Duration) bool
}

type authService struct {
	client    api.Client
	logger    pkglog.Logger
	threshold time.Duration
	refresh   singleflight.Group
}

// NewAuthService wires a Service over the given API client. threshold is the
// expiring window applied when IsTokenExpiring is called without one;
// non-positive values fall back to the package default.
func NewAuthService(client api.Client, logger pkglog.Logger, threshold time.Duration) Service {
	if threshold <= 0 {
		threshold = expiry.DefaultThreshold
	}
	return &authService{client: client, logger: logger, threshold: threshold}
}

// Login authenticates against the platform. Every failure is normalized to a
// *domain.AuthError so callers branch on the code, not the message.
func (s *authService) Login(ctx context.Context, email, password string) (*domain.User, *domain.AuthToken, error) {
	user, tokens, err := s.client.Login(ctx, email, password)
	if err != nil {
		authErr := normalize(err, domain.CodeInvalidCredentials)
		s.logger.Warn().Str("code", authErr.Code).Msg("login rejected")
		return nil, nil, authErr
	}
	s.logger.Info().Str("user_id", user.ID).Msg("login")
	return user, tokens, nil
}

// Logout invalidates the session server-side, best effort. It never reports
// failure: local sign-out proceeds regardless.
func (s *authService) Logout(ctx context.Context, accessToken string) {
	if err := s.client.Logout(ctx, accessToken); err != nil {
		s.logger.Warn().Err(err).Msg("remote logout failed, continuing with local sign-out")
	}
}

// RefreshToken exchanges the refresh token for a new token triple. Concurrent
// callers share one in-flight request; the guard is released once the call
// settles so a later caller starts fresh.
func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthToken, error) {
	result, err, shared := s.refresh.Do("refresh", func() (interface{}, error) {
		tokens, err := s.client.Refresh(ctx, refreshToken)
		if err != nil {
			return nil, normalize(err, domain.CodeRefreshFailed)
		}
		return tokens, nil
	})
	if err != nil {
		authErr := normalize(err, domain.CodeRefreshFailed)
		s.logger.Warn().Str("code", authErr.Code).Bool("shared", shared).Msg("token refresh failed")
		return nil, authErr
	}
	s.logger.Debug().Bool("shared", shared).Msg("token refresh succeeded")
	return result.(*domain.AuthToken), nil
}

// IsTokenExpiring applies the service default threshold when none is given.
func (s *authService) IsTokenExpiring(expiresAt string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = s.threshold
	}
	return expiry.IsExpiring(expiresAt, threshold)
}

func normalize(err error, defaultCode string) *domain.AuthError {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return domain.NewAuthError(defaultCode, "")
}
