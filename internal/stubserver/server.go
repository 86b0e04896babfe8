// Package stubserver is a local stand-in for the platform auth endpoints.
// The production suite talks to a hosted auth API that is not part of this
// repository; the stub implements the same wire contract so the client,
// the CLI, and the tests can run against something real.
package stubserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/SchemaBio/schema-platform-sub003/config"
	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
	"github.com/SchemaBio/schema-platform-sub003/pkg/httpapi"
	pkglog "github.com/SchemaBio/schema-platform-sub003/pkg/log"
)

type account struct {
	user         domain.User
	passwordHash []byte
}

type refreshSession struct {
	userID    string
	expiresAt time.Time
	revoked   bool
}

// Server serves the auth REST boundary against an in-memory account and
// session registry.
type Server struct {
	cfg    *config.Config
	logger pkglog.Logger
	signer *signer
	echo   *echo.Echo

	mu       sync.Mutex
	accounts map[string]*account        // keyed by email
	sessions map[string]*refreshSession // keyed by jti
}

// New builds a Server with empty registries. Seed accounts with AddUser.
func New(cfg *config.Config, logger pkglog.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		signer:   newSigner(cfg),
		accounts: map[string]*account{},
		sessions: map[string]*refreshSession{},
	}
	e := echo.New()
	e.HideBanner = true
	e.POST("/auth/login", s.handleLogin)
	e.POST("/auth/logout", s.handleLogout)
	e.POST("/auth/refresh", s.handleRefresh)
	e.GET("/auth/me", s.handleMe, s.requireBearer)
	s.echo = e
	return s
}

// AddUser registers a fixture account. The password is hashed with bcrypt
// like the hosted API stores it.
func (s *Server) AddUser(email, password string, user domain.User) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.accounts[strings.ToLower(strings.TrimSpace(email))] = &account{user: user, passwordHash: hash}
	s.mu.Unlock()
	return nil
}

// Echo exposes the handler tree for httptest in the package tests.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.echo.Shutdown(shutdownCtx)
	}()
	go func() {
		errCh <- s.echo.Start(fmt.Sprintf("%s:%s", s.cfg.StubHost, s.cfg.StubPort))
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	User         domain.User `json:"user"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	ExpiresAt    string      `json:"expiresAt"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleLogin(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return httpapi.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", traceID(c), map[string]string{"body": "expected a JSON object"})
	}
	s.mu.Lock()
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		s.logger.Warn().Str("email", req.Email).Msg("login rejected")
		return httpapi.ErrorJSON(c, http.StatusUnauthorized, domain.CodeInvalidCredentials, "invalid email or password", traceID(c), nil)
	}
	resp, err := s.issue(acct.user)
	if err != nil {
		return httpapi.ErrorJSON(c, http.StatusInternalServerError, "token_issue_failed", err.Error(), traceID(c), nil)
	}
	s.logger.Info().Str("user_id", acct.user.ID).Msg("login")
	return c.JSON(http.StatusOK, resp)
}

// handleLogout revokes every refresh session of the caller. The response is
// 204 even without a usable token: the client clears local state regardless.
func (s *Server) handleLogout(c echo.Context) error {
	if sub, ok := s.subjectFromBearer(c); ok {
		s.mu.Lock()
		for _, sess := range s.sessions {
			if sess.userID == sub {
				sess.revoked = true
			}
		}
		s.mu.Unlock()
		s.logger.Info().Str("user_id", sub).Msg("logout")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleRefresh(c echo.Context) error {
	req := new(refreshRequest)
	if err := c.Bind(req); err != nil {
		return httpapi.ErrorJSON(c, http.StatusBadRequest, "bad_request", "invalid payload", traceID(c), map[string]string{"body": "expected a JSON object"})
	}
	tok, claims, err := s.signer.Parse(req.RefreshToken)
	if err != nil || tok == nil || !tok.Valid {
		return s.refreshRejected(c, "refresh token invalid")
	}
	if typ, _ := claims["typ"].(string); typ != "refresh" {
		return s.refreshRejected(c, "not a refresh token")
	}
	jti, _ := claims["jti"].(string)
	sub, _ := claims["sub"].(string)
	if jti == "" || sub == "" {
		return s.refreshRejected(c, "refresh token incomplete")
	}

	s.mu.Lock()
	sess, ok := s.sessions[jti]
	valid := ok && !sess.revoked && sess.userID == sub && time.Now().Before(sess.expiresAt)
	if valid {
		// rotation: the presented token is single use
		sess.revoked = true
	}
	var user domain.User
	if valid {
		for _, acct := range s.accounts {
			if acct.user.ID == sub {
				user = acct.user
				break
			}
		}
	}
	s.mu.Unlock()

	if !valid || user.ID == "" {
		return s.refreshRejected(c, "refresh session not active")
	}
	resp, err := s.issue(user)
	if err != nil {
		return httpapi.ErrorJSON(c, http.StatusInternalServerError, "token_issue_failed", err.Error(), traceID(c), nil)
	}
	s.logger.Info().Str("user_id", user.ID).Msg("token refreshed")
	return c.JSON(http.StatusOK, domain.AuthToken{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.ExpiresAt,
	})
}

func (s *Server) handleMe(c echo.Context) error {
	sub, _ := c.Get("user_id").(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range s.accounts {
		if acct.user.ID == sub {
			return httpapi.JSON(c, http.StatusOK, acct.user)
		}
	}
	return httpapi.ErrorJSON(c, http.StatusNotFound, "not_found", "unknown user", traceID(c), nil)
}

func (s *Server) requireBearer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sub, ok := s.subjectFromBearer(c)
		if !ok {
			return httpapi.ErrorJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", traceID(c), nil)
		}
		c.Set("user_id", sub)
		return next(c)
	}
}

func (s *Server) subjectFromBearer(c echo.Context) (string, bool) {
	authz := c.Request().Header.Get(echo.HeaderAuthorization)
	parts := strings.SplitN(authz, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok, claims, err := s.signer.Parse(parts[1])
	if err != nil || tok == nil || !tok.Valid {
		return "", false
	}
	sub, _ := claims["sub"].(string)
	return sub, sub != ""
}

func (s *Server) refreshRejected(c echo.Context, msg string) error {
	s.logger.Warn().Msg("refresh rejected: " + msg)
	return httpapi.ErrorJSON(c, http.StatusUnauthorized, domain.CodeRefreshFailed, msg, traceID(c), nil)
}

func (s *Server) issue(user domain.User) (*loginResponse, error) {
	access, err := s.signer.SignAccessToken(user.ID, user.Email, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	jti := uuid.NewString()
	refresh, err := s.signer.SignRefreshToken(user.ID, jti, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.sessions[jti] = &refreshSession{userID: user.ID, expiresAt: time.Now().Add(s.cfg.RefreshTTL)}
	s.mu.Unlock()
	return &loginResponse{
		User:         user,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.cfg.AccessTTL).UTC().Format(time.RFC3339),
	}, nil
}

func traceID(c echo.Context) string {
	if reqID := c.Response().Header().Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	if reqID := c.Request().Header.Get(echo.HeaderXRequestID); reqID != "" {
		return reqID
	}
	return uuid.NewString()
}
