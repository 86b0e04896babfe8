// Package storage persists session state between runs. It is a best-effort
// write-through cache for the in-memory store: every operation degrades to a
// no-op when the backing directory is unusable (missing home, read-only
// volume, permission change), and a read that cannot produce a complete
// session yields nil.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
)

// Storage keys, one file per key under the session directory.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyTokenExpiry  = "token_expiry"
	keyUser         = "user"

	probeName = ".probe"
)

// Adapter is the durable session store consumed by the auth store.
type Adapter interface {
	Available() bool
	StoreAuthData(data *domain.StoredAuthData)
	GetStoredAuthData() *domain.StoredAuthData
	UpdateStoredTokens(tokens *domain.AuthToken)
	ClearStoredAuth()
}

type fileAdapter struct {
	dir    string
	logger zerolog.Logger
}

// NewFileAdapter returns an Adapter keeping one file per key under dir.
// The directory is created lazily on first write.
func NewFileAdapter(dir string, logger zerolog.Logger) Adapter {
	return &fileAdapter{dir: dir, logger: logger}
}

// Available probes the directory with a sentinel write and remove. It is
// re-evaluated on every call so a volume that becomes read-only mid-run is
// reflected immediately.
func (a *fileAdapter) Available() bool {
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return false
	}
	probe := filepath.Join(a.dir, probeName)
	if err := os.WriteFile(probe, []byte("1"), 0o600); err != nil {
		return false
	}
	if err := os.Remove(probe); err != nil {
		return false
	}
	return true
}

func (a *fileAdapter) StoreAuthData(data *domain.StoredAuthData) {
	if data == nil || data.User == nil || data.Tokens == nil || !a.Available() {
		return
	}
	userJSON, err := json.Marshal(data.User)
	if err != nil {
		a.logger.Warn().Err(err).Msg("session user not serializable, skipping persist")
		return
	}
	a.write(keyAccessToken, data.Tokens.AccessToken)
	a.write(keyRefreshToken, data.Tokens.RefreshToken)
	a.write(keyTokenExpiry, data.Tokens.ExpiresAt)
	a.write(keyUser, string(userJSON))
}

// GetStoredAuthData returns the persisted session, or nil when any key is
// missing or the user record fails to decode.
func (a *fileAdapter) GetStoredAuthData() *domain.StoredAuthData {
	if !a.Available() {
		return nil
	}
	access, ok1 := a.read(keyAccessToken)
	refresh, ok2 := a.read(keyRefreshToken)
	expiry, ok3 := a.read(keyTokenExpiry)
	userJSON, ok4 := a.read(keyUser)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}
	var user domain.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		a.logger.Warn().Err(err).Msg("stored user record is malformed, treating as no session")
		return nil
	}
	return &domain.StoredAuthData{
		User:   &user,
		Tokens: &domain.AuthToken{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiry},
	}
}

// UpdateStoredTokens rewrites only the token slice, leaving the user record
// untouched.
func (a *fileAdapter) UpdateStoredTokens(tokens *domain.AuthToken) {
	if tokens == nil || !a.Available() {
		return
	}
	a.write(keyAccessToken, tokens.AccessToken)
	a.write(keyRefreshToken, tokens.RefreshToken)
	a.write(keyTokenExpiry, tokens.ExpiresAt)
}

func (a *fileAdapter) ClearStoredAuth() {
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyTokenExpiry, keyUser} {
		if err := os.Remove(filepath.Join(a.dir, key)); err != nil && !os.IsNotExist(err) {
			a.logger.Warn().Err(err).Str("key", key).Msg("failed to clear stored session key")
		}
	}
}

func (a *fileAdapter) write(key, value string) {
	if err := os.WriteFile(filepath.Join(a.dir, key), []byte(value), 0o600); err != nil {
		a.logger.Warn().Err(err).Str("key", key).Msg("failed to persist session key")
	}
}

func (a *fileAdapter) read(key string) (string, bool) {
	raw, err := os.ReadFile(filepath.Join(a.dir, key))
	if err != nil {
		return "", false
	}
	return string(raw), true
}
