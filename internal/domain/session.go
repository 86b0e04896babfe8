package domain

import "fmt"

// AuthToken is the credential triple issued by the auth API. ExpiresAt is the
// RFC 3339 expiry of the access token as sent by the server; it is kept as a
// string and interpreted by the expiry package so that an unparseable value
// degrades to "already expired" instead of failing a decode.
type AuthToken struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    string `json:"expiresAt"`
}

// User is the identity record attached to a session. The session core only
// cares about its presence; fields are carried through for the UI layer.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// AuthState is the in-memory session state held by the store.
// IsAuthenticated is true iff both User and Tokens are set and the tokens
// were valid at the last check.
type AuthState struct {
	User            *User
	Tokens          *AuthToken
	IsAuthenticated bool
	IsLoading       bool
}

// StoredAuthData is the durable projection of AuthState. A read that cannot
// produce both fields is treated as no session.
type StoredAuthData struct {
	User   *User
	Tokens *AuthToken
}

// Error codes carried by AuthError.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeRefreshFailed      = "REFRESH_FAILED"
)

// AuthError is an authentication failure with a machine-readable code.
// Callers branch on Code, never on Message.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError builds an AuthError, substituting a default message when the
// server sent none.
func NewAuthError(code, message string) *AuthError {
	if message == "" {
		switch code {
		case CodeRefreshFailed:
			message = "session refresh was rejected"
		default:
			message = "invalid email or password"
		}
	}
	return &AuthError{Code: code, Message: message}
}
