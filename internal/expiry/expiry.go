// Package expiry computes access-token timing from the expiry timestamp the
// auth API issues. Every function fails closed: missing, empty, or
// unparseable input reads as "expired / needs refresh" so a corrupted
// timestamp can never keep a dead session alive.
package expiry

import (
	"time"

	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
)

// DefaultThreshold is how far ahead of expiry a token counts as expiring.
const DefaultThreshold = 5 * time.Minute

// ParseExpiry parses an RFC 3339 expiry string. ok is false for empty or
// malformed input; it never panics.
func ParseExpiry(expiresAt string) (t time.Time, ok bool) {
	if expiresAt == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsExpired reports whether the expiry has passed. Unparseable input counts
// as expired.
func IsExpired(expiresAt string) bool {
	t, ok := ParseExpiry(expiresAt)
	if !ok {
		return true
	}
	return !time.Now().Before(t)
}

// IsExpiring reports whether the expiry is within threshold of now (or has
// already passed). A non-positive threshold falls back to DefaultThreshold.
func IsExpiring(expiresAt string, threshold time.Duration) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	t, ok := ParseExpiry(expiresAt)
	if !ok {
		return true
	}
	return time.Until(t) <= threshold
}

// TimeRemaining returns the duration until expiry, never negative.
func TimeRemaining(expiresAt string) time.Duration {
	t, ok := ParseExpiry(expiresAt)
	if !ok {
		return 0
	}
	remaining := time.Until(t)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RefreshDelay returns how long to wait before proactively refreshing:
// the time remaining minus the threshold, floored at zero. Zero means
// refresh now.
func RefreshDelay(expiresAt string, threshold time.Duration) time.Duration {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	delay := TimeRemaining(expiresAt) - threshold
	if delay < 0 {
		return 0
	}
	return delay
}

// IsValidToken reports whether the token is present, carries an expiry, and
// has not expired.
func IsValidToken(token *domain.AuthToken) bool {
	if token == nil || token.ExpiresAt == "" {
		return false
	}
	return !IsExpired(token.ExpiresAt)
}
