package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/SchemaBio/schema-platform-sub003/internal/domain"
)

func testData() *domain.StoredAuthData {
	return &domain.StoredAuthData{
		User: &domain.User{ID: "u-1", Email: "a@b.com", Name: "Ada", Role: "analyst"},
		Tokens: &domain.AuthToken{
			AccessToken:  "AT",
			RefreshToken: "RT",
			ExpiresAt:    time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		},
	}
}

func newTestAdapter(t *testing.T) Adapter {
	t.Helper()
	return NewFileAdapter(t.TempDir(), zerolog.Nop())
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	want := testData()
	a.StoreAuthData(want)

	got := a.GetStoredAuthData()
	if got == nil {
		t.Fatal("expected stored session back")
	}
	if got.User.ID != want.User.ID || got.User.Email != want.User.Email {
		t.Fatalf("user mismatch: %+v", got.User)
	}
	if *got.Tokens != *want.Tokens {
		t.Fatalf("tokens mismatch: %+v", got.Tokens)
	}
}

func TestGetReturnsNilWhenAnyKeyMissing(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAdapter(dir, zerolog.Nop())
	a.StoreAuthData(testData())

	for _, key := range []string{"access_token", "refresh_token", "token_expiry", "user"} {
		if err := os.Remove(filepath.Join(dir, key)); err != nil {
			t.Fatalf("remove %s: %v", key, err)
		}
		if a.GetStoredAuthData() != nil {
			t.Fatalf("expected nil session with %s missing", key)
		}
		a.StoreAuthData(testData())
	}
}

func TestGetReturnsNilOnMalformedUser(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAdapter(dir, zerolog.Nop())
	a.StoreAuthData(testData())

	if err := os.WriteFile(filepath.Join(dir, "user"), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if a.GetStoredAuthData() != nil {
		t.Fatal("malformed user record must read as no session")
	}
}

func TestClearRemovesAllKeys(t *testing.T) {
	dir := t.TempDir()
	a := NewFileAdapter(dir, zerolog.Nop())
	a.StoreAuthData(testData())
	a.ClearStoredAuth()

	for _, key := range []string{"access_token", "refresh_token", "token_expiry", "user"} {
		if _, err := os.Stat(filepath.Join(dir, key)); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be removed", key)
		}
	}
	if a.GetStoredAuthData() != nil {
		t.Fatal("expected no session after clear")
	}
}

func TestUpdateStoredTokensLeavesUser(t *testing.T) {
	a := newTestAdapter(t)
	a.StoreAuthData(testData())

	next := &domain.AuthToken{
		AccessToken:  "AT2",
		RefreshToken: "RT2",
		ExpiresAt:    time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339),
	}
	a.UpdateStoredTokens(next)

	got := a.GetStoredAuthData()
	if got == nil {
		t.Fatal("expected session back")
	}
	if *got.Tokens != *next {
		t.Fatalf("tokens not updated: %+v", got.Tokens)
	}
	if got.User.ID != "u-1" {
		t.Fatalf("user record disturbed: %+v", got.User)
	}
}

func TestUnavailableDirectoryDegrades(t *testing.T) {
	// a path under a regular file can never be created
	base := t.TempDir()
	blocker := filepath.Join(base, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	a := NewFileAdapter(filepath.Join(blocker, "sessions"), zerolog.Nop())

	if a.Available() {
		t.Fatal("expected unavailable storage")
	}
	a.StoreAuthData(testData())
	if a.GetStoredAuthData() != nil {
		t.Fatal("unavailable storage must read as no session")
	}
	a.UpdateStoredTokens(testData().Tokens)
	a.ClearStoredAuth()
}
