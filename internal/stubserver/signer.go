package stubserver

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/SchemaBio/schema-platform-sub003/config"
)

// signer issues and parses the HS256 tokens the stub hands out. Real
// deployments terminate auth elsewhere; the stub only needs enough to
// exercise the client lifecycle.
type signer struct {
	cfg *config.Config
	key []byte
}

func newSigner(cfg *config.Config) *signer {
	return &signer{cfg: cfg, key: []byte(cfg.JWTSecret)}
}

func (s *signer) SignAccessToken(subject, email string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["sub"] = subject
	claims["email"] = email
	claims["iss"] = s.cfg.JWTIssuer
	claims["aud"] = s.cfg.JWTAudience
	claims["exp"] = now.Add(ttl).Unix()
	claims["iat"] = now.Unix()
	return token.SignedString(s.key)
}

func (s *signer) SignRefreshToken(subject, jti string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	token := jwt.New(jwt.SigningMethodHS256)
	claims := token.Claims.(jwt.MapClaims)
	claims["sub"] = subject
	claims["jti"] = jti
	claims["typ"] = "refresh"
	claims["iss"] = s.cfg.JWTIssuer
	claims["aud"] = s.cfg.JWTAudience
	claims["exp"] = now.Add(ttl).Unix()
	claims["iat"] = now.Unix()
	return token.SignedString(s.key)
}

func (s *signer) Parse(tokenStr string) (*jwt.Token, jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithAudience(s.cfg.JWTAudience),
		jwt.WithIssuer(s.cfg.JWTIssuer),
		jwt.WithLeeway(30*time.Second),
	)
	token, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	return token, claims, err
}
