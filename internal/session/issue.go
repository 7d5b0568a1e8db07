// SPDX-License-Identifier: MIT

package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phicloud/phi-backend/internal/config"
)

// resolveJWTSecret follows the same override chain as the embed secret:
// an env var lets an operator rotate the signing key without touching the
// config file, falling back to the configured value.
func resolveJWTSecret(cfg config.SessionConfig) (string, error) {
	if v := os.Getenv("APP_SESSION_JWT_SECRET"); v != "" {
		return v, nil
	}
	if cfg.JWTSecret == "" {
		return "", fmt.Errorf("session: no JWT secret configured")
	}
	return cfg.JWTSecret, nil
}

// resolveEmbedSecret picks the first non-empty of: APP_SESSION_AUTH_EMBED_SECRET
// in the environment, APP_SESSION_JWT_SECRET in the environment, the
// configured embed secret, then the configured JWT secret. A JWT secret set
// in the environment therefore wins over an embed secret set only in config.
func resolveEmbedSecret(cfg config.SessionConfig) (string, error) {
	if v := os.Getenv("APP_SESSION_AUTH_EMBED_SECRET"); v != "" {
		return v, nil
	}
	if v := os.Getenv("APP_SESSION_JWT_SECRET"); v != "" {
		return v, nil
	}
	if cfg.AuthEmbedSecret != "" {
		return cfg.AuthEmbedSecret, nil
	}
	return resolveJWTSecret(cfg)
}

// resolveExpectedExchangeSecret returns the shared secret a caller must
// present (via X-Exchange-Secret or X-Session-Exchange-Secret) to be issued
// a session. An empty return means exchange is unauthenticated.
func resolveExpectedExchangeSecret(cfg config.SessionConfig) string {
	return cfg.ExchangeSharedSecret
}

// ResolveExchangeSecret extracts the caller-presented exchange secret,
// checking X-Exchange-Secret before X-Session-Exchange-Secret.
func ResolveExchangeSecret(headerPrimary, headerFallback string) string {
	if headerPrimary != "" {
		return headerPrimary
	}
	return headerFallback
}

func newJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// IssueSession mints a bearer token embedding cred, sealed under the
// configured embed secret, for subject sub. Returns the signed JWT and the
// jti it carries (so callers can log/blacklist it later).
func IssueSession(cfg config.SessionConfig, sub string, cred Credential, now time.Time) (token string, jti string, err error) {
	jwtSecret, err := resolveJWTSecret(cfg)
	if err != nil {
		return "", "", err
	}
	embedSecret, err := resolveEmbedSecret(cfg)
	if err != nil {
		return "", "", err
	}
	jti, err = newJTI()
	if err != nil {
		return "", "", fmt.Errorf("session: generate jti: %w", err)
	}

	ttl := time.Duration(cfg.TTLSecs) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	exp := now.Add(ttl)

	sae, err := sealCredentialJSON(cred, jti, sub, embedSecret)
	if err != nil {
		return "", "", err
	}

	claims := jwt.MapClaims{
		"sub": sub,
		"jti": jti,
		"iss": cfg.JWTIssuer,
		"aud": cfg.JWTAudience,
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"sae": sae,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		return "", "", fmt.Errorf("session: sign token: %w", err)
	}
	return signed, jti, nil
}

// VerifyExchangeSecret reports whether presented matches the configured
// exchange secret. An unconfigured secret (empty string) accepts any
// caller, including an empty presented value.
func VerifyExchangeSecret(cfg config.SessionConfig, presented string) bool {
	expected := resolveExpectedExchangeSecret(cfg)
	if expected == "" {
		return true
	}
	return presented == expected
}
