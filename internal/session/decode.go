// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

// ExtractBearerToken pulls the raw token out of an "Authorization: Bearer
// <token>" header value. Returns "" if the header is absent or malformed.
func ExtractBearerToken(authorizationHeader string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorizationHeader, prefix))
}

func mapClaimsToClaims(mc jwt.MapClaims) Claims {
	get := func(k string) string {
		v, _ := mc[k].(string)
		return v
	}
	getNum := func(k string) int64 {
		switch v := mc[k].(type) {
		case float64:
			return int64(v)
		case int64:
			return v
		default:
			return 0
		}
	}
	return Claims{
		Sub: get("sub"),
		Jti: get("jti"),
		Iss: get("iss"),
		Aud: get("aud"),
		Iat: getNum("iat"),
		Exp: getNum("exp"),
		SAE: get("sae"),
	}
}

// decodeAccessToken parses and verifies token's signature, issuer, and
// audience. When allowExpired is true, an otherwise-valid-but-expired token
// still yields its claims instead of an error — used by flows that need to
// read an expired token's subject (e.g. logging a stale-session attempt)
// without treating expiry as fatal.
func decodeAccessToken(cfg config.SessionConfig, token string, allowExpired bool) (Claims, error) {
	jwtSecret, err := resolveJWTSecret(cfg)
	if err != nil {
		return Claims{}, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(cfg.JWTIssuer),
		jwt.WithAudience(cfg.JWTAudience),
	)

	parsed, err := parser.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	})
	if err != nil {
		if allowExpired && errors.Is(err, jwt.ErrTokenExpired) && parsed != nil {
			if mc, ok := parsed.Claims.(jwt.MapClaims); ok {
				return mapClaimsToClaims(mc), nil
			}
		}
		return Claims{}, fmt.Errorf("session: decode token: %w", err)
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("session: unexpected claims type")
	}
	return mapClaimsToClaims(mc), nil
}

// DecodeAccessToken decodes and fully verifies token, rejecting expiry.
func DecodeAccessToken(cfg config.SessionConfig, token string) (Claims, error) {
	return decodeAccessToken(cfg, token, false)
}

// DecodeAccessTokenAllowExpired decodes token, tolerating expiry.
func DecodeAccessTokenAllowExpired(cfg config.SessionConfig, token string) (Claims, error) {
	return decodeAccessToken(cfg, token, true)
}

// ValidateNotRevoked checks the two-tier revocation model: a token is
// revoked if its jti is explicitly blacklisted, or if its issued-at
// predates the subject's logout gate (a "log out everywhere" watermark).
// The stored logout_before is parsed as an RFC3339 timestamp and compared
// with iat as a time.
func ValidateNotRevoked(ctx context.Context, store *storage.Storage, claims Claims) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	blacklisted, logoutBefore, hasGate, err := store.GetSessionRevokeState(ctx, claims.Jti, claims.Sub, now)
	if err != nil {
		return fmt.Errorf("session: check revocation: %w", err)
	}
	if blacklisted {
		return fmt.Errorf("session: token revoked")
	}
	if hasGate {
		gate, err := time.Parse(time.RFC3339Nano, logoutBefore)
		if err != nil {
			return fmt.Errorf("session: parse logout gate: %w", err)
		}
		if time.Unix(claims.Iat, 0).Before(gate) {
			return fmt.Errorf("session: token revoked by logout-everywhere")
		}
	}
	return nil
}

// DecodeBearer inspects an Authorization header value end-to-end: extracts
// the token, decodes and verifies it, and checks revocation. The returned
// BearerState.Present is true whenever a header was supplied at all, even
// if decoding subsequently failed — Valid distinguishes the two so callers
// can tell "no bearer" from "bad bearer" (the latter should usually be a
// hard error, never silently treated as anonymous).
func DecodeBearer(ctx context.Context, cfg config.SessionConfig, store *storage.Storage, authorizationHeader string) BearerState {
	token := ExtractBearerToken(authorizationHeader)
	if token == "" {
		return BearerState{Present: authorizationHeader != ""}
	}

	claims, err := DecodeAccessToken(cfg, token)
	if err != nil {
		return BearerState{Present: true, Token: token, Err: err}
	}
	if err := ValidateNotRevoked(ctx, store, claims); err != nil {
		return BearerState{Present: true, Token: token, Claims: claims, Err: err}
	}
	return BearerState{Present: true, Valid: true, Token: token, Claims: claims}
}

// credentialFromClaims decrypts the embedded credential envelope carried by
// claims, using decodeCache to skip the AES-GCM cost for a repeat lookup of
// the same token within its validity window.
func credentialFromClaims(cfg config.SessionConfig, cache *AuthDecryptCache, token string, claims Claims) (Credential, error) {
	if claims.SAE == "" {
		return Credential{}, nil
	}
	if cache != nil {
		if cred, ok := cache.Get(token); ok {
			return cred, nil
		}
	}
	embedSecret, err := resolveEmbedSecret(cfg)
	if err != nil {
		return Credential{}, err
	}
	cred, err := openCredentialJSON(claims.SAE, claims.Jti, claims.Sub, embedSecret)
	if err != nil {
		return Credential{}, err
	}
	if cache != nil {
		cache.Put(token, cred, time.Unix(claims.Exp, 0))
	}
	return cred, nil
}
