// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

// Service ties the session config, revocation storage, and decrypt cache
// together into the single entry point the HTTP layer calls.
type Service struct {
	cfg   config.SessionConfig
	store *storage.Storage
	cache *AuthDecryptCache
}

// NewService builds a Service. store may be nil only in tests that never
// exercise revocation or issuance.
func NewService(cfg config.SessionConfig, store *storage.Storage) *Service {
	return &Service{
		cfg:   cfg,
		store: store,
		cache: NewAuthDecryptCache(cfg.AuthCacheCapacity),
	}
}

// Enabled reports whether session issuance/verification is turned on.
func (s *Service) Enabled() bool {
	return s.cfg.Enabled
}

// Issue mints a bearer token for sub embedding cred, after checking the
// caller presented the configured exchange secret.
func (s *Service) Issue(ctx context.Context, sub string, cred Credential, presentedExchangeSecret string) (token string, err error) {
	if !VerifyExchangeSecret(s.cfg, presentedExchangeSecret) {
		return "", fmt.Errorf("session: invalid exchange secret")
	}
	token, _, err = IssueSession(s.cfg, sub, cred, time.Now())
	return token, err
}

// DecodeBearer inspects an Authorization header value, verifying signature,
// issuer, audience, and revocation state.
func (s *Service) DecodeBearer(ctx context.Context, authorizationHeader string) BearerState {
	return DecodeBearer(ctx, s.cfg, s.store, authorizationHeader)
}

// CredentialFromBearer decrypts the credential embedded in an already
// decoded, valid bearer state.
func (s *Service) CredentialFromBearer(state BearerState) (Credential, error) {
	if !state.Valid {
		return Credential{}, fmt.Errorf("session: bearer is not valid")
	}
	return credentialFromClaims(s.cfg, s.cache, state.Token, state.Claims)
}

// MergeCredentialFromBearerIfMissing fills in cred from the bearer token
// when cred itself carries no usable credential. An Invalid bearer state
// always propagates as an error regardless of what cred already has — a
// tampered or expired bearer must never be silently ignored just because
// the request body happened to also omit credentials.
func (s *Service) MergeCredentialFromBearerIfMissing(state BearerState, cred Credential) (Credential, error) {
	if state.Present && !state.Valid {
		if state.Err != nil {
			return Credential{}, fmt.Errorf("session: invalid bearer: %w", state.Err)
		}
		return Credential{}, fmt.Errorf("session: invalid bearer: malformed Authorization header")
	}
	if cred.HasCredentials() {
		return cred, nil
	}
	if !state.Valid {
		return cred, nil
	}
	return s.CredentialFromBearer(state)
}

// DeriveUserIdentityWithBearer resolves the effective user_hash for a
// request: a body-derived hash wins when present, otherwise the bearer
// token's subject is used, otherwise identity is absent.
func DeriveUserIdentityWithBearer(bodyUserHash string, state BearerState) (userHash string, ok bool) {
	if bodyUserHash != "" {
		return bodyUserHash, true
	}
	if state.Valid && state.Claims.Sub != "" {
		return state.Claims.Sub, true
	}
	return "", false
}

// Logout revokes a single token by jti until its natural expiry.
func (s *Service) Logout(ctx context.Context, claims Claims) error {
	expires := time.Unix(claims.Exp, 0).UTC().Format(time.RFC3339Nano)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.store.AddTokenBlacklist(ctx, claims.Jti, expires, now)
}

// LogoutEverywhere sets a logout-before watermark for sub, revoking every
// token issued before this instant, and purges the decrypt cache so a
// concurrent request can't keep serving a credential that should now be
// rejected at the next verification.
func (s *Service) LogoutEverywhere(ctx context.Context, sub string, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl).Format(time.RFC3339Nano)
	if err := s.store.UpsertLogoutGate(ctx, sub, now.Format(time.RFC3339Nano), expires, now.Format(time.RFC3339Nano)); err != nil {
		return err
	}
	s.cache.Purge()
	return nil
}
