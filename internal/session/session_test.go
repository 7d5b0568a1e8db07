// SPDX-License-Identifier: MIT

package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/saveretriever"
	"github.com/phicloud/phi-backend/internal/stats/storage"
)

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		Enabled:              true,
		JWTSecret:            "test-jwt-secret-0123456789",
		JWTIssuer:            "phi-backend",
		JWTAudience:          "phi-client",
		TTLSecs:              3600,
		ExchangeSharedSecret: "exchange-secret",
		AuthEmbedSecret:      "test-embed-secret-abcdefgh",
		AuthCacheCapacity:    16,
	}
}

func openTestStore(t *testing.T) *storage.Storage {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "stats.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIssueAndDecode_RoundTrip(t *testing.T) {
	cfg := testConfig()
	token := "session-token-abc"
	cred := Credential{SessionToken: &token}

	raw, jti, err := IssueSession(cfg, "user-123", cred, time.Now())
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}

	claims, err := DecodeAccessToken(cfg, raw)
	if err != nil {
		t.Fatalf("DecodeAccessToken: %v", err)
	}
	if claims.Sub != "user-123" || claims.Jti != jti {
		t.Fatalf("claims = %+v, want sub=user-123 jti=%s", claims, jti)
	}

	embedSecret, _ := resolveEmbedSecret(cfg)
	got, err := openCredentialJSON(claims.SAE, claims.Jti, claims.Sub, embedSecret)
	if err != nil {
		t.Fatalf("openCredentialJSON: %v", err)
	}
	if got.SessionToken == nil || *got.SessionToken != token {
		t.Fatalf("decrypted credential = %+v, want session token %q", got, token)
	}
}

func TestDecodeAccessToken_RejectsTamperedSignature(t *testing.T) {
	cfg := testConfig()
	raw, _, err := IssueSession(cfg, "user-123", Credential{}, time.Now())
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	tampered := raw[:len(raw)-1] + "x"
	if _, err := DecodeAccessToken(cfg, tampered); err == nil {
		t.Fatal("expected tampered token to be rejected")
	}
}

func TestDecodeAccessToken_RejectsExpired(t *testing.T) {
	cfg := testConfig()
	past := time.Now().Add(-2 * time.Hour)
	raw, _, err := IssueSession(cfg, "user-123", Credential{}, past)
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	if _, err := DecodeAccessToken(cfg, raw); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	claims, err := DecodeAccessTokenAllowExpired(cfg, raw)
	if err != nil {
		t.Fatalf("DecodeAccessTokenAllowExpired: %v", err)
	}
	if claims.Sub != "user-123" {
		t.Fatalf("claims.Sub = %q, want user-123", claims.Sub)
	}
}

func TestValidateNotRevoked_Blacklist(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	claims := Claims{Sub: "user-1", Jti: "jti-1", Iat: time.Now().Unix()}

	if err := ValidateNotRevoked(ctx, store, claims); err != nil {
		t.Fatalf("expected no revocation yet, got %v", err)
	}

	expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339Nano)
	if err := store.AddTokenBlacklist(ctx, claims.Jti, expires, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("AddTokenBlacklist: %v", err)
	}
	if err := ValidateNotRevoked(ctx, store, claims); err == nil {
		t.Fatal("expected blacklisted token to be revoked")
	}
}

func TestValidateNotRevoked_LogoutGate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	older := Claims{Sub: "user-2", Jti: "jti-old", Iat: time.Now().Add(-time.Hour).Unix()}
	newer := Claims{Sub: "user-2", Jti: "jti-new", Iat: time.Now().Add(time.Minute).Unix()}

	now := time.Now().UTC()
	expires := now.Add(24 * time.Hour).Format(time.RFC3339Nano)
	if err := store.UpsertLogoutGate(ctx, "user-2", now.Format(time.RFC3339Nano), expires, now.Format(time.RFC3339Nano)); err != nil {
		t.Fatalf("UpsertLogoutGate: %v", err)
	}

	if err := ValidateNotRevoked(ctx, store, older); err == nil {
		t.Fatal("token issued before logout gate must be revoked")
	}
	if err := ValidateNotRevoked(ctx, store, newer); err != nil {
		t.Fatalf("token issued after logout gate must survive, got %v", err)
	}
}

func TestService_IssueRejectsWrongExchangeSecret(t *testing.T) {
	svc := NewService(testConfig(), openTestStore(t))
	_, err := svc.Issue(context.Background(), "user-1", Credential{}, "wrong-secret")
	if err == nil {
		t.Fatal("expected exchange secret mismatch to be rejected")
	}
}

func TestService_DecodeBearerRoundTrip(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(testConfig(), store)
	extCreds := saveretriever.ExternalAPICredentials{APIUserID: "p1", APIToken: "t1"}
	cred := Credential{ExternalCredentials: &extCreds}

	token, err := svc.Issue(context.Background(), "user-42", cred, "exchange-secret")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	state := svc.DecodeBearer(context.Background(), "Bearer "+token)
	if !state.Valid {
		t.Fatalf("expected valid bearer, got %+v", state)
	}
	if state.Claims.Sub != "user-42" {
		t.Fatalf("claims.Sub = %q, want user-42", state.Claims.Sub)
	}

	got, err := svc.CredentialFromBearer(state)
	if err != nil {
		t.Fatalf("CredentialFromBearer: %v", err)
	}
	if got.ExternalCredentials == nil || got.ExternalCredentials.APIUserID != "p1" {
		t.Fatalf("credential = %+v, want api user p1", got)
	}
}

// Mirrors the three identity-fallback scenarios: body credential wins when
// present, bearer is used when the body is empty, and identity is absent
// when neither supplies one.
func TestMergeCredentialFromBearerIfMissing_BodyWins(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(testConfig(), store)
	tok := "bearer-token"
	bearerCred := Credential{SessionToken: &tok}
	token, err := svc.Issue(context.Background(), "bearer-user", bearerCred, "exchange-secret")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	state := svc.DecodeBearer(context.Background(), "Bearer "+token)

	bodyTok := "body-token"
	bodyCred := Credential{SessionToken: &bodyTok}
	merged, err := svc.MergeCredentialFromBearerIfMissing(state, bodyCred)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.SessionToken == nil || *merged.SessionToken != bodyTok {
		t.Fatalf("expected body credential to win, got %+v", merged)
	}
}

func TestMergeCredentialFromBearerIfMissing_BearerUsedWhenBodyEmpty(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(testConfig(), store)
	tok := "bearer-token"
	bearerCred := Credential{SessionToken: &tok}
	token, err := svc.Issue(context.Background(), "bearer-user", bearerCred, "exchange-secret")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	state := svc.DecodeBearer(context.Background(), "Bearer "+token)

	merged, err := svc.MergeCredentialFromBearerIfMissing(state, Credential{})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.SessionToken == nil || *merged.SessionToken != tok {
		t.Fatalf("expected bearer credential to fill in, got %+v", merged)
	}
}

func TestMergeCredentialFromBearerIfMissing_InvalidBearerAlwaysErrors(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(testConfig(), store)
	bodyTok := "body-token"
	bodyCred := Credential{SessionToken: &bodyTok}

	state := svc.DecodeBearer(context.Background(), "Bearer not-a-real-token")
	if _, err := svc.MergeCredentialFromBearerIfMissing(state, bodyCred); err == nil {
		t.Fatal("expected an invalid bearer to error even though the body has a credential")
	}
}

func TestDeriveUserIdentityWithBearer(t *testing.T) {
	valid := BearerState{Valid: true, Claims: Claims{Sub: "bearer-sub"}}

	if hash, ok := DeriveUserIdentityWithBearer("body-hash", valid); !ok || hash != "body-hash" {
		t.Fatalf("expected body hash to win, got %q ok=%v", hash, ok)
	}
	if hash, ok := DeriveUserIdentityWithBearer("", valid); !ok || hash != "bearer-sub" {
		t.Fatalf("expected bearer sub as fallback, got %q ok=%v", hash, ok)
	}
	if _, ok := DeriveUserIdentityWithBearer("", BearerState{}); ok {
		t.Fatal("expected no identity when neither body nor bearer supply one")
	}
}

func TestLogout_Blacklists(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(testConfig(), store)
	token, err := svc.Issue(context.Background(), "user-9", Credential{}, "exchange-secret")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	state := svc.DecodeBearer(context.Background(), "Bearer "+token)
	if !state.Valid {
		t.Fatalf("expected valid bearer before logout, got %+v", state)
	}

	if err := svc.Logout(context.Background(), state.Claims); err != nil {
		t.Fatalf("Logout: %v", err)
	}

	after := svc.DecodeBearer(context.Background(), "Bearer "+token)
	if after.Valid {
		t.Fatal("expected token to be revoked after logout")
	}
}

func TestLogoutEverywhere_RevokesOlderTokens(t *testing.T) {
	store := openTestStore(t)
	svc := NewService(testConfig(), store)
	token, err := svc.Issue(context.Background(), "user-7", Credential{}, "exchange-secret")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if err := svc.LogoutEverywhere(context.Background(), "user-7", 24*time.Hour); err != nil {
		t.Fatalf("LogoutEverywhere: %v", err)
	}

	state := svc.DecodeBearer(context.Background(), "Bearer "+token)
	if state.Valid {
		t.Fatal("expected token issued before logout-everywhere to be revoked")
	}
}

func TestAuthDecryptCache_TTLExpiry(t *testing.T) {
	cache := NewAuthDecryptCache(8)
	tok := "s"
	cred := Credential{SessionToken: &tok}
	cache.Put("k", cred, time.Now().Add(-time.Second))
	if _, ok := cache.Get("k"); ok {
		t.Fatal("expected already-expired entry to miss")
	}
}
