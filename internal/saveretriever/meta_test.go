// SPDX-License-Identifier: MIT

package saveretriever

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/cryptosave"
)

func TestFetchFromOfficial_DefaultCrypto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"summary":"c3VtbWFyeQ==","gameFile":{"url":"cdn.example.com/save.bin"},"updatedAt":"2026-01-01T00:00:00Z"}]}`))
	}))
	defer srv.Close()

	save := config.SaveConfig{
		PBKDF2RoundsMin: 1000,
		PBKDF2RoundsMax: 100000,
		TapTap:          config.TapTapConfig{CN: newTestEndpoint(srv.URL)},
	}
	fetcher := NewMetaFetcher(save)
	meta, err := fetcher.FetchSaveMeta(context.Background(), OfficialSource("session-token"), "cn")
	if err != nil {
		t.Fatalf("FetchSaveMeta: %v", err)
	}
	if meta.DownloadURL != "https://cdn.example.com/save.bin" {
		t.Fatalf("download url = %q", meta.DownloadURL)
	}
	if meta.DecryptMeta.Cipher.Kind != cryptosave.AES256CBCPKCS7 {
		t.Fatalf("expected default AES-256-CBC cipher")
	}
	if meta.DecryptMeta.Cipher.IV != cryptosave.DefaultIV {
		t.Fatalf("expected default IV")
	}
}

func TestFetchFromOfficial_NegotiatesGCMAndClampsPBKDF2(t *testing.T) {
	iv := hex.EncodeToString(make([]byte, 12))
	salt := hex.EncodeToString([]byte("salty"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"summary":"","gameFile":{"url":"https://cdn.example.com/s.bin"},"updatedAt":"u","crypto":{"crypto":{"mode":"aes-128-gcm","nonce_hex":"` + iv + `","tag_len":16,"kdf":{"kind":"pbkdf2-sha1","salt_hex":"` + salt + `","rounds":5}}}}]}`))
	}))
	defer srv.Close()

	save := config.SaveConfig{
		PBKDF2RoundsMin: 1000,
		PBKDF2RoundsMax: 100000,
		TapTap:          config.TapTapConfig{CN: newTestEndpoint(srv.URL)},
	}
	fetcher := NewMetaFetcher(save)
	meta, err := fetcher.FetchSaveMeta(context.Background(), OfficialSource("tok"), "cn")
	if err != nil {
		t.Fatalf("FetchSaveMeta: %v", err)
	}
	if meta.DecryptMeta.Cipher.Kind != cryptosave.AES128GCM {
		t.Fatalf("expected AES-128-GCM cipher")
	}
	if meta.DecryptMeta.KDF.Rounds != 1000 {
		t.Fatalf("rounds = %d, want clamped to 1000", meta.DecryptMeta.KDF.Rounds)
	}
}

func TestFetchFromExternal_RejectsInvalidCredentials(t *testing.T) {
	fetcher := NewMetaFetcher(config.SaveConfig{})
	_, err := fetcher.FetchSaveMeta(context.Background(), ExternalSource(ExternalAPICredentials{}), "")
	if err == nil {
		t.Fatal("expected error for empty credentials")
	}
}
