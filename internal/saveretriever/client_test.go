// SPDX-License-Identifier: MIT

package saveretriever

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phicloud/phi-backend/internal/config"
)

func newTestEndpoint(base string) config.TapTapEndpoint {
	return config.TapTapEndpoint{
		LeanCloudBaseURL:   base,
		LeanCloudAppID:     "app-id",
		LeanCloudAppKey:    "app-key",
		DeviceCodeEndpoint: base + "/device/code",
		TokenEndpoint:      base + "/device/token",
		UserInfoEndpoint:   base + "/account/basic-info/v1",
	}
}

func TestRequestDeviceCode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"device_code":      "dc-1",
				"user_code":        "ABCD-EFGH",
				"verification_url": "https://taptap.com/device?code=ABCD-EFGH",
				"expires_in":       1800,
				"interval":         5,
			},
		})
	}))
	defer srv.Close()

	client := NewTapTapClient(config.TapTapConfig{CN: newTestEndpoint(srv.URL)})
	resp, err := client.RequestDeviceCode(context.Background(), "device-1", "cn")
	if err != nil {
		t.Fatalf("RequestDeviceCode: %v", err)
	}
	if resp.DeviceCode != "dc-1" || resp.Interval != 5 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestRequestDeviceCode_BusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "data": "rate limited"})
	}))
	defer srv.Close()

	client := NewTapTapClient(config.TapTapConfig{CN: newTestEndpoint(srv.URL)})
	_, err := client.RequestDeviceCode(context.Background(), "device-1", "cn")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *Error
	if e, ok := err.(*Error); ok {
		se = e
	}
	if se == nil || se.Kind != KindAuth {
		t.Fatalf("err = %v, want KindAuth", err)
	}
}

func TestPollForToken_AuthorizationPending(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"data":    map[string]any{"error": "authorization_pending", "error_description": "not yet"},
		})
	}))
	defer srv.Close()

	client := NewTapTapClient(config.TapTapConfig{CN: newTestEndpoint(srv.URL)})
	_, err := client.PollForToken(context.Background(), "dc-1", "device-1", "cn")
	if !IsAuthPending(err) {
		t.Fatalf("expected auth-pending error, got %v", err)
	}
}

func TestPollForToken_FullExchange(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/device/token", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"kid": "kid-1", "mac_key": "mac-key-1"},
		})
	})
	mux.HandleFunc("/account/basic-info/v1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"openid": "open-1", "unionid": "union-1"},
		})
	})
	mux.HandleFunc("/users", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionToken": "session-xyz"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ep := newTestEndpoint(srv.URL)
	ep.LeanCloudBaseURL = srv.URL
	client := NewTapTapClient(config.TapTapConfig{CN: ep})

	session, err := client.PollForToken(context.Background(), "dc-1", "device-1", "cn")
	if err != nil {
		t.Fatalf("PollForToken: %v", err)
	}
	if session.SessionToken != "session-xyz" {
		t.Fatalf("session token = %q, want session-xyz", session.SessionToken)
	}
}
