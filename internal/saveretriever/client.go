// SPDX-License-Identifier: MIT

package saveretriever

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1" //nolint:gosec // required by TapTap's hmac-sha-1 MAC auth scheme
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/log"
	"github.com/phicloud/phi-backend/internal/platform/httpx"
)

const (
	tapUserAgent      = "TapTapAndroidSDK/3.16.5"
	leanCloudUA       = "LeanCloud-CSharp-SDK/1.0.3"
	deviceTokenClient = "unity"
)

// TapTapClient drives the two legs of the TapTap device-code grant:
// requesting a code the player scans, and polling for the resulting
// account once they confirm, finally federating into LeanCloud.
type TapTapClient struct {
	httpClient *http.Client
	config     config.TapTapConfig
}

// NewTapTapClient builds a client over the shared hardened HTTP pool
// (internal/platform/httpx), sized for upstream OAuth round trips.
func NewTapTapClient(cfg config.TapTapConfig) *TapTapClient {
	return &TapTapClient{
		httpClient: httpx.NewClient(15 * time.Second),
		config:     cfg,
	}
}

func (c *TapTapClient) endpoint(version string) config.TapTapEndpoint {
	switch version {
	case "global":
		return c.config.Global
	default:
		return c.config.CN
	}
}

// RequestDeviceCode asks TapTap for a device code and verification URL
// the player visits to confirm the login.
func (c *TapTapClient) RequestDeviceCode(ctx context.Context, deviceID, version string) (DeviceCodeResponse, error) {
	ep := c.endpoint(version)
	info, _ := json.Marshal(map[string]string{"device_id": deviceID})

	form := url.Values{
		"client_id":     {ep.LeanCloudAppID},
		"response_type": {"device_code"},
		"scope":         {"basic_info"},
		"version":       {"1.2.0"},
		"platform":      {deviceTokenClient},
		"info":          {string(info)},
	}

	body, err := c.doForm(ctx, ep.DeviceCodeEndpoint, form)
	if err != nil {
		return DeviceCodeResponse{}, err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    DeviceCodeResponse `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return DeviceCodeResponse{}, newErr(KindJSON, "decode device code response", err)
	}
	if !envelope.Success {
		return DeviceCodeResponse{}, newErr(KindAuth, "taptap rejected device code request: "+string(body), nil)
	}
	return envelope.Data, nil
}

// PollForToken exchanges a device code for a LeanCloud session token.
// Returns a retryable *Error (Kind == KindAuthPending) while the player
// has not yet confirmed.
func (c *TapTapClient) PollForToken(ctx context.Context, deviceCode, deviceID, version string) (SessionData, error) {
	ep := c.endpoint(version)
	info, _ := json.Marshal(map[string]string{"device_id": deviceID})

	form := url.Values{
		"grant_type":  {"device_token"},
		"client_id":   {ep.LeanCloudAppID},
		"secret_type": {"hmac-sha-1"},
		"code":        {deviceCode},
		"version":     {"1.0"},
		"platform":    {deviceTokenClient},
		"info":        {string(info)},
	}

	body, err := c.doForm(ctx, ep.TokenEndpoint, form)
	if err != nil {
		return SessionData{}, err
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return SessionData{}, newErr(KindJSON, "decode token response", err)
	}
	if !envelope.Success {
		return SessionData{}, classifyPollFailure(envelope.Data)
	}

	var token tapTapToken
	if err := json.Unmarshal(envelope.Data, &token); err != nil {
		return SessionData{}, newErr(KindJSON, "decode token payload", err)
	}

	account, err := c.fetchAccount(ctx, ep, token)
	if err != nil {
		return SessionData{}, err
	}

	return c.federateLeanCloud(ctx, ep, token, account)
}

func classifyPollFailure(data json.RawMessage) error {
	var obj struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
	}
	_ = json.Unmarshal(data, &obj)
	msg := obj.ErrorDescription
	if msg == "" {
		msg = obj.Msg
	}
	if msg == "" {
		msg = string(data)
	}

	code := strings.ToLower(obj.Error)
	if strings.Contains(code, "authorization_pending") || strings.Contains(code, "slow_down") {
		return newErr(KindAuthPending, msg, nil)
	}
	return newErr(KindAuth, msg, nil)
}

func (c *TapTapClient) fetchAccount(ctx context.Context, ep config.TapTapEndpoint, token tapTapToken) (tapTapAccount, error) {
	authHeader, err := buildMACAuthorization(token, ep.LeanCloudAppID)
	if err != nil {
		return tapTapAccount{}, newErr(KindAuth, "build MAC authorization", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s?client_id=%s", ep.UserInfoEndpoint, ep.LeanCloudAppID), nil)
	if err != nil {
		return tapTapAccount{}, newErr(KindNetwork, "build account request", err)
	}
	req.Header.Set("User-Agent", tapUserAgent)
	req.Header.Set("Authorization", authHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return tapTapAccount{}, newErr(KindNetwork, "request account info", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return tapTapAccount{}, newErr(KindNetwork, "read account response", err)
	}

	var w wrap[tapTapAccount]
	if err := json.Unmarshal(body, &w); err != nil {
		return tapTapAccount{}, newErr(KindJSON, "decode account response", err)
	}
	return w.Data, nil
}

func (c *TapTapClient) federateLeanCloud(ctx context.Context, ep config.TapTapEndpoint, token tapTapToken, account tapTapAccount) (SessionData, error) {
	authData := map[string]any{
		"authData": map[string]any{
			"taptap": map[string]any{
				"kid":           token.Kid,
				"access_token":  token.Kid,
				"token_type":    "mac",
				"mac_key":       token.MacKey,
				"mac_algorithm": "hmac-sha-1",
				"openid":        account.OpenID,
				"unionid":       account.UnionID,
			},
		},
	}
	payload, err := json.Marshal(authData)
	if err != nil {
		return SessionData{}, newErr(KindJSON, "encode leancloud auth payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.LeanCloudBaseURL+"/users", strings.NewReader(string(payload)))
	if err != nil {
		return SessionData{}, newErr(KindNetwork, "build leancloud request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", leanCloudUA)
	req.Header.Set("X-LC-Id", ep.LeanCloudAppID)
	req.Header.Set("X-LC-Key", ep.LeanCloudAppKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SessionData{}, newErr(KindNetwork, "request leancloud federation", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SessionData{}, newErr(KindNetwork, "read leancloud response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.L().Warn().Int("status", resp.StatusCode).Msg("leancloud federation rejected")
		return SessionData{}, newErr(KindAuth, fmt.Sprintf("leancloud federation failed: HTTP %d", resp.StatusCode), nil)
	}

	var lcUser struct {
		SessionToken string `json:"sessionToken"`
	}
	if err := json.Unmarshal(body, &lcUser); err != nil {
		return SessionData{}, newErr(KindJSON, "decode leancloud response", err)
	}
	return SessionData{SessionToken: lcUser.SessionToken}, nil
}

func (c *TapTapClient) doForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, newErr(KindNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", tapUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newErr(KindNetwork, "do request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newErr(KindNetwork, "read response body", err)
	}
	return body, nil
}

// buildMACAuthorization signs a GET to the user-info endpoint per
// TapTap's MAC access authentication scheme (hmac-sha-1 over a fixed
// normalized-request string).
func buildMACAuthorization(token tapTapToken, leanCloudAppID string) (string, error) {
	ts := time.Now().Unix()

	var nonceBuf [4]byte
	if _, err := rand.Read(nonceBuf[:]); err != nil {
		return "", err
	}
	nonce := binary.BigEndian.Uint32(nonceBuf[:])

	input := fmt.Sprintf("%d\n%d\nGET\n/account/basic-info/v1?client_id=%s\nopen.tapapis.cn\n443\n\n",
		ts, nonce, leanCloudAppID)

	mac := hmac.New(sha1.New, []byte(token.MacKey))
	mac.Write([]byte(input))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("MAC id=%q,ts=%q,nonce=%q,mac=%q",
		token.Kid, strconv.FormatInt(ts, 10), strconv.FormatUint(uint64(nonce), 10), sig), nil
}
