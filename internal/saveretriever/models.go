// SPDX-License-Identifier: MIT

// Package saveretriever implements the TapTap device-code login flow and
// the save-metadata lookup that follows it: requesting a device code,
// polling TapTap until the player confirms on their phone, exchanging the
// resulting account for a LeanCloud session token, and then resolving the
// encrypted save's download URL and crypto parameters.
package saveretriever

import "github.com/phicloud/phi-backend/internal/cryptosave"

// DeviceCodeResponse is TapTap's device-authorization grant response.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// tapTapToken is the MAC credential returned by a successful device-token
// exchange, used to sign the subsequent user-info request.
type tapTapToken struct {
	Kid    string `json:"kid"`
	MacKey string `json:"mac_key"`
}

// tapTapAccount is the minimal TapTap account identity needed to federate
// into LeanCloud.
type tapTapAccount struct {
	OpenID  string `json:"openid"`
	UnionID string `json:"unionid"`
}

// wrap mirrors TapTap's `{"data": ...}` response envelope.
type wrap[T any] struct {
	Data T `json:"data"`
}

// SessionData is the LeanCloud session token produced once TapTap
// confirms device authorization.
type SessionData struct {
	SessionToken string `json:"session_token"`
}

// ExternalAPICredentials is the alternate, non-TapTap identity a client
// may submit directly instead of going through the device-code flow.
type ExternalAPICredentials struct {
	Platform     string `json:"platform,omitempty"`
	PlatformID   string `json:"platform_id,omitempty"`
	SessionToken string `json:"sessiontoken,omitempty"`
	APIUserID    string `json:"api_user_id,omitempty"`
	APIToken     string `json:"api_token,omitempty"`
}

// IsValid reports whether at least one recognized credential pairing was
// supplied.
func (c ExternalAPICredentials) IsValid() bool {
	hasPlatformAuth := c.Platform != "" && c.PlatformID != ""
	hasSessionAuth := c.SessionToken != ""
	hasAPIAuth := c.APIUserID != ""
	return hasPlatformAuth || hasSessionAuth || hasAPIAuth
}

// SaveSource selects which upstream a caller wants fetch_save_meta to use.
type SaveSource struct {
	Official *string // session token, when set
	External *ExternalAPICredentials
}

// OfficialSource builds a SaveSource that goes straight to LeanCloud with
// an existing session token.
func OfficialSource(sessionToken string) SaveSource {
	return SaveSource{Official: &sessionToken}
}

// ExternalSource builds a SaveSource backed by federated credentials.
func ExternalSource(creds ExternalAPICredentials) SaveSource {
	return SaveSource{External: &creds}
}

// SaveMeta is everything needed to download and decrypt a save without
// re-querying the upstream: the blob URL, negotiated crypto parameters,
// and (when available) the save summary and its last-modified stamp.
type SaveMeta struct {
	DownloadURL string
	DecryptMeta cryptosave.DecryptionMeta
	SummaryB64  string
	UpdatedAt   string
}
