// SPDX-License-Identifier: MIT

// Package session issues and verifies the bearer tokens that let a TapTap
// save-retrieval credential be exchanged once and reused across requests
// without re-running the device-code flow: HS256-signed JWTs carrying a
// sealed, AEAD-encrypted copy of the credential, two-tier revocation
// (per-token blacklist, per-user logout gate), and an LRU decrypt cache so
// a hot token doesn't re-run AES-GCM on every request.
package session

import "github.com/phicloud/phi-backend/internal/saveretriever"

// Credential is the login material a session token stands in for: exactly
// what saveretriever.SaveSource needs to fetch a save, plus the TapTap
// region the original request specified.
type Credential struct {
	SessionToken        *string
	ExternalCredentials *saveretriever.ExternalAPICredentials
	TapTapVersion       *string
}

// HasCredentials reports whether either credential form is present.
func (c Credential) HasCredentials() bool {
	if c.SessionToken != nil && *c.SessionToken != "" {
		return true
	}
	return c.ExternalCredentials != nil && c.ExternalCredentials.IsValid()
}

// AsSaveSource converts the credential into the form saveretriever expects.
func (c Credential) AsSaveSource() saveretriever.SaveSource {
	if c.SessionToken != nil && *c.SessionToken != "" {
		return saveretriever.OfficialSource(*c.SessionToken)
	}
	if c.ExternalCredentials != nil {
		return saveretriever.ExternalSource(*c.ExternalCredentials)
	}
	return saveretriever.SaveSource{}
}

// Claims is the JWT payload: {sub, jti, iss, aud, iat, exp} plus the sealed
// credential envelope under "sae".
type Claims struct {
	Sub string `json:"sub"`
	Jti string `json:"jti"`
	Iss string `json:"iss"`
	Aud string `json:"aud"`
	Iat int64  `json:"iat"`
	Exp int64  `json:"exp"`
	SAE string `json:"sae,omitempty"`
}

// BearerState is the outcome of inspecting one request's Authorization
// header: Absent (no header at all), Invalid (a header was present but
// failed to decode/verify), or Valid.
type BearerState struct {
	Present bool
	Valid   bool
	Token   string
	Claims  Claims
	Err     error
}
