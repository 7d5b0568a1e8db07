// SPDX-License-Identifier: MIT

package saveretriever

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phicloud/phi-backend/internal/config"
	"github.com/phicloud/phi-backend/internal/cryptosave"
	"github.com/phicloud/phi-backend/internal/log"
	"github.com/phicloud/phi-backend/internal/platform/httpx"
)

const leanCloudFetchUA = "LeanCloud-CSharp-SDK/1.0.3"

// MetaFetcher resolves save metadata (download URL + crypto parameters)
// without downloading the save body, so callers can cache-check updatedAt
// before paying for the download/decrypt/parse pipeline.
type MetaFetcher struct {
	httpClient *http.Client
	taptap     config.TapTapConfig
	save       config.SaveConfig
}

// NewMetaFetcher builds a MetaFetcher over the shared hardened HTTP pool.
func NewMetaFetcher(save config.SaveConfig) *MetaFetcher {
	return &MetaFetcher{
		httpClient: httpx.NewClient(30 * time.Second),
		taptap:     save.TapTap,
		save:       save,
	}
}

// FetchSaveMeta resolves metadata for the given SaveSource, following the
// official LeanCloud path when a session token is available (directly, or
// via an external credential that itself carries one), and otherwise the
// third-party relay.
func (f *MetaFetcher) FetchSaveMeta(ctx context.Context, source SaveSource, version string) (SaveMeta, error) {
	if source.Official != nil {
		return f.fetchFromOfficial(ctx, *source.Official, version)
	}
	if source.External != nil {
		if source.External.SessionToken != "" {
			return f.fetchFromOfficial(ctx, source.External.SessionToken, version)
		}
		return f.fetchFromExternal(ctx, *source.External)
	}
	return SaveMeta{}, newErr(KindMissingField, "no save source provided", nil)
}

type saveInfoResponse struct {
	Results []saveInfoResult `json:"results"`
}

type saveInfoResult struct {
	Summary   string          `json:"summary"`
	GameFile  gameFile        `json:"gameFile"`
	UpdatedAt string          `json:"updatedAt"`
	Crypto    *saveCryptoMeta `json:"crypto"`
}

type gameFile struct {
	URL string `json:"url"`
}

type saveCryptoMeta struct {
	Crypto *cryptoSpec `json:"crypto"`
}

type cryptoSpec struct {
	Mode     string     `json:"mode"`
	IVHex    string     `json:"iv_hex"`
	NonceHex string     `json:"nonce_hex"`
	TagLen   *int       `json:"tag_len"`
	KDF      *kdfFields `json:"kdf"`
}

type kdfFields struct {
	Kind        string `json:"kind"`
	SaltHex     string `json:"salt_hex"`
	Rounds      *int   `json:"rounds"`
	PasswordB64 string `json:"password_b64"`
}

func (f *MetaFetcher) fetchFromOfficial(ctx context.Context, sessionToken, version string) (SaveMeta, error) {
	ep := f.taptapEndpoint(version)
	reqURL := strings.TrimRight(ep.LeanCloudBaseURL, "/") + "/classes/_GameSave?limit=1"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return SaveMeta{}, newErr(KindNetwork, "build save-info request", err)
	}
	req.Header.Set("X-LC-Id", ep.LeanCloudAppID)
	req.Header.Set("X-LC-Key", ep.LeanCloudAppKey)
	req.Header.Set("X-LC-Session", sessionToken)
	req.Header.Set("User-Agent", leanCloudFetchUA)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return SaveMeta{}, newErr(KindNetwork, "request save info", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SaveMeta{}, newErr(KindAuth, fmt.Sprintf("save-info request failed: HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SaveMeta{}, newErr(KindNetwork, "read save-info response", err)
	}

	var info saveInfoResponse
	if err := json.Unmarshal(body, &info); err != nil {
		return SaveMeta{}, newErr(KindJSON, "decode save-info response", err)
	}
	if len(info.Results) == 0 {
		return SaveMeta{}, newErr(KindMissingField, "no save found", nil)
	}
	result := info.Results[0]

	downloadURL := result.GameFile.URL
	if !strings.HasPrefix(downloadURL, "http") {
		downloadURL = "https://" + downloadURL
	}

	meta := f.negotiateCrypto(result.Crypto)

	return SaveMeta{
		DownloadURL: downloadURL,
		DecryptMeta: meta,
		SummaryB64:  result.Summary,
		UpdatedAt:   result.UpdatedAt,
	}, nil
}

// negotiateCrypto resolves the server-advertised cipher/KDF parameters to
// a cryptosave.DecryptionMeta, falling back to the format default
// (AES-256-CBC with the built-in IV) when nothing usable is present.
func (f *MetaFetcher) negotiateCrypto(root *saveCryptoMeta) cryptosave.DecryptionMeta {
	meta := cryptosave.DefaultMeta()
	if root == nil || root.Crypto == nil {
		return meta
	}
	spec := root.Crypto

	resolved := false
	switch strings.ToLower(spec.Mode) {
	case "aes-256-cbc":
		if iv, err := hex.DecodeString(spec.IVHex); err == nil && len(iv) == 16 {
			var ivArr [16]byte
			copy(ivArr[:], iv)
			meta.Cipher = cryptosave.CipherSuite{Kind: cryptosave.AES256CBCPKCS7, IV: ivArr}
			resolved = true
		}
	case "aes-128-gcm":
		nonceHex := spec.NonceHex
		if nonceHex == "" {
			nonceHex = spec.IVHex
		}
		nonce, _ := hex.DecodeString(nonceHex)
		tagLen := 16
		if spec.TagLen != nil {
			tagLen = *spec.TagLen
		}
		meta.Cipher = cryptosave.CipherSuite{Kind: cryptosave.AES128GCM, Nonce: nonce, TagLen: tagLen}
		resolved = true
	}
	if !resolved {
		meta.Cipher = cryptosave.CipherSuite{Kind: cryptosave.AES256CBCPKCS7, IV: cryptosave.DefaultIV}
	}

	if spec.KDF != nil && strings.EqualFold(spec.KDF.Kind, "pbkdf2-sha1") {
		salt, _ := hex.DecodeString(spec.KDF.SaltHex)
		rawRounds := 1000
		if spec.KDF.Rounds != nil {
			rawRounds = *spec.KDF.Rounds
		}
		rounds := f.clampPBKDF2Rounds(rawRounds)
		if rounds != rawRounds {
			log.L().Warn().Int("raw_rounds", rawRounds).Int("rounds", rounds).
				Msg("pbkdf2 rounds out of configured range, clamped")
		}
		var password []byte
		if spec.KDF.PasswordB64 != "" {
			password, _ = base64.StdEncoding.DecodeString(spec.KDF.PasswordB64)
		}
		meta.KDF = cryptosave.KDFSpec{Enabled: true, Salt: salt, Rounds: rounds, Password: password}
	}

	return meta
}

func (f *MetaFetcher) clampPBKDF2Rounds(rounds int) int {
	min := f.save.PBKDF2RoundsMin
	max := f.save.PBKDF2RoundsMax
	if max < min {
		max = min
	}
	switch {
	case rounds < min:
		return min
	case rounds > max:
		return max
	default:
		return rounds
	}
}

func (f *MetaFetcher) taptapEndpoint(version string) config.TapTapEndpoint {
	switch version {
	case "global":
		return f.taptap.Global
	default:
		return f.taptap.CN
	}
}

type externalAPIResponse struct {
	Data externalAPIData `json:"data"`
}

type externalAPIData struct {
	SaveURL  string           `json:"saveUrl"`
	SaveInfo *externalSaveInfo `json:"saveInfo"`
	Summary  *externalSummary `json:"summary"`
}

type externalSaveInfo struct {
	UpdatedAt  string            `json:"updatedAt"`
	ModifiedAt *leancloudDate    `json:"modifiedAt"`
	GameFile   *externalGameFile `json:"gameFile"`
}

type leancloudDate struct {
	ISO string `json:"iso"`
}

type externalGameFile struct {
	UpdatedAt string `json:"updatedAt"`
}

type externalSummary struct {
	UpdatedAt string `json:"updatedAt"`
}

func (f *MetaFetcher) fetchFromExternal(ctx context.Context, creds ExternalAPICredentials) (SaveMeta, error) {
	if !creds.IsValid() {
		return SaveMeta{}, newErr(KindMissingField,
			"must supply one of: platform+platform_id / sessiontoken / api_user_id", nil)
	}

	payload, err := json.Marshal(creds)
	if err != nil {
		return SaveMeta{}, newErr(KindJSON, "encode external credentials", err)
	}

	const externalEndpoint = "https://phib19.top:8080/get/cloud/saves"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, externalEndpoint, strings.NewReader(string(payload)))
	if err != nil {
		return SaveMeta{}, newErr(KindNetwork, "build external save request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return SaveMeta{}, newErr(KindNetwork, "request external save", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SaveMeta{}, newErr(KindNetwork, fmt.Sprintf("external save request failed: HTTP %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SaveMeta{}, newErr(KindNetwork, "read external save response", err)
	}

	var api externalAPIResponse
	if err := json.Unmarshal(body, &api); err != nil {
		return SaveMeta{}, newErr(KindJSON, "decode external save response", err)
	}

	updatedAt := ""
	if info := api.Data.SaveInfo; info != nil {
		switch {
		case info.UpdatedAt != "":
			updatedAt = info.UpdatedAt
		case info.ModifiedAt != nil && info.ModifiedAt.ISO != "":
			updatedAt = info.ModifiedAt.ISO
		case info.GameFile != nil:
			updatedAt = info.GameFile.UpdatedAt
		}
	}
	if updatedAt == "" && api.Data.Summary != nil {
		updatedAt = api.Data.Summary.UpdatedAt
	}

	return SaveMeta{
		DownloadURL: api.Data.SaveURL,
		DecryptMeta: cryptosave.DefaultMeta(),
		UpdatedAt:   updatedAt,
	}, nil
}
