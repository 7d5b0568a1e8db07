// SPDX-License-Identifier: MIT

package saveretriever

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/idna"

	"github.com/phicloud/phi-backend/internal/cryptosave"
	"github.com/phicloud/phi-backend/internal/platform/httpx"
)

// expectedEntries are the five members a save archive may carry; any
// subset is tolerated.
var expectedEntries = [...]string{"gameRecord", "gameKey", "gameProgress", "user", "settings"}

// Downloader fetches and decrypts the raw save blob a SaveMeta points at.
// It owns its own client (a longer timeout than the metadata lookups, and
// a download-size ceiling) built over the shared httpx pool.
type Downloader struct {
	httpClient     *http.Client
	maxBytes       int64
	allowedSchemes map[string]bool
}

// NewDownloader builds a Downloader bounded by maxDownloadBytes (spec
// §4.1: exceeding it is fatal).
func NewDownloader(maxDownloadBytes int64) *Downloader {
	return &Downloader{
		httpClient:     httpx.NewClient(90 * time.Second),
		maxBytes:       maxDownloadBytes,
		allowedSchemes: map[string]bool{"https": true, "http": true},
	}
}

// guardOutboundURL rejects non-http(s) URLs and hosts that are literal
// loopback, link-local, private or unspecified IP addresses, and
// normalizes internationalized hostnames to ASCII before they're handed to
// net/http. Hostnames are not resolved, so a name that points at such an
// address is not rejected here.
func (d *Downloader) guardOutboundURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", newErr(KindNetwork, "invalid download url", err)
	}
	if !d.allowedSchemes[u.Scheme] {
		return "", newErr(KindNetwork, "unsupported url scheme: "+u.Scheme, nil)
	}

	host := u.Hostname()
	asciiHost, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", newErr(KindNetwork, "invalid host in download url", err)
	}
	u.Host = asciiHost
	if p := u.Port(); p != "" {
		u.Host = net.JoinHostPort(asciiHost, p)
	}

	if ip := net.ParseIP(asciiHost); ip != nil && isDisallowedIP(ip) {
		return "", newErr(KindNetwork, "download url resolves to a disallowed address", nil)
	}

	return u.String(), nil
}

func isDisallowedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsPrivate() || ip.IsUnspecified()
}

// Fetch downloads the blob at meta.DownloadURL, auto-detects and peels
// off GZIP/Zlib framing, opens it as a ZIP archive, and decrypts each
// present expected entry with meta.DecryptMeta. Missing entries are
// omitted from the result rather than erroring.
func (d *Downloader) Fetch(ctx context.Context, meta SaveMeta) (map[string][]byte, error) {
	safeURL, err := d.guardOutboundURL(meta.DownloadURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, safeURL, nil)
	if err != nil {
		return nil, newErr(KindNetwork, "build download request", err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, newErr(KindNetwork, "download save blob", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newErr(KindNetwork, fmt.Sprintf("download failed: HTTP %d", resp.StatusCode), nil)
	}

	limited := io.LimitReader(resp.Body, d.maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, newErr(KindNetwork, "read save blob", err)
	}
	if int64(len(raw)) > d.maxBytes {
		return nil, newErr(KindDownloadTooLarge, fmt.Sprintf("save exceeds %d bytes", d.maxBytes), nil)
	}

	zipBytes, err := tryDecompress(raw)
	if err != nil {
		return nil, newErr(KindNetwork, "decompress save blob", err)
	}

	archive, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return nil, newErr(KindNetwork, "open save archive", err)
	}

	decrypted := make(map[string][]byte, len(expectedEntries))
	for _, name := range expectedEntries {
		f, err := archive.Open(name)
		if err != nil {
			continue // entry absent; tolerated per spec §4.2
		}
		enc, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, newErr(KindNetwork, "read archive entry "+name, err)
		}
		plain, err := cryptosave.DecryptZipEntry(enc, meta.DecryptMeta)
		if err != nil {
			return nil, newErr(KindAuth, "decrypt archive entry "+name, err)
		}
		decrypted[name] = plain
	}

	return decrypted, nil
}

// tryDecompress peels off GZIP framing (detected by its magic bytes) or
// Zlib framing (detected by attempting a decode), falling back to the raw
// bytes (already a ZIP) when neither matches.
func tryDecompress(raw []byte) ([]byte, error) {
	if len(raw) >= 2 && raw[0] == 0x1F && raw[1] == 0x8B {
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		return io.ReadAll(gz)
	}

	if r, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
		defer r.Close()
		if out, err := io.ReadAll(r); err == nil {
			return out, nil
		}
	}

	return raw, nil
}
