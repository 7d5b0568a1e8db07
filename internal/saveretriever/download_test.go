// SPDX-License-Identifier: MIT

package saveretriever

import "testing"

func TestGuardOutboundURL_RejectsPrivateAddress(t *testing.T) {
	d := NewDownloader(1 << 20)
	if _, err := d.guardOutboundURL("http://127.0.0.1/save.bin"); err == nil {
		t.Fatal("expected loopback address to be rejected")
	}
	if _, err := d.guardOutboundURL("http://10.0.0.5/save.bin"); err == nil {
		t.Fatal("expected private address to be rejected")
	}
}

func TestGuardOutboundURL_RejectsUnsupportedScheme(t *testing.T) {
	d := NewDownloader(1 << 20)
	if _, err := d.guardOutboundURL("file:///etc/passwd"); err == nil {
		t.Fatal("expected non-http(s) scheme to be rejected")
	}
}

func TestGuardOutboundURL_AllowsPublicHTTPS(t *testing.T) {
	d := NewDownloader(1 << 20)
	safe, err := d.guardOutboundURL("https://cdn.example.com/save.bin")
	if err != nil {
		t.Fatalf("guardOutboundURL: %v", err)
	}
	if safe != "https://cdn.example.com/save.bin" {
		t.Fatalf("safe url = %q", safe)
	}
}

func TestTryDecompress_PassesThroughRawZip(t *testing.T) {
	raw := []byte("PK\x03\x04not-really-a-zip-but-not-gzip-either")
	out, err := tryDecompress(raw)
	if err != nil {
		t.Fatalf("tryDecompress: %v", err)
	}
	if string(out) != string(raw) {
		t.Fatal("expected raw bytes passed through unchanged")
	}
}
