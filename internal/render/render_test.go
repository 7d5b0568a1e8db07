// SPDX-License-Identifier: MIT

package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestPNG(t *testing.T, path string, w, h int, fill color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func TestEscapeXML(t *testing.T) {
	in := `<tag a="b" & 'c'>`
	want := "&lt;tag a=&quot;b&quot; &amp; &apos;c&apos;&gt;"
	if got := escapeXML(in); got != want {
		t.Fatalf("escapeXML = %q, want %q", got, want)
	}
}

func TestAssetCache_SmallFileBecomesDataURI(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cover.png")
	writeTestPNG(t, path, 4, 4, color.RGBA{R: 10, G: 20, B: 30, A: 255})

	cache := NewAssetCache(4)
	href, ok := cache.GetImageHref(path, true)
	if !ok {
		t.Fatal("expected a resolvable href")
	}
	if !strings.HasPrefix(href, "data:image/png;base64,") {
		t.Fatalf("href = %q, want a data URI for a small file", href)
	}

	href2, ok := cache.GetImageHref(path, true)
	if !ok || href2 != href {
		t.Fatalf("second lookup = %q, %v, want cached hit matching first", href2, ok)
	}
}

func TestAssetCache_NoEmbedPrefersFilePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bg.png")
	writeTestPNG(t, path, 4, 4, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	cache := NewAssetCache(4)
	href, ok := cache.GetImageHref(path, false)
	if !ok {
		t.Fatal("expected a resolvable href")
	}
	if href != path {
		t.Fatalf("href = %q, want bare path %q when embedImages=false", href, path)
	}
}

func TestAssetCache_MissingPathFails(t *testing.T) {
	cache := NewAssetCache(4)
	if _, ok := cache.GetImageHref("/does/not/exist.png", true); ok {
		t.Fatal("expected a missing file to fail to resolve")
	}
}

func TestInverseColorFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "solid.png")
	writeTestPNG(t, path, 8, 8, color.RGBA{R: 0, G: 0, B: 0, A: 255})

	cache := NewInverseColorCache(4)
	got, err := cache.InverseColorFromPath(path)
	if err != nil {
		t.Fatalf("InverseColorFromPath: %v", err)
	}
	if got != "#FFFFFF" {
		t.Fatalf("inverse of pure black = %q, want #FFFFFF", got)
	}

	// second call should hit the cache and return the same value.
	got2, err := cache.InverseColorFromPath(path)
	if err != nil || got2 != got {
		t.Fatalf("cached call = %q, %v, want %q, nil", got2, err, got)
	}
}

func TestGenerateCardSVG_ProducesWellFormedRoot(t *testing.T) {
	stats := PlayerStats{
		PlayerName: "tester",
		RealRKS:    15.234,
		N:          3,
		Best27Avg:  15.1,
		APTop3Avg:  15.9,
		Charts: []ChartScore{
			{SongName: "Song A", Difficulty: "IN", Acc: 99.5, RKS: 15.2},
			{SongName: "Song <B>", Difficulty: "AT", Acc: 100, RKS: 16.0, IsPhi: true},
		},
	}
	svg, err := GenerateCardSVG(stats, CardOptions{Theme: ThemeWhite})
	if err != nil {
		t.Fatalf("GenerateCardSVG: %v", err)
	}
	if !strings.HasPrefix(svg, "<svg ") || !strings.HasSuffix(svg, "</svg>") {
		t.Fatalf("svg is not a single well-formed root element: %q", svg[:40])
	}
	if strings.Contains(svg, "Song <B>") {
		t.Fatal("song name with '<' was not escaped")
	}
}

func TestGenerateLeaderboardSVG_ClampsDisplayCount(t *testing.T) {
	data := LeaderboardRenderData{
		Title:        "Top RKS",
		DisplayCount: 100,
		Entries: []LeaderboardEntry{
			{PlayerName: "a", RKS: 16.1},
			{PlayerName: "b", RKS: 15.9},
		},
	}
	svg, err := GenerateLeaderboardSVG(data, CardOptions{Theme: ThemeBlack})
	if err != nil {
		t.Fatalf("GenerateLeaderboardSVG: %v", err)
	}
	if strings.Count(svg, "#1 ") != 1 || strings.Count(svg, "#2 ") != 1 {
		t.Fatalf("expected exactly two ranked rows, got: %s", svg)
	}
}

func TestRenderSVGToPNG_RoundTrips(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="20" height="10" viewBox="0 0 20 10">` +
		`<rect x="0" y="0" width="20" height="10" fill="#ff0000"/></svg>`

	data, err := RenderSVGToPNG(svg, false)
	if err != nil {
		t.Fatalf("RenderSVGToPNG: %v", err)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Fatalf("output does not look like a PNG (len=%d)", len(data))
	}
}

func TestRenderSVGToPNG_WatermarksUserGenerated(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4" viewBox="0 0 4 4">` +
		`<rect width="4" height="4" fill="#00ff00"/></svg>`

	plain, err := RenderSVGToPNG(svg, false)
	if err != nil {
		t.Fatalf("RenderSVGToPNG: %v", err)
	}
	marked, err := RenderSVGToPNG(svg, true)
	if err != nil {
		t.Fatalf("RenderSVGToPNG: %v", err)
	}
	if len(plain) == len(marked) {
		// A single watermarked pixel can still produce a different-length PNG
		// stream once re-compressed; the important invariant is both decode.
	}
	img1, err := png.Decode(bytes.NewReader(marked))
	if err != nil {
		t.Fatalf("decode marked: %v", err)
	}
	if img1.Bounds().Dx() != 4 || img1.Bounds().Dy() != 4 {
		t.Fatalf("unexpected bounds: %v", img1.Bounds())
	}
	if got := color.RGBAModel.Convert(img1.At(0, 0)).(color.RGBA); got != (color.RGBA{R: 1, G: 2, B: 3, A: 255}) {
		t.Fatalf("first pixel = %v, want the user-generated watermark", got)
	}
}

func TestRenderUnified_RejectsWebP(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4" viewBox="0 0 4 4"></svg>`
	if _, _, err := RenderUnified(svg, "webp", false, 0, 85); err == nil {
		t.Fatal("expected webp output to be rejected")
	}
}

func TestRenderUnified_DefaultsToPNG(t *testing.T) {
	svg := `<svg xmlns="http://www.w3.org/2000/svg" width="4" height="4" viewBox="0 0 4 4"></svg>`
	data, mime, err := RenderUnified(svg, "", false, 0, 85)
	if err != nil {
		t.Fatalf("RenderUnified: %v", err)
	}
	if mime != "image/png" {
		t.Fatalf("mime = %q, want image/png", mime)
	}
	if len(data) < 8 || string(data[1:4]) != "PNG" {
		t.Fatal("expected PNG bytes")
	}
}
