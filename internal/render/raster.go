// SPDX-License-Identifier: MIT

package render

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// userGeneratedWatermark is an imperceptible marker written into the first
// pixel of any render that came from a user-supplied save, so a leaked
// image can still be traced back to "generated from live user data"
// without visibly altering it.
var userGeneratedWatermark = [4]byte{0x01, 0x02, 0x03, 0xFF}

// rasterizeSVG parses svg and draws it into an RGBA canvas, optionally
// scaled so its width matches targetWidth (0 keeps the SVG's own size).
func rasterizeSVG(svg string, targetWidth int) (*image.RGBA, error) {
	icon, err := oksvg.ReadIconStream(strings.NewReader(svg), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("render: parse svg: %w", err)
	}

	srcW := icon.ViewBox.W
	srcH := icon.ViewBox.H
	dstW, dstH := srcW, srcH
	if targetWidth > 0 && srcW > 0 {
		scale := float64(targetWidth) / srcW
		dstW = srcW * scale
		dstH = srcH * scale
	}
	if dstW <= 0 || dstH <= 0 {
		return nil, fmt.Errorf("render: svg has no size")
	}

	w, h := int(dstW+0.5), int(dstH+0.5)
	icon.SetTarget(0, 0, dstW, dstH)

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	raster := rasterx.NewDasher(w, h, scanner)
	icon.Draw(raster, 1.0)
	return img, nil
}

func applyWatermark(img *image.RGBA, isUserGenerated bool) {
	if !isUserGenerated || len(img.Pix) < 4 {
		return
	}
	copy(img.Pix[0:4], userGeneratedWatermark[:])
}

// RenderSVGToPNG rasterizes svg at its native size and encodes it as PNG.
func RenderSVGToPNG(svg string, isUserGenerated bool) ([]byte, error) {
	return RenderSVGToPNGScaled(svg, isUserGenerated, 0)
}

// RenderSVGToPNGScaled rasterizes svg, downsampling to targetWidth (0 keeps
// native size), and encodes it as PNG.
func RenderSVGToPNGScaled(svg string, isUserGenerated bool, targetWidth int) ([]byte, error) {
	img, err := rasterizeSVG(svg, targetWidth)
	if err != nil {
		return nil, err
	}
	applyWatermark(img, isUserGenerated)

	var out bytes.Buffer
	out.Grow(img.Bounds().Dx() * img.Bounds().Dy() * 2)
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("render: encode png: %w", err)
	}
	return out.Bytes(), nil
}

// RenderSVGToJPEG rasterizes svg, downsampling to targetWidth (0 keeps
// native size), and encodes it as JPEG at the given quality (1-100).
func RenderSVGToJPEG(svg string, isUserGenerated bool, targetWidth, quality int) ([]byte, error) {
	img, err := rasterizeSVG(svg, targetWidth)
	if err != nil {
		return nil, err
	}
	applyWatermark(img, isUserGenerated)

	var out bytes.Buffer
	out.Grow(img.Bounds().Dx() * img.Bounds().Dy())
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("render: encode jpeg: %w", err)
	}
	return out.Bytes(), nil
}

// RenderUnified dispatches to the PNG or JPEG encoder by format name
// ("png" (default), "jpeg"/"jpg"), returning the bytes and their MIME type.
//
// "webp" is not implemented: the ecosystem libraries this repo otherwise
// draws from (golang.org/x/image, the standard library) only decode WebP,
// they don't encode it, so a faithful wire-up would require vendoring a
// dependency no example in this codebase's lineage uses. Callers asking
// for webp get no image bytes, only an error explaining why.
func RenderUnified(svg, format string, isUserGenerated bool, targetWidth, jpegQuality int) ([]byte, string, error) {
	switch strings.ToLower(format) {
	case "jpeg", "jpg":
		b, err := RenderSVGToJPEG(svg, isUserGenerated, targetWidth, jpegQuality)
		return b, "image/jpeg", err
	case "webp":
		return nil, "", fmt.Errorf("render: webp output is not supported (no WebP encoder in this module's dependency set)")
	default:
		b, err := RenderSVGToPNGScaled(svg, isUserGenerated, targetWidth)
		return b, "image/png", err
	}
}
