// Package imaging downscales and re-encodes images so multimodal request
// payloads stay within the provider's size ceiling.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Compress bounds the image's long edge to maxSize pixels and re-encodes
// as JPEG at the given quality. Transparency is flattened onto white.
// On any decode or encode failure the original bytes are returned along
// with the error so callers can choose to skip or keep the part.
func Compress(data []byte, maxSize, quality int) ([]byte, error) {
	if len(data) == 0 {
		return data, fmt.Errorf("empty image")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, fmt.Errorf("decode image: %w", err)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return data, fmt.Errorf("invalid image bounds: %dx%d", w, h)
	}

	longEdge := w
	if h > longEdge {
		longEdge = h
	}
	if maxSize > 0 && longEdge > maxSize {
		scale := float64(maxSize) / float64(longEdge)
		nw := int(math.Round(float64(w) * scale))
		nh := int(math.Round(float64(h) * scale))
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
		img = dst
	}

	// JPEG has no alpha channel; composite onto white.
	flattened := image.NewRGBA(img.Bounds())
	draw.Draw(flattened, flattened.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(flattened, flattened.Bounds(), img, img.Bounds().Min, draw.Over)

	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flattened, &jpeg.Options{Quality: quality}); err != nil {
		return data, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
