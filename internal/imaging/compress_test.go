package imaging

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestCompressResizesToMaxSize(t *testing.T) {
	data := encodePNG(t, 2000, 1000)

	out, err := Compress(data, 800, 85)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != 800 || cfg.Height != 400 {
		t.Fatalf("expected 800x400, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCompressKeepsSmallImages(t *testing.T) {
	data := encodePNG(t, 300, 200)

	out, err := Compress(data, 800, 85)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width != 300 || cfg.Height != 200 {
		t.Fatalf("expected 300x200, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestCompressRejectsGarbage(t *testing.T) {
	garbage := []byte("not an image at all")

	out, err := Compress(garbage, 800, 85)
	if err == nil {
		t.Fatal("expected error for undecodable input")
	}
	// Original bytes come back so callers can decide what to do.
	if !bytes.Equal(out, garbage) {
		t.Fatal("expected original bytes on failure")
	}
}

func TestCompressEmptyInput(t *testing.T) {
	if _, err := Compress(nil, 800, 85); err == nil {
		t.Fatal("expected error for empty input")
	}
}
