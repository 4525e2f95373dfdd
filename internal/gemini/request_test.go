package gemini

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pixelbot/pixelbot/internal/conversation"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func TestBuildRequestSingleTurn(t *testing.T) {
	img := pngBytes(t, 10, 10)

	req := BuildRequest("a red bicycle", img, nil, EditOptions())

	if len(req.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(req.Contents))
	}
	parts := req.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "a red bicycle" {
		t.Fatalf("unexpected parts: %+v", parts)
	}
	// Without history the current image is embedded unmodified as PNG.
	if parts[1].InlineData.MimeType != "image/png" {
		t.Errorf("expected image/png, got %s", parts[1].InlineData.MimeType)
	}
	decoded, err := base64.StdEncoding.DecodeString(parts[1].InlineData.Data)
	if err != nil || !bytes.Equal(decoded, img) {
		t.Error("single-turn image should be passed through unmodified")
	}
	if req.GenerationConfig == nil || req.GenerationConfig.ResponseModalities[1] != "Image" {
		t.Error("generation config must request text and image modalities")
	}
}

func TestBuildRequestMapsRolesAndAppendsCurrentTurn(t *testing.T) {
	history := []conversation.Message{
		{Role: "user", Parts: []conversation.Part{conversation.TextPart("draw a cat")}},
		{Role: "assistant", Parts: []conversation.Part{conversation.TextPart("done")}},
	}

	req := BuildRequest("make it blue", nil, history, GenerateOptions())

	if len(req.Contents) != 3 {
		t.Fatalf("expected history + current turn, got %d contents", len(req.Contents))
	}
	if req.Contents[0].Role != "user" || req.Contents[1].Role != "model" {
		t.Errorf("roles not mapped: %s, %s", req.Contents[0].Role, req.Contents[1].Role)
	}
	last := req.Contents[2]
	if last.Role != "user" || last.Parts[0].Text != "make it blue" {
		t.Errorf("current turn missing or wrong: %+v", last)
	}
}

func TestBuildRequestCompressesHistoryImages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.png")
	if err := os.WriteFile(path, pngBytes(t, 1200, 900), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	history := []conversation.Message{
		{Role: "model", Parts: []conversation.Part{conversation.ImageRefPart(path)}},
	}

	req := BuildRequest("again", nil, history, EditOptions())

	inline := req.Contents[0].Parts[0].InlineData
	if inline == nil || inline.MimeType != "image/jpeg" {
		t.Fatal("history image ref should be embedded as compressed jpeg")
	}
	data, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width > 800 || cfg.Height > 800 {
		t.Errorf("history image not bounded: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestBuildRequestSkipsUnreadableHistoryImage(t *testing.T) {
	history := []conversation.Message{
		{Role: "model", Parts: []conversation.Part{
			conversation.TextPart("here you go"),
			conversation.ImageRefPart("/nonexistent/gone.png"),
		}},
	}

	req := BuildRequest("again", nil, history, EditOptions())

	// The unreadable part is dropped; the text part and current turn stay.
	if len(req.Contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(req.Contents))
	}
	if len(req.Contents[0].Parts) != 1 || req.Contents[0].Parts[0].Text != "here you go" {
		t.Fatalf("text part lost: %+v", req.Contents[0].Parts)
	}
}

func TestBuildMergeRequestEmbedsBothImages(t *testing.T) {
	first := pngBytes(t, 20, 20)
	second := pngBytes(t, 30, 30)

	req := BuildMergeRequest("blend these", first, second, EditOptions())

	parts := req.Contents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("expected prompt + 2 images, got %d parts", len(parts))
	}
	if parts[0].Text != "blend these" {
		t.Errorf("prompt: %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[2].InlineData == nil {
		t.Fatal("both images must be inline")
	}
}

func TestEnforceSizeLimitDropsHistory(t *testing.T) {
	// History large enough to blow through the 4 MiB ceiling once base64
	// encoded.
	big := make([]byte, 2*1024*1024)
	history := []conversation.Message{
		{Role: "user", Parts: []conversation.Part{conversation.InlinePart("image/jpeg", big)}},
		{Role: "model", Parts: []conversation.Part{conversation.InlinePart("image/jpeg", big)}},
	}
	img := pngBytes(t, 10, 10)

	req := BuildRequest("shrink it", img, history, EditOptions())
	oversized, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(oversized) <= MaxRequestSize {
		t.Skipf("fixture not oversized: %d bytes", len(oversized))
	}

	payload, degraded, err := EnforceSizeLimit(req, "shrink it", img, EditOptions())
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if !degraded {
		t.Fatal("expected degradation")
	}
	if len(payload) >= len(oversized) {
		t.Fatal("degraded payload not smaller than original")
	}

	var rebuilt Request
	if err := json.Unmarshal(payload, &rebuilt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rebuilt.Contents) != 1 {
		t.Fatalf("expected only the current turn, got %d contents", len(rebuilt.Contents))
	}
	if rebuilt.Contents[0].Parts[0].Text != "shrink it" {
		t.Error("current prompt lost in degradation")
	}
}

func TestEnforceSizeLimitCompressesCurrentImage(t *testing.T) {
	big := make([]byte, 3*1024*1024)
	history := []conversation.Message{
		{Role: "user", Parts: []conversation.Part{conversation.InlinePart("image/jpeg", big)}},
	}
	img := pngBytes(t, 1200, 900)

	req := BuildRequest("once more", img, history, EditOptions())

	payload, degraded, err := EnforceSizeLimit(req, "once more", img, EditOptions())
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if !degraded {
		t.Fatal("expected degradation")
	}

	var rebuilt Request
	if err := json.Unmarshal(payload, &rebuilt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The rebuilt turn must not re-embed the raw PNG: the current image
	// goes through the same compression as the with-history path, or a
	// large original could keep the payload above the ceiling.
	inline := rebuilt.Contents[0].Parts[1].InlineData
	if inline == nil || inline.MimeType != "image/jpeg" {
		t.Fatalf("rebuilt current image should be compressed jpeg, got %+v", inline)
	}
	data, err := base64.StdEncoding.DecodeString(inline.Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Width > 800 || cfg.Height > 800 {
		t.Errorf("rebuilt current image not bounded: %dx%d", cfg.Width, cfg.Height)
	}
}

func TestEnforceSizeLimitKeepsSmallPayloads(t *testing.T) {
	req := BuildRequest("tiny", nil, nil, GenerateOptions())

	payload, degraded, err := EnforceSizeLimit(req, "tiny", nil, GenerateOptions())
	if err != nil {
		t.Fatalf("enforce: %v", err)
	}
	if degraded {
		t.Fatal("small payload degraded")
	}
	if !strings.Contains(string(payload), "tiny") {
		t.Fatal("payload missing prompt")
	}
}
