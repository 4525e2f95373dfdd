package gemini

import (
	"encoding/base64"
	"encoding/json"
	"os"

	"github.com/pixelbot/pixelbot/internal/conversation"
	"github.com/pixelbot/pixelbot/internal/imaging"
	"github.com/pixelbot/pixelbot/internal/logger"
)

// MaxRequestSize is the serialized payload ceiling. Oversized requests are
// rebuilt without history rather than rejected.
const MaxRequestSize = 4 * 1024 * 1024

// BuildOptions control how a multimodal request is assembled.
type BuildOptions struct {
	// Long-edge bound and JPEG quality for images embedded from history.
	HistoryMaxDim  int
	HistoryQuality int
	// Bound and quality for the current turn's image when history is
	// present. With no history the current image is sent as-is (PNG).
	CurrentMaxDim  int
	CurrentQuality int

	GenConfig *GenerationConfig
}

// GenerateOptions are the defaults for the generate flow.
func GenerateOptions() BuildOptions {
	return BuildOptions{
		HistoryMaxDim:  600,
		HistoryQuality: 80,
		CurrentMaxDim:  600,
		CurrentQuality: 80,
		GenConfig: &GenerationConfig{
			ResponseModalities: []string{"Text", "Image"},
			Temperature:        0.4,
			TopP:               0.8,
			TopK:               40,
		},
	}
}

// EditOptions are the defaults for edit, reference-edit, and merge flows.
func EditOptions() BuildOptions {
	return BuildOptions{
		HistoryMaxDim:  800,
		HistoryQuality: 85,
		CurrentMaxDim:  800,
		CurrentQuality: 85,
		GenConfig: &GenerationConfig{
			ResponseModalities: []string{"Text", "Image"},
		},
	}
}

// AnalyzeOptions are the defaults for analysis and reverse-prompt calls,
// which expect a text-only answer.
func AnalyzeOptions() BuildOptions {
	return BuildOptions{
		GenConfig: &GenerationConfig{
			Temperature:     0.4,
			TopP:            0.95,
			TopK:            64,
			MaxOutputTokens: 2048,
		},
	}
}

// BuildRequest assembles a provider request from the prompt, an optional
// current image, and prior history. History images referenced by path are
// read from disk and compressed; a part that cannot be read or compressed
// is skipped with a warning rather than failing the build.
func BuildRequest(prompt string, image []byte, history []conversation.Message, opts BuildOptions) *Request {
	req := &Request{GenerationConfig: opts.GenConfig}

	if len(history) == 0 {
		req.Contents = []Content{currentTurn(prompt, image, false, opts)}
		return req
	}

	for _, msg := range history {
		content := Content{Role: wireRole(msg.Role)}
		for _, part := range msg.Parts {
			wire, ok := convertPart(part, opts)
			if ok {
				content.Parts = append(content.Parts, wire)
			}
		}
		if len(content.Parts) > 0 {
			req.Contents = append(req.Contents, content)
		}
	}

	req.Contents = append(req.Contents, currentTurn(prompt, image, true, opts))
	return req
}

// BuildMergeRequest embeds both source images inline in a single user
// turn after the fusion prompt.
func BuildMergeRequest(prompt string, first, second []byte, opts BuildOptions) *Request {
	parts := []Part{{Text: prompt}}
	for _, img := range [][]byte{first, second} {
		parts = append(parts, inlineJPEG(img, opts.CurrentMaxDim, opts.CurrentQuality))
	}
	return &Request{
		Contents:         []Content{{Role: "user", Parts: parts}},
		GenerationConfig: opts.GenConfig,
	}
}

// BuildAnalyzeRequest is a single-turn question about one image.
func BuildAnalyzeRequest(question string, image []byte, opts BuildOptions) *Request {
	return &Request{
		Contents: []Content{{
			Role: "user",
			Parts: []Part{
				{Text: question},
				{InlineData: &InlineData{
					MimeType: "image/jpeg",
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
		GenerationConfig: opts.GenConfig,
	}
}

// EnforceSizeLimit serializes the request and, if it exceeds
// MaxRequestSize, rebuilds it once keeping only the current turn.
// Returns the serialized payload and whether degradation happened.
func EnforceSizeLimit(req *Request, prompt string, image []byte, opts BuildOptions) ([]byte, bool, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, false, err
	}
	if len(payload) <= MaxRequestSize {
		return payload, false, nil
	}

	logger.Warn("request exceeds size ceiling, dropping history",
		"bytes", len(payload), "ceiling", MaxRequestSize)

	// The rebuilt turn compresses the current image too: a large enough
	// original could blow the ceiling again on its own.
	fallback := &Request{
		Contents:         []Content{currentTurn(prompt, image, true, opts)},
		GenerationConfig: req.GenerationConfig,
	}
	payload, err = json.Marshal(fallback)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func currentTurn(prompt string, image []byte, compress bool, opts BuildOptions) Content {
	parts := []Part{{Text: prompt}}
	if image != nil {
		if compress {
			parts = append(parts, inlineJPEG(image, opts.CurrentMaxDim, opts.CurrentQuality))
		} else {
			parts = append(parts, Part{InlineData: &InlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(image),
			}})
		}
	}
	return Content{Role: "user", Parts: parts}
}

func convertPart(part conversation.Part, opts BuildOptions) (Part, bool) {
	switch {
	case part.Text != "":
		return Part{Text: part.Text}, true
	case part.Inline != nil:
		mime := part.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		return Part{InlineData: &InlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(part.Inline),
		}}, true
	case part.ImagePath != "":
		data, err := os.ReadFile(part.ImagePath)
		if err != nil {
			logger.Warn("history image unreadable, skipping part",
				"path", part.ImagePath, "error", err)
			return Part{}, false
		}
		return inlineJPEG(data, opts.HistoryMaxDim, opts.HistoryQuality), true
	default:
		return Part{}, false
	}
}

func inlineJPEG(data []byte, maxDim, quality int) Part {
	compressed, err := imaging.Compress(data, maxDim, quality)
	if err != nil {
		logger.Warn("image compression failed, embedding original", "error", err)
		compressed = data
	}
	return Part{InlineData: &InlineData{
		MimeType: "image/jpeg",
		Data:     base64.StdEncoding.EncodeToString(compressed),
	}}
}

func wireRole(role string) string {
	if role == "assistant" {
		return "model"
	}
	return role
}
