package adapters

import (
	"context"
	"strings"

	types "github.com/yungbote/imagerag/internal/domain"
	"github.com/yungbote/imagerag/internal/platform/gcp"
	"github.com/yungbote/imagerag/internal/platform/imaging"
	"github.com/yungbote/imagerag/internal/platform/openai"
)

const CaptionPrompt = "Provide a concise but detailed caption for this image for a search database. Describe objects, colors, and context."

// maxCaptionChars keeps captions useful as index text.
const maxCaptionChars = 1500

// VisionLLMCaptioner captions through an OpenAI-compatible multimodal chat model.
type VisionLLMCaptioner struct {
	client  openai.Client
	maxSide int
}

func NewVisionLLMCaptioner(client openai.Client, maxSide int) *VisionLLMCaptioner {
	return &VisionLLMCaptioner{client: client, maxSide: maxSide}
}

func (c *VisionLLMCaptioner) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !imaging.Supported(mimeType) {
		return "", types.CaptionError("caption", nil, "unsupported image type %q", mimeType)
	}
	img, mime, err := imaging.Downscale(data, mimeType, c.maxSide)
	if err != nil {
		return "", types.CaptionError("caption", err, "prepare image")
	}
	text, err := c.client.GenerateTextWithImages(ctx, "", CaptionPrompt, []openai.ImageInput{{
		ImageURL: imaging.DataURL(mime, img),
		Detail:   "auto",
	}})
	if err != nil {
		return "", types.CaptionError("caption", err, "vision model call failed")
	}
	return finishCaption(text)
}

// GCPVisionCaptioner composes captions from Cloud Vision annotations.
type GCPVisionCaptioner struct {
	vision gcp.VisionCaptioner
}

func NewGCPVisionCaptioner(v gcp.VisionCaptioner) *GCPVisionCaptioner {
	return &GCPVisionCaptioner{vision: v}
}

func (c *GCPVisionCaptioner) Caption(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !imaging.Supported(mimeType) {
		return "", types.CaptionError("caption", nil, "unsupported image type %q", mimeType)
	}
	text, err := c.vision.Caption(ctx, data)
	if err != nil {
		return "", types.CaptionError("caption", err, "cloud vision annotate failed")
	}
	return finishCaption(text)
}

func finishCaption(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", types.CaptionError("caption", nil, "empty caption")
	}
	if len(text) <= maxCaptionChars {
		return text, nil
	}
	cut := text[:maxCaptionChars]
	if i := strings.LastIndexAny(cut, ".!?"); i > maxCaptionChars/2 {
		return cut[:i+1], nil
	}
	return strings.TrimSpace(strings.ToValidUTF8(cut, "")), nil
}
