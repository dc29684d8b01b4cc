package gcp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/yungbote/imagerag/internal/observability"
	"github.com/yungbote/imagerag/internal/pkg/httpx"
	"github.com/yungbote/imagerag/internal/platform/ctxutil"
	"github.com/yungbote/imagerag/internal/platform/envutil"
	"github.com/yungbote/imagerag/internal/platform/logger"
)

// VisionCaptioner describes an image with Cloud Vision label, object, color and text
// annotations flattened into one searchable sentence.
type VisionCaptioner interface {
	Caption(ctx context.Context, img []byte) (string, error)
	Close() error
}

type VisionConfig struct {
	MaxLabels  int
	MinScore   float32
	Timeout    time.Duration
	MaxRetries int
}

func VisionConfigFromEnv() VisionConfig {
	return VisionConfig{
		MaxLabels:  envutil.Int("GCP_VISION_MAX_LABELS", 10),
		MinScore:   float32(envutil.Float("GCP_VISION_MIN_SCORE", 0.6)),
		Timeout:    envutil.Duration("GCP_VISION_TIMEOUT", 60*time.Second),
		MaxRetries: envutil.Int("GCP_VISION_MAX_RETRIES", 3),
	}
}

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

type visionCaptioner struct {
	log      *logger.Logger
	cfg      VisionConfig
	annotate annotateFunc
	closeFn  func() error
}

func NewVisionCaptioner(log *logger.Logger, cfg VisionConfig) (VisionCaptioner, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	annotate := func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return client.BatchAnnotateImages(ctx, req)
	}
	return newVisionCaptioner(log, cfg, annotate, client.Close), nil
}

func newVisionCaptioner(log *logger.Logger, cfg VisionConfig, annotate annotateFunc, closeFn func() error) *visionCaptioner {
	if cfg.MaxLabels <= 0 {
		cfg.MaxLabels = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &visionCaptioner{log: log.With("service", "gcp.VisionCaptioner"), cfg: cfg, annotate: annotate, closeFn: closeFn}
}

func (v *visionCaptioner) Close() error {
	if v == nil || v.closeFn == nil {
		return nil
	}
	return v.closeFn()
}

func (v *visionCaptioner) Caption(ctx context.Context, img []byte) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("vision caption: empty image")
	}
	ctx, cancel := context.WithTimeout(ctxutil.Default(ctx), v.cfg.Timeout)
	defer cancel()

	req := &visionpb.BatchAnnotateImagesRequest{Requests: []*visionpb.AnnotateImageRequest{{
		Image: &visionpb.Image{Content: img},
		Features: []*visionpb.Feature{
			{Type: visionpb.Feature_LABEL_DETECTION, MaxResults: int32(v.cfg.MaxLabels)},
			{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: int32(v.cfg.MaxLabels)},
			{Type: visionpb.Feature_IMAGE_PROPERTIES},
			{Type: visionpb.Feature_TEXT_DETECTION},
		},
	}}}

	start := time.Now()
	resp, err := v.annotateWithRetry(ctx, req)
	if metrics := observability.Current(); metrics != nil {
		metrics.ObserveLLMRequest("gcp_vision", "image_annotator", "caption", status.Code(err).String(), time.Since(start))
	}
	if err != nil {
		return "", fmt.Errorf("vision BatchAnnotateImages (%s): %w", status.Code(err), err)
	}
	if resp == nil || len(resp.GetResponses()) == 0 {
		return "", fmt.Errorf("vision annotate: empty response")
	}
	r0 := resp.GetResponses()[0]
	if msg := r0.GetError().GetMessage(); msg != "" {
		return "", fmt.Errorf("vision annotate error (code=%d): %s", r0.GetError().GetCode(), msg)
	}
	caption := ComposeCaption(r0, v.cfg.MinScore, v.cfg.MaxLabels)
	if caption == "" {
		return "", fmt.Errorf("vision annotate: no annotations above score %.2f", v.cfg.MinScore)
	}
	return caption, nil
}

func (v *visionCaptioner) annotateWithRetry(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
	backoff := 500 * time.Millisecond
	var last error
	for attempt := 0; attempt <= v.cfg.MaxRetries; attempt++ {
		resp, err := v.annotate(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if !isTransientGRPC(err) || attempt == v.cfg.MaxRetries {
			break
		}
		v.log.Warn("vision annotate retrying", "attempt", attempt+1, "code", status.Code(err).String())
		timer := time.NewTimer(httpx.JitterSleep(backoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.Join(last, ctx.Err())
		case <-timer.C:
		}
		backoff = min(backoff*2, 10*time.Second)
	}
	return nil, last
}

func isTransientGRPC(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// ComposeCaption turns one annotate response into a sentence like
// "Objects: dog (2), frisbee. Scene: grass, park. Dominant colors: green, brown. Visible text: "SALE"".
// Parts with nothing above minScore are omitted; an empty string means nothing usable was found.
func ComposeCaption(r *visionpb.AnnotateImageResponse, minScore float32, maxLabels int) string {
	if r == nil {
		return ""
	}
	var parts []string
	seen := map[string]bool{}

	counts := map[string]int{}
	for _, obj := range r.GetLocalizedObjectAnnotations() {
		name := strings.ToLower(strings.TrimSpace(obj.GetName()))
		if name == "" || obj.GetScore() < minScore {
			continue
		}
		counts[name]++
	}
	if len(counts) > 0 {
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if counts[names[i]] != counts[names[j]] {
				return counts[names[i]] > counts[names[j]]
			}
			return names[i] < names[j]
		})
		items := make([]string, 0, len(names))
		for _, name := range names {
			seen[name] = true
			if counts[name] > 1 {
				items = append(items, fmt.Sprintf("%s (%d)", name, counts[name]))
			} else {
				items = append(items, name)
			}
		}
		parts = append(parts, "Objects: "+strings.Join(items, ", "))
	}

	var labels []string
	for _, l := range r.GetLabelAnnotations() {
		name := strings.ToLower(strings.TrimSpace(l.GetDescription()))
		if name == "" || l.GetScore() < minScore || seen[name] {
			continue
		}
		seen[name] = true
		labels = append(labels, name)
		if maxLabels > 0 && len(labels) >= maxLabels {
			break
		}
	}
	if len(labels) > 0 {
		parts = append(parts, "Scene: "+strings.Join(labels, ", "))
	}

	if colors := dominantColorNames(r.GetImagePropertiesAnnotation(), 3); len(colors) > 0 {
		parts = append(parts, "Dominant colors: "+strings.Join(colors, ", "))
	}

	if texts := r.GetTextAnnotations(); len(texts) > 0 {
		text := strings.Join(strings.Fields(texts[0].GetDescription()), " ")
		if len(text) > 120 {
			text = strings.TrimSpace(text[:120]) + "..."
		}
		if text != "" {
			parts = append(parts, fmt.Sprintf("Visible text: %q", text))
		}
	}
	return strings.Join(parts, ". ")
}

func dominantColorNames(props *visionpb.ImageProperties, limit int) []string {
	infos := append([]*visionpb.ColorInfo(nil), props.GetDominantColors().GetColors()...)
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].GetPixelFraction() > infos[j].GetPixelFraction() })
	var out []string
	seen := map[string]bool{}
	for _, info := range infos {
		c := info.GetColor()
		if c == nil {
			continue
		}
		name := nearestColorName(c.GetRed(), c.GetGreen(), c.GetBlue())
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) >= limit {
			break
		}
	}
	return out
}

type namedColor struct {
	name    string
	r, g, b float32
}

var palette = []namedColor{
	{"black", 0, 0, 0},
	{"white", 255, 255, 255},
	{"gray", 128, 128, 128},
	{"red", 200, 30, 30},
	{"orange", 240, 140, 20},
	{"yellow", 240, 220, 40},
	{"green", 40, 150, 50},
	{"blue", 30, 80, 200},
	{"sky blue", 135, 200, 235},
	{"purple", 120, 50, 160},
	{"pink", 240, 150, 180},
	{"brown", 120, 75, 35},
	{"beige", 225, 205, 170},
}

func nearestColorName(r, g, b float32) string {
	best, bestDist := "", float32(-1)
	for _, c := range palette {
		dr, dg, db := r-c.r, g-c.g, b-c.b
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best, bestDist = c.name, d
		}
	}
	return best
}
