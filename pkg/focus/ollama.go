package focus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/jmorganca/ollama/api"
	"github.com/rs/zerolog"
)

// DefaultPrompt asks a vision model for the main subject's bounding box
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "label": "string",
  "confidence": 0.0,
  "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
}

RULES
- All coordinates are normalized to [0,1] (NOT pixels).
- The box should tightly include the visually dominant subject (prefer people/vehicles/animals; else the most central salient object).
- If no subject is found return {"label":"none","confidence":0.0,"box":{"x":0.25,"y":0.25,"w":0.5,"h":0.5}}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// DefaultModel is the vision model used when none is configured
const DefaultModel = "llava:7b"

// maxUploadSide bounds the image sent to the model
const maxUploadSide = 1024

// Box is a normalized bounding box
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center maps the box centre onto a width x height image
func (b Box) Center(width, height int) image.Point {
	cx := b.X + b.W/2
	cy := b.Y + b.H/2
	return image.Pt(
		int(math.Round(cx*float64(width))),
		int(math.Round(cy*float64(height))),
	)
}

// Subject is the model's answer
type Subject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// fallbackSubject is used when the reply cannot be parsed
var fallbackSubject = Subject{Label: "none", Box: Box{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}}

// Ollama asks an Ollama vision model where the subject is
type Ollama struct {
	client  *api.Client
	model   string
	prompt  string
	timeout time.Duration
}

// NewOllama creates a finder talking to the Ollama server at rawURL.
// Any path on the URL is ignored.
func NewOllama(rawURL, model string) (*Ollama, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}
	if model == "" {
		model = DefaultModel
	}

	baseURL := &url.URL{Scheme: parsedURL.Scheme, Host: parsedURL.Host}
	return &Ollama{
		client:  api.NewClient(baseURL, http.DefaultClient),
		model:   model,
		prompt:  DefaultPrompt,
		timeout: 300 * time.Second,
	}, nil
}

// Find returns the centre of the subject box in img's pixel space
func (o *Ollama) Find(ctx context.Context, img image.Image) (image.Point, error) {
	subject, err := o.Locate(ctx, img)
	if err != nil {
		return image.Point{}, err
	}

	return subject.Box.Center(img.Bounds().Dx(), img.Bounds().Dy()), nil
}

// Locate sends img to the model and returns the normalized subject
func (o *Ollama) Locate(ctx context.Context, img image.Image) (Subject, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	upload, err := encodeUpload(img)
	if err != nil {
		return Subject{}, err
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: o.prompt,
				Images:  []api.ImageData{api.ImageData(upload)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		return Subject{}, fmt.Errorf("ollama chat error: %w", err)
	}
	if responseContent == "" {
		return Subject{}, fmt.Errorf("empty response from ollama")
	}

	subject := parseSubject(responseContent)
	subject.Box = normalizeBox(subject.Box)

	zerolog.Ctx(ctx).Debug().
		Str("model", o.model).
		Str("label", subject.Label).
		Float64("confidence", subject.Confidence).
		Msg("ollama focus")

	return subject, nil
}

// encodeUpload shrinks img to maxUploadSide and encodes it as JPEG
func encodeUpload(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	upload := imaging.Fit(img, maxUploadSide, maxUploadSide, imaging.Lanczos)
	if err := imaging.Encode(&buf, upload, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encoding upload: %w", err)
	}
	return buf.Bytes(), nil
}

// parseSubject decodes the model reply, falling back to a centred box
func parseSubject(raw string) Subject {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(raw, "{") {
		return fallbackSubject
	}

	var s Subject
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return fallbackSubject
	}
	if s.Box.W <= 0 || s.Box.H <= 0 {
		return fallbackSubject
	}
	return s
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)//.*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// sanitizeModelJSON strips code fences, comments and trailing commas and
// keeps the outermost object
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// normalizeBox clamps the box into the unit square
func normalizeBox(b Box) Box {
	b.X = clamp(b.X, 0, 1)
	b.Y = clamp(b.Y, 0, 1)
	b.W = clamp(b.W, 0, 1-b.X)
	b.H = clamp(b.H, 0, 1-b.Y)
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
