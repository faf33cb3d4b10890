package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

// Output mime types
const (
	MimePNG  = "image/png"
	MimeJPEG = "image/jpeg"
	MimeWebP = "image/webp"
)

// ErrEmptyEncoding is returned when an encoder produced no bytes
var ErrEmptyEncoding = errors.New("encoding produced no data")

// Blob is an encoded image
type Blob struct {
	Data []byte
	Type string
}

// Len returns the size of the encoded data
func (b Blob) Len() int {
	return len(b.Data)
}

type encodeFunc func(buf *bytes.Buffer, img image.Image, quality float64) error

var encoders = map[string]encodeFunc{
	MimePNG: func(buf *bytes.Buffer, img image.Image, _ float64) error {
		return imaging.Encode(buf, img, imaging.PNG)
	},
	MimeJPEG: func(buf *bytes.Buffer, img image.Image, quality float64) error {
		return imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(quality)))
	},
	MimeWebP: func(buf *bytes.Buffer, img image.Image, quality float64) error {
		opts := &webp.Options{Lossless: quality >= 1, Quality: float32(quality * 100)}
		return webp.Encode(buf, img, opts)
	},
}

// Supported reports whether mime can be encoded without falling back
func Supported(mime string) bool {
	_, ok := encoders[normalizeMime(mime)]
	return ok
}

// HasAlpha reports whether the output format keeps transparency.
// Unknown types fall back to jpeg and therefore have none.
func HasAlpha(mime string) bool {
	switch normalizeMime(mime) {
	case MimePNG, MimeWebP:
		return true
	default:
		return false
	}
}

// Resolve returns the mime type Encode will actually produce for mime
func Resolve(mime string) string {
	mime = normalizeMime(mime)
	if _, ok := encoders[mime]; ok {
		return mime
	}
	return MimeJPEG
}

// Encode encodes img as mime with quality in [0, 1]. An unsupported type
// falls back to jpeg; the returned blob carries the type actually used.
func Encode(ctx context.Context, img image.Image, mime string, quality float64) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}

	resolved := Resolve(mime)
	if resolved != normalizeMime(mime) {
		zerolog.Ctx(ctx).Debug().Str("requested", mime).Str("used", resolved).Msg("output type not supported, falling back")
	}

	var buf bytes.Buffer
	if err := encoders[resolved](&buf, img, quality); err != nil {
		return Blob{}, fmt.Errorf("encoding %s: %w", resolved, err)
	}
	if buf.Len() == 0 {
		return Blob{}, ErrEmptyEncoding
	}

	return Blob{Data: buf.Bytes(), Type: resolved}, nil
}

// SaveImage encodes img and writes it to path
func SaveImage(ctx context.Context, img image.Image, path, mime string, quality float64) error {
	blob, err := Encode(ctx, img, mime, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(path, blob.Data, 0o644)
}

// MimeFromFormat maps a short format name such as "jpg" to a mime type
func MimeFromFormat(format string) string {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "png":
		return MimePNG
	case "webp":
		return MimeWebP
	case "jpg", "jpeg":
		return MimeJPEG
	default:
		return format
	}
}

// Extension returns the file extension for a resolved mime type
func Extension(mime string) string {
	switch Resolve(mime) {
	case MimePNG:
		return "png"
	case MimeWebP:
		return "webp"
	default:
		return "jpg"
	}
}

func normalizeMime(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "image/jpg" {
		return MimeJPEG
	}
	return mime
}

func jpegQuality(quality float64) int {
	q := int(math.Round(quality * 100))
	return max(1, min(100, q))
}
