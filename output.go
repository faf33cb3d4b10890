package cropt

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cropt/pkg/crop"
	"github.com/menta2k/cropt/pkg/processing"
	"github.com/menta2k/cropt/pkg/resample"
)

// Defaults for ToBlob
const (
	DefaultMime    = processing.MimeWebP
	DefaultQuality = 1.0
)

// ToImage renders the current crop. size 0 keeps the crop's native size,
// a positive size sets the longer side of the viewport aspect, and a
// negative size does the same but never enlarges. mimeHint names the
// format the caller will encode to: formats without alpha get the
// transparency colour painted under the crop.
func (c *Cropper) ToImage(ctx context.Context, size int, mimeHint string) (*image.NRGBA, error) {
	c.mu.Lock()
	if err := c.checkBound(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	pts := c.points()
	vp := c.opts.Viewport
	bg := c.bg
	src := c.engine.Current().Image()
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	width, height := resample.OutputSize(pts, vp, size)
	if width <= 0 || height <= 0 {
		return nil, ErrSurfaceUnavailable
	}

	region := imaging.Crop(src, crop.Rect(pts))
	if region.Bounds().Empty() {
		return nil, ErrSurfaceUnavailable
	}

	opts := resample.DefaultOptions()
	if mimeHint != "" && !processing.HasAlpha(mimeHint) {
		opts.Background = bg
	}

	out, err := resample.Downsample(region, width, height, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSurfaceUnavailable, err)
	}

	c.log.Debug().
		Int("crop_width", pts.Width).
		Int("crop_height", pts.Height).
		Int("width", width).
		Int("height", height).
		Msg("rendered crop")

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ToBlob renders the crop and encodes it. An empty mime means webp and a
// quality of 0 means 1. Unsupported types fall back to jpeg; the blob
// carries the type actually produced.
func (c *Cropper) ToBlob(ctx context.Context, size int, mime string, quality float64) (processing.Blob, error) {
	if mime == "" {
		mime = DefaultMime
	}
	if quality <= 0 {
		quality = DefaultQuality
	}
	resolved := processing.Resolve(mime)

	img, err := c.ToImage(ctx, size, resolved)
	if err != nil {
		return processing.Blob{}, err
	}

	return processing.Encode(c.log.WithContext(ctx), img, mime, quality)
}
