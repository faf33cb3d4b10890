// Package focus finds the point of interest of an image so a cropper can
// centre its viewport on it.
package focus

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"
	"github.com/rs/zerolog"
)

// Center is a Finder that always picks the middle of the image
type Center struct{}

// Find returns the image centre
func (Center) Find(_ context.Context, img image.Image) (image.Point, error) {
	b := img.Bounds()
	return image.Pt(b.Dx()/2, b.Dy()/2), nil
}

// Saliency picks the centre of the best smartcrop crop with the given aspect
type Saliency struct {
	width  int
	height int
	filter imaging.ResampleFilter
}

// NewSaliency creates a saliency finder for crops shaped width x height
func NewSaliency(width, height int) *Saliency {
	return &Saliency{width: width, height: height, filter: imaging.Lanczos}
}

// Find runs the analysis on its own goroutine so ctx can abandon it
func (s *Saliency) Find(ctx context.Context, img image.Image) (image.Point, error) {
	if s.width <= 0 || s.height <= 0 {
		return image.Point{}, fmt.Errorf("invalid crop shape %dx%d", s.width, s.height)
	}

	analyzer := smartcrop.NewAnalyzer(&resizer{filter: s.filter})

	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)

	go func() {
		crop, err := analyzer.FindBestCrop(img, s.width, s.height)
		resultChan <- cropResult{crop: crop, err: err}
	}()

	select {
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return image.Point{}, fmt.Errorf("finding best crop: %w", result.err)
		}
		b := img.Bounds()
		c := result.crop
		pt := image.Pt((c.Min.X+c.Max.X)/2-b.Min.X, (c.Min.Y+c.Max.Y)/2-b.Min.Y)

		zerolog.Ctx(ctx).Debug().
			Str("crop", c.String()).
			Int("x", pt.X).
			Int("y", pt.Y).
			Msg("saliency focus")
		return pt, nil
	}
}

// resizer implements the smartcrop resizer with imaging
type resizer struct {
	filter imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.filter)
}
