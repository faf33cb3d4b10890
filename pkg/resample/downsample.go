// Package resample scales crops down to their output size.
//
// A single large downscale with a small kernel skips most source pixels
// and aliases. Downsample instead halves the image until it is within 2x
// of the target and only then draws the exact target size.
package resample

import (
	"errors"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/menta2k/cropt/pkg/types"
)

// ErrEmptyTarget is returned when the requested output has no pixels
var ErrEmptyTarget = errors.New("target size must be positive")

// Options control the resampling kernels and the background
type Options struct {
	// Halving is used for every intermediate 2:1 step
	Halving draw.Interpolator
	// Final is used for the last draw at the exact target size
	Final draw.Interpolator
	// Background, when set, is painted under the result
	Background color.Color
}

// DefaultOptions halves bilinearly and finishes with Catmull-Rom
func DefaultOptions() Options {
	return Options{
		Halving: draw.BiLinear,
		Final:   draw.CatmullRom,
	}
}

// Downsample scales src to width x height. Sources more than twice the
// target are first halved repeatedly, never below the target.
func Downsample(src image.Image, width, height int, opts Options) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, ErrEmptyTarget
	}
	if opts.Halving == nil {
		opts.Halving = draw.BiLinear
	}
	if opts.Final == nil {
		opts.Final = draw.CatmullRom
	}

	cur := imaging.Clone(src)
	for _, step := range Steps(cur.Bounds().Dx(), cur.Bounds().Dy(), width, height) {
		buffer := image.NewNRGBA(image.Rect(0, 0, step.X, step.Y))
		opts.Halving.Scale(buffer, buffer.Bounds(), cur, cur.Bounds(), draw.Src, nil)
		cur = buffer
	}

	out := image.NewNRGBA(image.Rect(0, 0, width, height))
	if cur.Bounds().Dx() == width && cur.Bounds().Dy() == height {
		draw.Draw(out, out.Bounds(), cur, image.Point{}, draw.Src)
	} else {
		opts.Final.Scale(out, out.Bounds(), cur, cur.Bounds(), draw.Src, nil)
	}

	if opts.Background != nil {
		out = Flatten(out, opts.Background)
	}
	return out, nil
}

// Steps lists the intermediate sizes Downsample halves through for a
// source of srcWidth x srcHeight and the given target
func Steps(srcWidth, srcHeight, width, height int) []image.Point {
	var steps []image.Point
	cur := image.Pt(srcWidth, srcHeight)
	for cur.X > 2*width || cur.Y > 2*height {
		next := image.Pt(cur.X/2, cur.Y/2)
		if next.X < width || next.Y < height {
			break
		}
		steps = append(steps, next)
		cur = next
	}
	return steps
}

// Flatten paints img over a solid background so transparent regions take
// the background colour instead of encoding as black.
func Flatten(img image.Image, bg color.Color) *image.NRGBA {
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), bg)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// OutputSize returns the output dimensions for a crop of points shown in
// viewport. size 0 keeps the crop's native size; a positive size sets the
// longer side of the viewport aspect; a negative size does the same with
// -size but never enlarges beyond the native size.
func OutputSize(points types.CropPoints, vp types.Viewport, size int) (int, int) {
	width, height := points.Width, points.Height
	if size == 0 {
		return width, height
	}

	shrinkOnly := size < 0
	if shrinkOnly {
		size = -size
	}

	ratio := vp.Ratio()
	var w, h float64
	if ratio > 1 {
		w = float64(size)
		h = float64(size) / ratio
	} else {
		h = float64(size)
		w = float64(size) * ratio
	}

	if shrinkOnly && (w > float64(width) || h > float64(height)) {
		return width, height
	}

	return max(1, int(math.Round(w))), max(1, int(math.Round(h)))
}
