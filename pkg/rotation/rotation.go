package rotation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidAngle is returned for angles that are not a multiple of 90
	ErrInvalidAngle = errors.New("rotation must be a multiple of 90 degrees")
	// ErrReleased is returned when a raster is released twice
	ErrReleased = errors.New("raster already released")
	// ErrEmptyRaster is returned when a rotation produced no pixels
	ErrEmptyRaster = errors.New("rotated raster is empty")
)

// Normalize maps any multiple of 90 into {0, 90, 180, 270}
func Normalize(degrees int) (int, error) {
	n := ((degrees % 360) + 360) % 360
	if n%90 != 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAngle, degrees)
	}
	return n, nil
}

// SwapsAxes reports whether rotating by delta degrees swaps width and height
func SwapsAxes(delta int) bool {
	if delta < 0 {
		delta = -delta
	}
	return delta%180 == 90
}

// Raster is a temporary image resource that must be released exactly once
type Raster struct {
	img       image.Image
	onRelease func()
	released  atomic.Bool
}

// NewRaster wraps img. onRelease, if set, runs on the first Release.
func NewRaster(img image.Image, onRelease func()) *Raster {
	return &Raster{img: img, onRelease: onRelease}
}

// Image returns the wrapped image
func (r *Raster) Image() image.Image {
	return r.img
}

// Size returns the raster's width and height
func (r *Raster) Size() (int, int) {
	b := r.img.Bounds()
	return b.Dx(), b.Dy()
}

// Released reports whether Release was called
func (r *Raster) Released() bool {
	return r.released.Load()
}

// Release frees the raster. A second call returns ErrReleased and does nothing.
func (r *Raster) Release() error {
	if !r.released.CompareAndSwap(false, true) {
		return ErrReleased
	}
	if r.onRelease != nil {
		r.onRelease()
	}
	r.img = nil
	return nil
}

// Engine rotates rasters by multiples of 90 degrees and owns the current
// intermediate raster.
type Engine struct {
	mu      sync.Mutex
	current *Raster
}

// NewEngine creates an engine with no raster
func NewEngine() *Engine {
	return &Engine{}
}

// Current returns the raster most recently handed to Replace
func (e *Engine) Current() *Raster {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Replace releases the current raster, if any, and makes next current
func (e *Engine) Replace(next *Raster) error {
	e.mu.Lock()
	prev := e.current
	e.current = next
	e.mu.Unlock()

	if prev != nil && prev != next {
		return prev.Release()
	}
	return nil
}

// Close releases the current raster
func (e *Engine) Close() error {
	return e.Replace(nil)
}

// Rotate returns img turned clockwise by delta degrees. delta must be a
// multiple of 90 and may be negative. The work runs on its own goroutine so
// a cancelled context returns immediately.
func (e *Engine) Rotate(ctx context.Context, img image.Image, delta int) (image.Image, error) {
	turn, err := Normalize(delta)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if turn == 0 {
		return imaging.Clone(img), nil
	}

	zerolog.Ctx(ctx).Debug().Int("delta", delta).Msg("rotating raster")

	resultChan := make(chan *image.NRGBA, 1)
	go func() {
		resultChan <- rotateClockwise(img, turn)
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-resultChan:
		if out == nil || out.Bounds().Empty() {
			return nil, ErrEmptyRaster
		}
		return out, nil
	}
}

// rotateClockwise turns img by a normalized clockwise angle.
// imaging rotates counter-clockwise, hence the swapped calls.
func rotateClockwise(img image.Image, turn int) *image.NRGBA {
	switch turn {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}
