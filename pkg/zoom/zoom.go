package zoom

import (
	"math"

	"github.com/menta2k/cropt/pkg/geometry"
	"github.com/menta2k/cropt/pkg/layout"
	"github.com/menta2k/cropt/pkg/types"
)

// DefaultMaxZoom is the upper zoom limit unless the minimum reaches it
const DefaultMaxZoom = 0.85

// KeyStep is the zoom change for one shift+arrow key press
const KeyStep = 0.01

// wheelDivisor converts a wheel deltaY into a relative zoom change
const wheelDivisor = 2000

// Controller is the zoom source of truth: the current value and its limits
type Controller struct {
	min   float64
	max   float64
	value float64
}

// New creates a controller with limits [0, DefaultMaxZoom] and value 1
func New() *Controller {
	return &Controller{min: 0, max: DefaultMaxZoom, value: 1}
}

// Min returns the minimum zoom
func (c *Controller) Min() float64 { return c.min }

// Max returns the maximum zoom
func (c *Controller) Max() float64 { return c.max }

// Value returns the current zoom
func (c *Controller) Value() float64 { return c.value }

// Limits computes zoom limits for a viewport over an image of the given natural size.
// The minimum guarantees cover fit; the maximum is bumped when the minimum
// reaches DefaultMaxZoom so the range never collapses.
func Limits(viewportWidth, viewportHeight, naturalWidth, naturalHeight float64) (float64, float64) {
	min := math.Max(viewportWidth/naturalWidth, viewportHeight/naturalHeight)
	max := DefaultMaxZoom
	if min >= max {
		max += min
	}
	return min, max
}

// FitZoom is the zoom at which the image covers the whole boundary box
func FitZoom(boundaryWidth, boundaryHeight, naturalWidth, naturalHeight float64) float64 {
	return math.Max(boundaryWidth/naturalWidth, boundaryHeight/naturalHeight)
}

// UpdateLimits recomputes the limits for the viewport and image size
func (c *Controller) UpdateLimits(vp types.Viewport, naturalWidth, naturalHeight int) {
	c.min, c.max = Limits(float64(vp.Width), float64(vp.Height), float64(naturalWidth), float64(naturalHeight))
}

// Clamp limits v to [Min, Max]. NaN keeps the current value.
func (c *Controller) Clamp(v float64) float64 {
	if math.IsNaN(v) {
		v = c.value
	}
	return math.Max(c.min, math.Min(c.max, v))
}

// Set clamps v, stores it and returns the stored value
func (c *Controller) Set(v float64) float64 {
	c.value = c.Clamp(v)
	return c.value
}

// Apply sets the scale of t and snaps it back inside the boundary limits
// computed for lay at the new scale. lay supplies sizes; its transform is
// replaced.
func Apply(t types.Transform, scale float64, lay layout.Static) types.Transform {
	t.Scale = scale
	lay.Transform = t
	return geometry.Snap(t, layout.Limits(lay, scale))
}

// Wheel returns the zoom requested by a wheel event with the given deltaY
func Wheel(scale, deltaY float64) float64 {
	if deltaY == 0 {
		return scale
	}
	delta := -deltaY / wheelDivisor
	return scale + delta*scale
}

// Pinch tracks a two pointer gesture. The first distance fixes the base,
// later distances map to a zoom proportional to the spread.
type Pinch struct {
	base float64
}

// Move reports the zoom for the pointer distance dist, given the scale at
// the start of the gesture. ok is false for the first sample.
func (p *Pinch) Move(dist, scale float64) (zoom float64, ok bool) {
	if p.base == 0 {
		p.base = dist / scale
		return scale, false
	}
	return dist / p.base, true
}

// Active reports whether the gesture has started
func (p *Pinch) Active() bool { return p.base != 0 }

// End resets the gesture
func (p *Pinch) End() { p.base = 0 }
