package layout

import (
	"errors"
	"sync"

	"github.com/menta2k/cropt/pkg/geometry"
	"github.com/menta2k/cropt/pkg/types"
)

// ErrContainerBound is returned when a container already hosts a cropper
var ErrContainerBound = errors.New("container is already bound to a cropper")

// Provider returns the rectangles the geometry is computed from.
// All rectangles share the boundary's coordinate frame.
type Provider interface {
	Boundary() geometry.Rect
	Viewport() geometry.Rect
	Image() geometry.Rect
}

// Container is the host area a cropper draws into. Its size is the
// boundary box that pan limits are measured against.
type Container struct {
	Width  int
	Height int

	mu    sync.Mutex
	bound bool
}

// NewContainer creates a container with the given boundary size
func NewContainer(width, height int) *Container {
	return &Container{Width: width, Height: height}
}

// Claim marks the container as used. It fails if it is already claimed.
func (c *Container) Claim() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bound {
		return ErrContainerBound
	}
	c.bound = true
	return nil
}

// Release frees the container for a new cropper
func (c *Container) Release() {
	c.mu.Lock()
	c.bound = false
	c.mu.Unlock()
}

// Bound reports whether a cropper currently owns the container
func (c *Container) Bound() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bound
}

// Center returns half the boundary size
func (c *Container) Center() types.Point {
	return types.Point{X: float64(c.Width) / 2, Y: float64(c.Height) / 2}
}

// Static is a Provider computed purely from sizes and a transform:
// the viewport is centred in the boundary and the image is placed by the
// transform.
type Static struct {
	BoundaryWidth  float64
	BoundaryHeight float64
	ViewportSize   types.Viewport
	Transform      types.Transform
	NaturalWidth   float64
	NaturalHeight  float64
}

// NewStatic builds a Static layout for a container, viewport, transform and
// displayed raster size.
func NewStatic(c *Container, vp types.Viewport, t types.Transform, naturalWidth, naturalHeight int) Static {
	return Static{
		BoundaryWidth:  float64(c.Width),
		BoundaryHeight: float64(c.Height),
		ViewportSize:   vp,
		Transform:      t,
		NaturalWidth:   float64(naturalWidth),
		NaturalHeight:  float64(naturalHeight),
	}
}

// Boundary implements Provider
func (s Static) Boundary() geometry.Rect {
	return geometry.Rect{Width: s.BoundaryWidth, Height: s.BoundaryHeight}
}

// Viewport implements Provider
func (s Static) Viewport() geometry.Rect {
	return geometry.CenteredRect(s.BoundaryWidth, s.BoundaryHeight,
		float64(s.ViewportSize.Width), float64(s.ViewportSize.Height))
}

// Image implements Provider
func (s Static) Image() geometry.Rect {
	return geometry.ImageRect(s.Transform, s.NaturalWidth, s.NaturalHeight)
}

// Center returns half the boundary size
func (s Static) Center() types.Point {
	return types.Point{X: s.BoundaryWidth / 2, Y: s.BoundaryHeight / 2}
}

// Limits computes the boundary limits for the layout's current transform
func Limits(p Provider, scale float64) geometry.Limits {
	b := p.Boundary()
	center := types.Point{X: b.Width / 2, Y: b.Height / 2}
	return geometry.Boundaries(p.Viewport(), p.Image(), scale, center)
}
