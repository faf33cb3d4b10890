// Package geometry holds the boundary math that keeps a scaled image
// covering the viewport.
//
// Three coordinate spaces are involved:
//
//   - screen space: pixels relative to the boundary's top-left corner
//   - scaled space: the image as displayed, natural size times scale
//   - natural space: unscaled pixels of the displayed raster
//
// A transform {x, y, scale, origin} places the image's natural rectangle at
// left = x + origin.x*(1-scale), top = y + origin.y*(1-scale) in screen space.
package geometry

import (
	"math"

	"github.com/menta2k/cropt/pkg/types"
)

// Rect is an axis aligned rectangle in screen space
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right edge
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom edge
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Contains reports whether o lies inside r, allowing eps of float error.
func (r Rect) Contains(o Rect, eps float64) bool {
	return o.Left >= r.Left-eps && o.Top >= r.Top-eps &&
		o.Right() <= r.Right()+eps && o.Bottom() <= r.Bottom()+eps
}

// Range is a pair of closed intervals, one per axis
type Range struct {
	MinX float64 `json:"minX"`
	MaxX float64 `json:"maxX"`
	MinY float64 `json:"minY"`
	MaxY float64 `json:"maxY"`
}

// Limits are the valid ranges for the pan offset and the transform origin
type Limits struct {
	Translate Range `json:"translate"`
	Origin    Range `json:"origin"`
}

// Boundaries computes the limits for the given viewport rectangle, displayed
// image rectangle, scale and boundary centre (half of the boundary box size).
// It never mutates state; callers clamp.
func Boundaries(viewport, image Rect, scale float64, center types.Point) Limits {
	halfWidth := viewport.Width / 2
	halfHeight := viewport.Height / 2

	maxX := -(halfWidth/scale - center.X)
	maxY := -(halfHeight/scale - center.Y)
	originMinX := halfWidth / scale
	originMinY := halfHeight / scale

	return Limits{
		Translate: Range{
			MaxX: maxX,
			MinX: maxX - (image.Width/scale - viewport.Width/scale),
			MaxY: maxY,
			MinY: maxY - (image.Height/scale - viewport.Height/scale),
		},
		Origin: Range{
			MinX: originMinX,
			MaxX: image.Width/scale - originMinX,
			MinY: originMinY,
			MaxY: image.Height/scale - originMinY,
		},
	}
}

// ImageRect places an image of the given natural size on screen under t
func ImageRect(t types.Transform, naturalWidth, naturalHeight float64) Rect {
	return Rect{
		Left:   t.X + t.Origin.X*(1-t.Scale),
		Top:    t.Y + t.Origin.Y*(1-t.Scale),
		Width:  naturalWidth * t.Scale,
		Height: naturalHeight * t.Scale,
	}
}

// CenteredRect centres a width x height rectangle inside a boundary of the given size
func CenteredRect(boundaryWidth, boundaryHeight, width, height float64) Rect {
	return Rect{
		Left:   (boundaryWidth - width) / 2,
		Top:    (boundaryHeight - height) / 2,
		Width:  width,
		Height: height,
	}
}

// ClampDelta limits a pan delta so that an edge gap never opens.
// inner is the largest allowed delta, outer the smallest.
func ClampDelta(inner, delta, outer float64) float64 {
	return math.Max(math.Min(inner, delta), outer)
}

// PanDelta clamps dx, dy so that image still covers viewport after the move
func PanDelta(viewport, image Rect, dx, dy float64) (float64, float64) {
	dx = ClampDelta(viewport.Left-image.Left, dx, viewport.Right()-image.Right())
	dy = ClampDelta(viewport.Top-image.Top, dy, viewport.Bottom()-image.Bottom())
	return dx, dy
}

// Recenter moves the transform origin to the viewport centre without moving
// the image on screen. naturalWidth and naturalHeight size the image.
func Recenter(t types.Transform, viewport Rect, naturalWidth, naturalHeight float64) types.Transform {
	img := ImageRect(t, naturalWidth, naturalHeight)
	center := types.Point{
		X: (viewport.Left - img.Left + viewport.Width/2) / t.Scale,
		Y: (viewport.Top - img.Top + viewport.Height/2) / t.Scale,
	}

	t.X -= (center.X - t.Origin.X) * (1 - t.Scale)
	t.Y -= (center.Y - t.Origin.Y) * (1 - t.Scale)
	t.Origin = center
	return t
}

// Snap applies the snap-and-recenter rule: when the pan offset crosses a
// translate limit the offset is pinned to it and the origin jumps to the
// matching origin limit, which keeps the image edge on the viewport edge.
func Snap(t types.Transform, l Limits) types.Transform {
	if t.X >= l.Translate.MaxX {
		t.Origin.X = l.Origin.MinX
		t.X = l.Translate.MaxX
	}
	if t.X <= l.Translate.MinX {
		t.Origin.X = l.Origin.MaxX
		t.X = l.Translate.MinX
	}
	if t.Y >= l.Translate.MaxY {
		t.Origin.Y = l.Origin.MinY
		t.Y = l.Translate.MaxY
	}
	if t.Y <= l.Translate.MinY {
		t.Origin.Y = l.Origin.MaxY
		t.Y = l.Translate.MinY
	}
	return t
}
