package crop

import (
	"image"
	"math"

	"github.com/menta2k/cropt/pkg/layout"
	"github.com/menta2k/cropt/pkg/types"
)

// Points converts the viewport position over the image into natural pixel
// coordinates of the displayed raster. Every coordinate is divided by
// scale, rounded and clamped to >= 0; the result is clipped to the raster
// and always at least one pixel wide and tall.
func Points(p layout.Provider, scale float64, naturalWidth, naturalHeight int) types.CropPoints {
	img := p.Image()
	vp := p.Viewport()

	left := vp.Left - img.Left
	top := vp.Top - img.Top

	pts := types.CropPoints{
		Left:   point(left, scale),
		Top:    point(top, scale),
		Right:  point(left+vp.Width, scale),
		Bottom: point(top+vp.Height, scale),
	}

	pts.Left = clampInt(pts.Left, 0, naturalWidth-1)
	pts.Top = clampInt(pts.Top, 0, naturalHeight-1)
	pts.Right = clampInt(pts.Right, pts.Left+1, naturalWidth)
	pts.Bottom = clampInt(pts.Bottom, pts.Top+1, naturalHeight)
	pts.Width = pts.Right - pts.Left
	pts.Height = pts.Bottom - pts.Top

	return pts
}

// Rect returns the points as an image rectangle
func Rect(p types.CropPoints) image.Rectangle {
	return image.Rect(p.Left, p.Top, p.Right, p.Bottom)
}

// FromPoints maps points of a raster displayed with the given clockwise
// rotation back into the unrotated image. width and height are the natural
// size of the displayed (already rotated) raster.
func FromPoints(p types.CropPoints, rotation, width, height int) types.Crop {
	var c types.Crop

	switch rotation {
	case 90:
		c.Width = p.Height
		c.Height = p.Width
		c.X = p.Top
		c.Y = width - p.Left - p.Width
	case 270:
		c.Width = p.Height
		c.Height = p.Width
		c.X = height - p.Top - p.Height
		c.Y = p.Left
	case 180:
		c.Width = p.Width
		c.Height = p.Height
		c.X = width - p.Left - p.Width
		c.Y = height - p.Top - p.Height
	default:
		c.Width = p.Width
		c.Height = p.Height
		c.X = p.Left
		c.Y = p.Top
	}

	// absorb rounding error from the boundary math
	c.X = max(c.X, 0)
	c.Y = max(c.Y, 0)
	return c
}

// ToPoints is the inverse of FromPoints: it maps a crop of the unrotated
// image into the displayed raster rotated clockwise by rotation. width and
// height are the natural size of the displayed raster.
func ToPoints(c types.Crop, rotation, width, height int) types.CropPoints {
	var p types.CropPoints

	switch rotation {
	case 90:
		p.Width = c.Height
		p.Height = c.Width
		p.Top = c.X
		p.Left = width - c.Y - p.Width
	case 270:
		p.Width = c.Height
		p.Height = c.Width
		p.Left = c.Y
		p.Top = height - c.X - p.Height
	case 180:
		p.Width = c.Width
		p.Height = c.Height
		p.Left = width - c.X - c.Width
		p.Top = height - c.Y - c.Height
	default:
		p.Width = c.Width
		p.Height = c.Height
		p.Left = c.X
		p.Top = c.Y
	}

	p.Right = p.Left + p.Width
	p.Bottom = p.Top + p.Height
	return p
}

func point(pos, scale float64) int {
	return int(math.Round(math.Max(0, pos/scale)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
