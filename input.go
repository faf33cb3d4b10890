package cropt

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/cropt/pkg/geometry"
	"github.com/menta2k/cropt/pkg/zoom"
)

// Keys understood by Key
const (
	KeyLeft  = "ArrowLeft"
	KeyUp    = "ArrowUp"
	KeyRight = "ArrowRight"
	KeyDown  = "ArrowDown"
)

// keyPan is the pan distance of one arrow key press in screen pixels
const keyPan = 2

// Finder locates the point of interest in an image. The point is relative
// to img.Bounds().Min, so (0, 0) is always the top left pixel.
type Finder interface {
	Find(ctx context.Context, img image.Image) (image.Point, error)
}

// Pan moves the image by dx, dy screen pixels. The deltas are clamped so
// the image keeps covering the viewport, and the zoom origin follows the
// viewport centre.
func (c *Cropper) Pan(dx, dy float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	c.pan(dx, dy)
	return nil
}

func (c *Cropper) pan(dx, dy float64) {
	lay := c.layout()
	vp := lay.Viewport()
	dx, dy = geometry.PanDelta(vp, lay.Image(), dx, dy)

	t := c.transform
	t.X += dx
	t.Y += dy
	c.transform = geometry.Recenter(t, vp, lay.NaturalWidth, lay.NaturalHeight)
	c.refresher.Trigger()
}

// Wheel handles a wheel event. It reports whether the event zoomed; with
// the "ctrl" wheel mode only events with ctrl held do.
func (c *Cropper) Wheel(deltaY float64, ctrl bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return false, err
	}

	switch c.opts.MouseWheelZoom {
	case WheelOff:
		return false, nil
	case WheelCtrl:
		if !ctrl {
			return false, nil
		}
	}

	c.setZoom(zoom.Wheel(c.zoom.Value(), deltaY))
	return true, nil
}

// Key handles a key press. Arrow keys pan by two pixels, shift with up or
// down zooms by zoom.KeyStep. It reports whether the key was consumed.
func (c *Cropper) Key(key string, shift bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return false, err
	}
	if !c.opts.EnableKeypress {
		return false, nil
	}

	if shift {
		switch key {
		case KeyUp:
			c.setZoom(c.zoom.Value() + zoom.KeyStep)
			return true, nil
		case KeyDown:
			c.setZoom(c.zoom.Value() - zoom.KeyStep)
			return true, nil
		}
	}

	switch key {
	case KeyLeft:
		c.pan(keyPan, 0)
	case KeyUp:
		c.pan(0, keyPan)
	case KeyRight:
		c.pan(-keyPan, 0)
	case KeyDown:
		c.pan(0, -keyPan)
	default:
		return false, nil
	}
	return true, nil
}

// Pinch feeds the distance between two touch points. The first call of a
// gesture only records it.
func (c *Cropper) Pinch(dist float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	if dist <= 0 {
		return nil
	}

	if z, ok := c.pinch.Move(dist, c.zoom.Value()); ok {
		c.setZoom(z)
	}
	return nil
}

// PinchEnd finishes a pinch gesture
func (c *Cropper) PinchEnd() {
	c.mu.Lock()
	c.pinch.End()
	c.mu.Unlock()
}

// ResizeViewport changes the viewport size the way the resize bars do.
// The size is clamped to the boundary and the zoom re-clamped to the new
// limits.
func (c *Cropper) ResizeViewport(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	if !c.opts.ResizeBars {
		return ErrDisabled
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport size %dx%d", width, height)
	}

	c.opts.Viewport.Width = min(width, c.container.Width)
	c.opts.Viewport.Height = min(height, c.container.Height)

	w, h := c.naturalSize()
	c.zoom.UpdateLimits(c.opts.Viewport, w, h)
	c.setZoom(c.zoom.Value())
	return nil
}

// CenterOn pans so that the natural pixel x, y of the displayed raster sits
// on the viewport centre, as far as the pan limits allow.
func (c *Cropper) CenterOn(x, y float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	c.centerOn(x, y)
	return nil
}

func (c *Cropper) centerOn(x, y float64) {
	lay := c.layout()
	vp := lay.Viewport()
	img := lay.Image()
	s := c.transform.Scale

	dx := vp.Left + vp.Width/2 - (img.Left + x*s)
	dy := vp.Top + vp.Height/2 - (img.Top + y*s)
	c.pan(dx, dy)
}

// Focus asks finder for the point of interest of the displayed raster and
// centres the viewport on it.
func (c *Cropper) Focus(ctx context.Context, finder Finder) error {
	c.mu.Lock()
	if err := c.checkBound(); err != nil {
		c.mu.Unlock()
		return err
	}
	img := c.engine.Current().Image()
	gen := c.gen
	c.mu.Unlock()

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	pt, err := finder.Find(c.log.WithContext(ctx), img)
	if err != nil {
		if c.ctx.Err() != nil {
			return ErrDestroyed
		}
		return fmt.Errorf("find focus: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	if gen != c.gen {
		return ErrSuperseded
	}

	c.log.Debug().Int("x", pt.X).Int("y", pt.Y).Msg("centring on focus point")
	c.centerOn(float64(pt.X), float64(pt.Y))
	return nil
}
