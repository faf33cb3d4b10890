package cropt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/cropt/pkg/geometry"
	"github.com/menta2k/cropt/pkg/rotation"
	"github.com/menta2k/cropt/pkg/types"
	"github.com/menta2k/cropt/pkg/zoom"
)

// coverEps absorbs float error when checking that a preset still covers
// the viewport
const coverEps = 1e-6

// BindOption customizes a single Bind call
type BindOption func(*bindConfig)

type bindConfig struct {
	preset *types.Preset
	zoom   *float64
}

// WithPreset restores a previously captured state instead of centring the
// image. The preset rotation is applied before the transform.
func WithPreset(p types.Preset) BindOption {
	return func(cfg *bindConfig) { cfg.preset = &p }
}

// WithZoom binds at an explicit zoom instead of the boundary fit zoom
func WithZoom(z float64) BindOption {
	return func(cfg *bindConfig) { cfg.zoom = &z }
}

// ParsePreset decodes a bind argument: either a bare zoom number or a
// preset object as produced by Result.Preset.
func ParsePreset(data []byte) (BindOption, error) {
	var z float64
	if err := json.Unmarshal(data, &z); err == nil {
		return WithZoom(z), nil
	}

	var p types.Preset
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPreset, err)
	}
	return WithPreset(p), nil
}

// Bind loads src and shows it. src is whatever the loader accepts; the
// default loader takes file paths, http(s) URLs and base64 data URIs.
//
// A Bind or SetRotation started after this call supersedes it: the older
// call then returns ErrSuperseded and leaves the state untouched.
func (c *Cropper) Bind(ctx context.Context, src string, opts ...BindOption) error {
	if src == "" {
		return ErrEmptySource
	}

	gen, err := c.nextGeneration()
	if err != nil {
		return err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	img, err := c.loader.Load(ctx, src)
	if err != nil {
		if c.ctx.Err() != nil {
			return ErrDestroyed
		}
		return fmt.Errorf("load image: %w", err)
	}

	return c.bind(ctx, gen, img, opts)
}

// BindImage shows an already decoded image
func (c *Cropper) BindImage(ctx context.Context, img image.Image, opts ...BindOption) error {
	if img == nil || img.Bounds().Empty() {
		return ErrEmptySource
	}

	gen, err := c.nextGeneration()
	if err != nil {
		return err
	}

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	return c.bind(ctx, gen, img, opts)
}

func (c *Cropper) nextGeneration() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return 0, ErrDestroyed
	}
	c.gen++
	return c.gen, nil
}

func (c *Cropper) bind(ctx context.Context, gen uint64, img image.Image, opts []BindOption) error {
	var cfg bindConfig
	for _, o := range opts {
		o(&cfg)
	}

	// crop points are 0-based
	if img.Bounds().Min != (image.Point{}) {
		img = imaging.Clone(img)
	}

	rot := 0
	displayed := img
	if cfg.preset != nil {
		var err error
		if rot, err = rotation.Normalize(cfg.preset.Transform.Rotate); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRotation, err)
		}
		if rot != 0 {
			if displayed, err = c.engine.Rotate(c.log.WithContext(ctx), img, rot); err != nil {
				return c.rotateError(err)
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if gen != c.gen {
		c.log.Debug().Uint64("generation", gen).Msg("bind superseded")
		return ErrSuperseded
	}

	if err := c.engine.Replace(rotation.NewRaster(displayed, nil)); err != nil {
		c.log.Warn().Err(err).Msg("releasing previous raster")
	}
	c.rotation = rot
	c.boundZoom = cfg.zoom
	c.bound = true
	c.pinch.End()

	w, h := c.naturalSize()
	c.log.Debug().Int("width", w).Int("height", h).Int("rotation", rot).Msg("image bound")

	if cfg.preset == nil {
		c.reset()
		return nil
	}

	c.applyPreset(*cfg.preset)
	return nil
}

// applyPreset restores viewport, limits and the literal transform. The
// image is not centred. A preset that no longer fits (scale outside the
// new limits, or an image that leaves a gap) keeps the point under the
// viewport centre and is then clamped like a zoom.
func (c *Cropper) applyPreset(p types.Preset) {
	if p.Viewport.Width > 0 && p.Viewport.Height > 0 {
		vp := p.Viewport
		if vp.BorderRadius == "" {
			vp.BorderRadius = c.opts.Viewport.BorderRadius
		}
		c.opts.Viewport = vp
	}

	c.updateZoomLimits(nil, false)

	t := p.Transform.Transform()
	if t.Scale <= 0 || math.IsNaN(t.Scale) || math.IsInf(t.Scale, 0) {
		t.Scale = c.zoom.Value()
	}
	scale := c.zoom.Set(t.Scale)

	lay := c.layoutWith(t)
	if scale != t.Scale || !lay.Image().Contains(lay.Viewport(), coverEps) {
		t = geometry.Recenter(t, lay.Viewport(), lay.NaturalWidth, lay.NaturalHeight)
		t = zoom.Apply(t, scale, c.layoutWith(t))
	}
	c.transform = t
	c.refresher.Trigger()
}

// SetRotation turns the image to an absolute clockwise angle. The view is
// re-centred and re-fitted afterwards.
func (c *Cropper) SetRotation(ctx context.Context, degrees int) error {
	target, err := rotation.Normalize(degrees)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRotation, err)
	}

	c.mu.Lock()
	if err := c.checkBound(); err != nil {
		c.mu.Unlock()
		return err
	}
	delta := target - c.rotation
	if delta == 0 {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	src := c.engine.Current().Image()
	c.mu.Unlock()

	ctx, cancel := c.opContext(ctx)
	defer cancel()

	rotated, err := c.engine.Rotate(c.log.WithContext(ctx), src, delta)
	if err != nil {
		return c.rotateError(err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return ErrDestroyed
	}
	if gen != c.gen {
		c.log.Debug().Int("rotation", target).Msg("rotation superseded")
		return ErrSuperseded
	}

	if err := c.engine.Replace(rotation.NewRaster(rotated, nil)); err != nil {
		c.log.Warn().Err(err).Msg("releasing previous raster")
	}
	c.rotation = target
	c.reset()
	return nil
}

// Rotate turns the image by delta degrees relative to the current
// rotation, the way the rotate buttons do.
func (c *Cropper) Rotate(ctx context.Context, delta int) error {
	c.mu.Lock()
	enabled := c.opts.EnableRotateBtns
	current := c.rotation
	c.mu.Unlock()

	if !enabled {
		return ErrDisabled
	}
	return c.SetRotation(ctx, current+delta)
}

func (c *Cropper) rotateError(err error) error {
	if c.ctx.Err() != nil {
		return ErrDestroyed
	}
	if errors.Is(err, rotation.ErrEmptyRaster) {
		return fmt.Errorf("%w: %w", ErrSurfaceUnavailable, err)
	}
	return fmt.Errorf("rotate image: %w", err)
}
