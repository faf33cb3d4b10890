// Package cropt lets a caller pan, zoom and rotate an image inside a fixed
// viewport and extract the exact crop and a resampled output image.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/cropt"
//		"github.com/menta2k/cropt/pkg/layout"
//	)
//
//	func main() {
//		ctx := context.Background()
//
//		c, err := cropt.New(layout.NewContainer(320, 320), cropt.DefaultOptions())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer c.Destroy()
//
//		if err := c.Bind(ctx, "photo.jpg"); err != nil {
//			log.Fatal(err)
//		}
//		c.SetZoom(0.5)
//		c.Pan(-40, 10)
//
//		res, _ := c.Get()
//		fmt.Printf("crop %+v\n", res.Crop)
//
//		blob, err := c.ToBlob(ctx, 500, "image/webp", 0.9)
//		...
//	}
//
// The cropper is built from small packages:
//
//  1. Geometry (pkg/geometry): boundary limits, pan clamping and origin re-centring
//  2. Layout (pkg/layout): boundary, viewport and image rectangles
//  3. Zoom (pkg/zoom): zoom limits and snap-and-recenter
//  4. Rotation (pkg/rotation): 90 degree re-rasterization and raster handles
//  5. Crop (pkg/crop): natural pixel crop points and rotation compensation
//  6. Resample (pkg/resample): progressive halving downscale
//  7. Processing (pkg/processing): loading sources and encoding output
//
// A Get result doubles as a preset: binding the same source with it
// restores rotation, viewport and transform and reproduces the crop.
package cropt

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/menta2k/cropt/pkg/crop"
	"github.com/menta2k/cropt/pkg/geometry"
	"github.com/menta2k/cropt/pkg/layout"
	"github.com/menta2k/cropt/pkg/processing"
	"github.com/menta2k/cropt/pkg/rotation"
	"github.com/menta2k/cropt/pkg/schedule"
	"github.com/menta2k/cropt/pkg/types"
	"github.com/menta2k/cropt/pkg/zoom"
)

// Version of the cropt library
const Version = "1.0.0"

// WheelMode selects when the mouse wheel zooms
type WheelMode string

// Wheel modes
const (
	WheelOff  WheelMode = "off"
	WheelOn   WheelMode = "on"
	WheelCtrl WheelMode = "ctrl"
)

// Options configure a cropper
type Options struct {
	MouseWheelZoom WheelMode
	Viewport       types.Viewport
	// EnableZoomSlider and EnableRotateBtns only tell the UI layer which
	// controls to build; Rotate honours EnableRotateBtns.
	EnableZoomSlider bool
	EnableKeypress   bool
	ResizeBars       bool
	EnableRotateBtns bool
	// TransparencyColor fills transparent regions when the output format
	// has no alpha channel.
	TransparencyColor string
	// RefreshDelay is the coalescing window for OnRefresh
	RefreshDelay time.Duration
	// OnRefresh is called once input settles with the overlay rectangle
	// and the current result.
	OnRefresh func(Update)
}

// Update is passed to Options.OnRefresh
type Update struct {
	Overlay geometry.Rect
	Result  types.Result
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		MouseWheelZoom:    WheelOn,
		Viewport:          types.Viewport{Width: 220, Height: 220, BorderRadius: "0px"},
		EnableZoomSlider:  true,
		TransparencyColor: "#ffffff",
		RefreshDelay:      schedule.DefaultDelay,
	}
}

// Loader turns a source string into an image
type Loader interface {
	Load(ctx context.Context, src string) (image.Image, error)
}

// Option customizes a cropper at construction
type Option func(*Cropper)

// WithLoader replaces the default processing.Processor loader
func WithLoader(l Loader) Option {
	return func(c *Cropper) { c.loader = l }
}

// WithLogger attaches a logger for debug events
func WithLogger(l zerolog.Logger) Option {
	return func(c *Cropper) { c.log = l }
}

// Cropper is one pan/zoom/rotate instance bound to a container
type Cropper struct {
	mu        sync.Mutex
	container *layout.Container
	opts      Options
	bg        color.Color
	loader    Loader
	log       zerolog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	refresher *schedule.Debouncer

	engine    *rotation.Engine
	zoom      *zoom.Controller
	pinch     zoom.Pinch
	transform types.Transform
	rotation  int
	boundZoom *float64

	gen       uint64
	bound     bool
	destroyed bool
}

// New creates a cropper in container. It fails if the container already
// hosts one.
func New(container *layout.Container, opts Options, options ...Option) (*Cropper, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	opts, bg, err := normalizeOptions(opts)
	if err != nil {
		return nil, err
	}

	if err := container.Claim(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cropper{
		container: container,
		opts:      opts,
		bg:        bg,
		loader:    processing.NewProcessor(),
		log:       zerolog.Nop(),
		ctx:       ctx,
		cancel:    cancel,
		engine:    rotation.NewEngine(),
		zoom:      zoom.New(),
		transform: types.Transform{Scale: 1},
	}
	for _, o := range options {
		o(c)
	}
	c.refresher = schedule.NewDebouncer(ctx, opts.RefreshDelay, c.fireRefresh)

	return c, nil
}

func normalizeOptions(opts Options) (Options, color.Color, error) {
	def := DefaultOptions()
	if opts.MouseWheelZoom == "" {
		opts.MouseWheelZoom = def.MouseWheelZoom
	}
	switch opts.MouseWheelZoom {
	case WheelOff, WheelOn, WheelCtrl:
	default:
		return opts, nil, fmt.Errorf("invalid mouseWheelZoom %q", opts.MouseWheelZoom)
	}
	if opts.Viewport.Width == 0 {
		opts.Viewport.Width = def.Viewport.Width
	}
	if opts.Viewport.Height == 0 {
		opts.Viewport.Height = def.Viewport.Height
	}
	if opts.Viewport.BorderRadius == "" {
		opts.Viewport.BorderRadius = def.Viewport.BorderRadius
	}
	if opts.Viewport.Width < 0 || opts.Viewport.Height < 0 {
		return opts, nil, fmt.Errorf("invalid viewport %dx%d", opts.Viewport.Width, opts.Viewport.Height)
	}
	if opts.TransparencyColor == "" {
		opts.TransparencyColor = def.TransparencyColor
	}
	if opts.RefreshDelay <= 0 {
		opts.RefreshDelay = def.RefreshDelay
	}

	bg, err := processing.ParseColor(opts.TransparencyColor)
	if err != nil {
		return opts, nil, fmt.Errorf("transparencyColor: %w", err)
	}
	return opts, bg, nil
}

// Options returns a copy of the current options
func (c *Cropper) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetOptions changes options in place. A viewport size change recomputes
// the zoom limits and re-applies the bound zoom.
func (c *Cropper) SetOptions(update func(*Options)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return ErrDestroyed
	}

	next := c.opts
	update(&next)
	next, bg, err := normalizeOptions(next)
	if err != nil {
		return err
	}

	prev := c.opts
	c.opts = next
	c.bg = bg

	if c.bound && (prev.Viewport.Width != next.Viewport.Width || prev.Viewport.Height != next.Viewport.Height) {
		c.updateZoomLimits(c.boundZoom, true)
	}
	return nil
}

// SetZoom clamps value to the zoom limits and applies it
func (c *Cropper) SetZoom(value float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	c.setZoom(value)
	return nil
}

// ZoomLimits returns the minimum, maximum and current zoom
func (c *Cropper) ZoomLimits() (min, max, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.zoom.Min(), c.zoom.Max(), c.zoom.Value()
}

// Transform returns the current transform
func (c *Cropper) Transform() types.Transform {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transform
}

// Rotation returns the current rotation in degrees
func (c *Cropper) Rotation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotation
}

// NaturalSize returns the size of the displayed, possibly rotated, raster
func (c *Cropper) NaturalSize() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.naturalSize()
}

// Snapshot returns the displayed, possibly rotated, raster. The image is
// shared and must not be modified.
func (c *Cropper) Snapshot() (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return nil, err
	}
	return c.engine.Current().Image(), nil
}

// Layout returns the boundary, viewport and image rectangles
func (c *Cropper) Layout() layout.Provider {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout()
}

// Overlay returns the image rectangle relative to the boundary, the area a
// pointer overlay has to cover
func (c *Cropper) Overlay() geometry.Rect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.layout().Image()
}

// Points returns the crop in the displayed raster's pixel space
func (c *Cropper) Points() (types.CropPoints, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return types.CropPoints{}, err
	}
	return c.points(), nil
}

// Get reports the crop in natural unrotated pixels together with the
// transform and viewport. It has no side effects.
func (c *Cropper) Get() (types.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return types.Result{}, err
	}
	return c.result(), nil
}

// Refresh re-centres and re-fits the image
func (c *Cropper) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkBound(); err != nil {
		return err
	}
	c.reset()
	return nil
}

// Destroy cancels every pending refresh and in-flight operation, releases
// the raster and frees the container.
func (c *Cropper) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.bound = false
	c.cancel()

	if err := c.engine.Close(); err != nil {
		c.log.Warn().Err(err).Msg("releasing raster on destroy")
	}
	c.container.Release()
}

func (c *Cropper) checkBound() error {
	if c.destroyed {
		return ErrDestroyed
	}
	if !c.bound {
		return ErrNotBound
	}
	return nil
}

func (c *Cropper) naturalSize() (int, int) {
	r := c.engine.Current()
	if r == nil || r.Released() {
		return 0, 0
	}
	return r.Size()
}

func (c *Cropper) layout() layout.Static {
	w, h := c.naturalSize()
	return layout.NewStatic(c.container, c.opts.Viewport, c.transform, w, h)
}

func (c *Cropper) layoutWith(t types.Transform) layout.Static {
	lay := c.layout()
	lay.Transform = t
	return lay
}

func (c *Cropper) points() types.CropPoints {
	w, h := c.naturalSize()
	return crop.Points(c.layout(), c.transform.Scale, w, h)
}

func (c *Cropper) result() types.Result {
	w, h := c.naturalSize()
	return types.Result{
		Crop: crop.FromPoints(c.points(), c.rotation, w, h),
		Transform: types.PresetTransform{
			X:      c.transform.X,
			Y:      c.transform.Y,
			Scale:  c.transform.Scale,
			Rotate: c.rotation,
			Origin: c.transform.Origin,
		},
		Viewport: c.opts.Viewport,
	}
}

// setZoom clamps and stores value, then applies it to the transform
func (c *Cropper) setZoom(value float64) {
	c.onZoom(c.zoom.Set(value))
}

func (c *Cropper) onZoom(scale float64) {
	c.transform = zoom.Apply(c.transform, scale, c.layoutWith(c.transform))
	c.refresher.Trigger()
}

// updateZoomLimits recomputes the zoom limits for the current viewport and
// raster. With apply set it zooms to explicit, or to the boundary fit zoom
// when explicit is nil.
func (c *Cropper) updateZoomLimits(explicit *float64, apply bool) {
	w, h := c.naturalSize()
	c.zoom.UpdateLimits(c.opts.Viewport, w, h)
	if !apply {
		return
	}

	var z float64
	if explicit != nil {
		z = *explicit
	} else {
		z = zoom.FitZoom(float64(c.container.Width), float64(c.container.Height), float64(w), float64(h))
	}
	c.setZoom(z)
}

// reset puts the image back to the centred fit state
func (c *Cropper) reset() {
	c.transform = types.Transform{Scale: 1}
	c.updateZoomLimits(c.boundZoom, true)
	c.transform = types.Transform{Scale: c.zoom.Value()}
	c.centerImage()
	c.refresher.Trigger()
}

// centerImage centres the image on the viewport with the origin on the
// viewport centre
func (c *Cropper) centerImage() {
	w, h := c.naturalSize()
	vp := c.layout().Viewport()
	s := c.transform.Scale

	left := vp.Left - (float64(w)*s-vp.Width)/2
	top := vp.Top - (float64(h)*s-vp.Height)/2
	origin := types.Point{X: float64(w) / 2, Y: float64(h) / 2}

	c.transform = types.Transform{
		X:      left - origin.X*(1-s),
		Y:      top - origin.Y*(1-s),
		Scale:  s,
		Origin: origin,
	}
}

func (c *Cropper) fireRefresh() {
	c.mu.Lock()
	if c.destroyed || !c.bound || c.opts.OnRefresh == nil {
		c.mu.Unlock()
		return
	}
	upd := Update{Overlay: c.layout().Image(), Result: c.result()}
	fn := c.opts.OnRefresh
	c.mu.Unlock()

	fn(upd)
}

// opContext derives a context that is also cancelled by Destroy
func (c *Cropper) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
