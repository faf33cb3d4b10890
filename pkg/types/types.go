package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Point is a position in unscaled image space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform is the pan/scale state of the bound image.
// X and Y are pan offsets in screen pixels, Origin is the point the
// scale is anchored to, expressed in the image's unscaled space.
type Transform struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Scale  float64 `json:"scale"`
	Origin Point   `json:"origin"`
}

// String renders the transform in CSS form, e.g. "translate(10px, -4px) scale(0.5)"
func (t Transform) String() string {
	return fmt.Sprintf("translate(%spx, %spx) scale(%s)", ftoa(t.X), ftoa(t.Y), ftoa(t.Scale))
}

// OriginString renders the transform origin in CSS form, e.g. "110px 110px"
func (t Transform) OriginString() string {
	return ftoa(t.Origin.X) + "px " + ftoa(t.Origin.Y) + "px"
}

// ParseTransform parses the output of Transform.String and Transform.OriginString.
// An empty origin leaves the origin at 0,0.
func ParseTransform(transform, origin string) (Transform, error) {
	t := Transform{Scale: 1}

	var x, y, scale string
	rest := strings.TrimSpace(transform)
	if rest != "" {
		if !strings.HasPrefix(rest, "translate(") {
			return Transform{}, fmt.Errorf("invalid transform %q", transform)
		}
		rest = strings.TrimPrefix(rest, "translate(")
		end := strings.Index(rest, ")")
		if end < 0 {
			return Transform{}, fmt.Errorf("invalid transform %q", transform)
		}
		parts := strings.Split(rest[:end], ",")
		if len(parts) != 2 {
			return Transform{}, fmt.Errorf("invalid translate in %q", transform)
		}
		x, y = parts[0], parts[1]
		rest = strings.TrimSpace(rest[end+1:])
		if rest != "" {
			if !strings.HasPrefix(rest, "scale(") || !strings.HasSuffix(rest, ")") {
				return Transform{}, fmt.Errorf("invalid scale in %q", transform)
			}
			scale = rest[len("scale(") : len(rest)-1]
		}
	}

	var err error
	if x != "" {
		if t.X, err = parsePx(x); err != nil {
			return Transform{}, err
		}
		if t.Y, err = parsePx(y); err != nil {
			return Transform{}, err
		}
	}
	if scale != "" {
		if t.Scale, err = strconv.ParseFloat(strings.TrimSpace(scale), 64); err != nil {
			return Transform{}, fmt.Errorf("invalid scale %q: %w", scale, err)
		}
	}

	if fields := strings.Fields(origin); len(fields) == 2 {
		if t.Origin.X, err = parsePx(fields[0]); err != nil {
			return Transform{}, err
		}
		if t.Origin.Y, err = parsePx(fields[1]); err != nil {
			return Transform{}, err
		}
	} else if len(fields) != 0 {
		return Transform{}, fmt.Errorf("invalid transform origin %q", origin)
	}

	return t, nil
}

// Viewport is the crop window
type Viewport struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	BorderRadius string `json:"borderRadius"`
}

// Ratio returns width / height
func (v Viewport) Ratio() float64 {
	return float64(v.Width) / float64(v.Height)
}

// CropPoints is the crop rectangle in the displayed raster's natural pixel space
type CropPoints struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Crop is the crop rectangle in the original, unrotated natural pixel space
type Crop struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PresetTransform is the transform part of a preset
type PresetTransform struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Scale  float64 `json:"scale"`
	Rotate int     `json:"rotate"`
	Origin Point   `json:"origin"`
}

// Transform drops the rotation
func (p PresetTransform) Transform() Transform {
	return Transform{X: p.X, Y: p.Y, Scale: p.Scale, Origin: p.Origin}
}

// Preset is a serializable capture of the full geometric state
type Preset struct {
	Transform PresetTransform `json:"transform"`
	Viewport  Viewport        `json:"viewport"`
}

// Result is what a cropper reports about its current state
type Result struct {
	Crop      Crop            `json:"crop"`
	Transform PresetTransform `json:"transform"`
	Viewport  Viewport        `json:"viewport"`
}

// Preset returns the part of the result that can be passed back to bind
func (r Result) Preset() Preset {
	return Preset{Transform: r.Transform, Viewport: r.Viewport}
}

func parsePx(s string) (float64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "px")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q: %w", s, err)
	}
	return v, nil
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
