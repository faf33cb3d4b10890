package crop

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/cropt/pkg/layout"
	"github.com/menta2k/cropt/pkg/rotation"
	"github.com/menta2k/cropt/pkg/types"
)

// createCoordImage encodes each pixel's coordinates in its colour
func createCoordImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	return img
}

func TestPointsCentred(t *testing.T) {
	// 1000x1000 at 0.32 fills a 320 boundary; the 220 viewport sits at 50,50
	vp := types.Viewport{Width: 220, Height: 220}
	tr := types.Transform{X: -340, Y: -340, Scale: 0.32, Origin: types.Point{X: 500, Y: 500}}
	lay := layout.NewStatic(layout.NewContainer(320, 320), vp, tr, 1000, 1000)

	pts := Points(lay, 0.32, 1000, 1000)
	assert.Equal(t, types.CropPoints{Left: 156, Top: 156, Right: 844, Bottom: 844, Width: 688, Height: 688}, pts)
}

func TestPointsClampedToRaster(t *testing.T) {
	lay := layout.Static{
		BoundaryWidth:  100,
		BoundaryHeight: 100,
		ViewportSize:   types.Viewport{Width: 100, Height: 100},
		Transform:      types.Transform{X: 10, Y: 10, Scale: 1},
		NaturalWidth:   50,
		NaturalHeight:  50,
	}

	pts := Points(lay, 1, 50, 50)
	assert.Equal(t, 0, pts.Left)
	assert.Equal(t, 0, pts.Top)
	assert.Equal(t, 50, pts.Right)
	assert.Equal(t, 50, pts.Bottom)
	assert.Positive(t, pts.Width)
	assert.Positive(t, pts.Height)
}

func TestFromPointsMatchesRotatedPixels(t *testing.T) {
	const w, h = 9, 6
	src := createCoordImage(w, h)

	for _, rot := range []int{0, 90, 180, 270} {
		displayed, err := rotation.NewEngine().Rotate(context.Background(), src, rot)
		require.NoError(t, err)
		dw, dh := displayed.Bounds().Dx(), displayed.Bounds().Dy()

		for dy := 0; dy < dh; dy++ {
			for dx := 0; dx < dw; dx++ {
				p := types.CropPoints{Left: dx, Top: dy, Right: dx + 1, Bottom: dy + 1, Width: 1, Height: 1}
				c := FromPoints(p, rot, dw, dh)

				require.Equal(t, 1, c.Width)
				require.Equal(t, 1, c.Height)
				assert.Equal(t, displayed.At(dx, dy), src.At(c.X, c.Y),
					"rotation %d: displayed %d,%d mapped to %d,%d", rot, dx, dy, c.X, c.Y)
			}
		}
	}
}

func TestFromPointsSwapsSize(t *testing.T) {
	p := types.CropPoints{Left: 10, Top: 20, Right: 110, Bottom: 70, Width: 100, Height: 50}

	c := FromPoints(p, 90, 600, 800)
	assert.Equal(t, 50, c.Width)
	assert.Equal(t, 100, c.Height)
	assert.Equal(t, 20, c.X)
	assert.Equal(t, 600-10-100, c.Y)

	c = FromPoints(p, 180, 600, 800)
	assert.Equal(t, types.Crop{X: 600 - 10 - 100, Y: 800 - 20 - 50, Width: 100, Height: 50}, c)
}

func TestToPointsInvertsFromPoints(t *testing.T) {
	const w, h = 800, 600
	crops := []types.Crop{
		{X: 0, Y: 0, Width: 800, Height: 600},
		{X: 100, Y: 50, Width: 300, Height: 200},
		{X: 799, Y: 599, Width: 1, Height: 1},
		{X: 250, Y: 0, Width: 10, Height: 600},
	}

	for _, rot := range []int{0, 90, 180, 270} {
		dw, dh := w, h
		if rotation.SwapsAxes(rot) {
			dw, dh = h, w
		}
		for _, c := range crops {
			p := ToPoints(c, rot, dw, dh)
			assert.GreaterOrEqual(t, p.Left, 0)
			assert.GreaterOrEqual(t, p.Top, 0)
			assert.LessOrEqual(t, p.Right, dw)
			assert.LessOrEqual(t, p.Bottom, dh)
			assert.Equal(t, c, FromPoints(p, rot, dw, dh), "rotation %d", rot)
		}
	}
}

func TestRect(t *testing.T) {
	p := types.CropPoints{Left: 1, Top: 2, Right: 5, Bottom: 9, Width: 4, Height: 7}
	assert.Equal(t, image.Rect(1, 2, 5, 9), Rect(p))
}
