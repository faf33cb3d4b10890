package rotation

import (
	"context"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0}, {90, 90}, {180, 180}, {270, 270}, {360, 0},
		{-90, 270}, {-180, 180}, {450, 90}, {-450, 270},
	}
	for _, tt := range tests {
		got, err := Normalize(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "Normalize(%d)", tt.in)
	}

	_, err := Normalize(45)
	assert.ErrorIs(t, err, ErrInvalidAngle)
}

func TestSwapsAxes(t *testing.T) {
	assert.True(t, SwapsAxes(90))
	assert.True(t, SwapsAxes(-90))
	assert.True(t, SwapsAxes(270))
	assert.False(t, SwapsAxes(180))
	assert.False(t, SwapsAxes(0))
}

func TestRotateClockwise(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}
	img.SetNRGBA(0, 0, red)
	img.SetNRGBA(1, 0, blue)

	out, err := NewEngine().Rotate(context.Background(), img, 90)
	require.NoError(t, err)

	// a clockwise quarter turn puts the left end on top
	assert.Equal(t, image.Rect(0, 0, 1, 2), out.Bounds())
	assert.Equal(t, red, out.At(0, 0))
	assert.Equal(t, blue, out.At(0, 1))

	out, err = NewEngine().Rotate(context.Background(), img, -90)
	require.NoError(t, err)
	assert.Equal(t, blue, out.At(0, 0))
	assert.Equal(t, red, out.At(0, 1))
}

func TestRotateSwapsDimensions(t *testing.T) {
	e := NewEngine()
	img := createTestImage(80, 60)

	out, err := e.Rotate(context.Background(), img, 90)
	require.NoError(t, err)
	assert.Equal(t, 60, out.Bounds().Dx())
	assert.Equal(t, 80, out.Bounds().Dy())

	out, err = e.Rotate(context.Background(), img, 180)
	require.NoError(t, err)
	assert.Equal(t, 80, out.Bounds().Dx())
	assert.Equal(t, 60, out.Bounds().Dy())
}

func TestFourQuarterTurnsRestore(t *testing.T) {
	e := NewEngine()
	img := createTestImage(7, 5)

	var cur image.Image = img
	for i := 0; i < 4; i++ {
		var err error
		cur, err = e.Rotate(context.Background(), cur, 90)
		require.NoError(t, err)
	}

	require.Equal(t, img.Bounds(), cur.Bounds())
	for y := 0; y < 5; y++ {
		for x := 0; x < 7; x++ {
			assert.Equal(t, img.At(x, y), cur.At(x, y))
		}
	}
}

func TestRotateCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine().Rotate(ctx, createTestImage(400, 300), 90)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRotateInvalidAngle(t *testing.T) {
	_, err := NewEngine().Rotate(context.Background(), createTestImage(4, 4), 30)
	assert.ErrorIs(t, err, ErrInvalidAngle)
}

func TestRasterReleasedOnce(t *testing.T) {
	calls := 0
	r := NewRaster(createTestImage(4, 3), func() { calls++ })

	w, h := r.Size()
	assert.Equal(t, 4, w)
	assert.Equal(t, 3, h)
	assert.False(t, r.Released())

	require.NoError(t, r.Release())
	assert.True(t, r.Released())
	assert.ErrorIs(t, r.Release(), ErrReleased)
	assert.Equal(t, 1, calls)
}

func TestEngineReplaceReleasesPrevious(t *testing.T) {
	e := NewEngine()
	first := NewRaster(createTestImage(4, 4), nil)
	second := NewRaster(createTestImage(2, 2), nil)

	require.NoError(t, e.Replace(first))
	assert.Same(t, first, e.Current())

	require.NoError(t, e.Replace(second))
	assert.True(t, first.Released())
	assert.False(t, second.Released())
	assert.Same(t, second, e.Current())

	require.NoError(t, e.Close())
	assert.True(t, second.Released())
	assert.Nil(t, e.Current())
}
