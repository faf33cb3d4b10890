package focus

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
	pigo "github.com/esimov/pigo/core"
	"github.com/rs/zerolog"
)

// Faces centres on the faces a pigo cascade finds, weighted by face area.
// Images without a confident face fall back to the image centre.
type Faces struct {
	classifier *pigo.Pigo

	// MinQuality drops detections scoring below it
	MinQuality float32
	// MinSizePct is the smallest face as a percentage of the shorter side
	MinSizePct int
	Shift      float64
	Scale      float64
}

// NewFaces unpacks a pigo face cascade such as "facefinder"
func NewFaces(cascade []byte) (f *Faces, err error) {
	if len(cascade) == 0 {
		return nil, errors.New("empty face cascade")
	}

	// Unpack indexes into the packet without bounds checks
	defer func() {
		if r := recover(); r != nil {
			f, err = nil, fmt.Errorf("invalid face cascade: %v", r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}

	return &Faces{
		classifier: classifier,
		MinQuality: 10,
		MinSizePct: 1,
		Shift:      0.1,
		Scale:      1.1,
	}, nil
}

// LoadFaces reads and unpacks a cascade file
func LoadFaces(path string) (*Faces, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read face cascade: %w", err)
	}
	return NewFaces(data)
}

// Find runs the cascade on its own goroutine so ctx can abandon it
func (f *Faces) Find(ctx context.Context, img image.Image) (image.Point, error) {
	src := imaging.Clone(img)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()
	if cols == 0 || rows == 0 {
		return image.Point{}, errors.New("empty image")
	}
	minSide := min(cols, rows)

	params := pigo.CascadeParams{
		MinSize:     max(20, minSide*f.MinSizePct/100),
		MaxSize:     minSide,
		ShiftFactor: f.Shift,
		ScaleFactor: f.Scale,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(src),
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	resultChan := make(chan []pigo.Detection, 1)
	go func() {
		dets := f.classifier.RunCascade(params, 0)
		resultChan <- f.classifier.ClusterDetections(dets, 0.2)
	}()

	var dets []pigo.Detection
	select {
	case <-ctx.Done():
		return image.Point{}, ctx.Err()
	case dets = <-resultChan:
	}

	pt, n := facesCenter(dets, f.MinQuality)
	zerolog.Ctx(ctx).Debug().Int("faces", n).Msg("face focus")
	if n == 0 {
		return Center{}.Find(ctx, img)
	}
	return pt, nil
}

// facesCenter returns the area-weighted centre of the detections scoring
// at least minQ and how many there were
func facesCenter(dets []pigo.Detection, minQ float32) (image.Point, int) {
	var sx, sy, total float64
	n := 0
	for _, d := range dets {
		if d.Q < minQ || d.Scale <= 0 {
			continue
		}
		w := float64(d.Scale) * float64(d.Scale)
		sx += float64(d.Col) * w
		sy += float64(d.Row) * w
		total += w
		n++
	}
	if n == 0 {
		return image.Point{}, 0
	}
	return image.Pt(int(sx/total+0.5), int(sy/total+0.5)), n
}
