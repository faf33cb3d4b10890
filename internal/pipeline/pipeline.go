// Package pipeline runs crop jobs: bind a source, restore or adjust the
// view, then render and encode the crop.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/menta2k/cropt"
	"github.com/menta2k/cropt/internal/config"
	"github.com/menta2k/cropt/internal/utils"
	"github.com/menta2k/cropt/pkg/crop"
	"github.com/menta2k/cropt/pkg/focus"
	"github.com/menta2k/cropt/pkg/layout"
	"github.com/menta2k/cropt/pkg/processing"
	"github.com/menta2k/cropt/pkg/types"
)

// Job describes one crop
type Job struct {
	Input   string          `json:"input"`
	Preset  json.RawMessage `json:"preset,omitempty"`
	Rotate  int             `json:"rotate,omitempty"`
	Size    int             `json:"size,omitempty"`
	Format  string          `json:"format,omitempty"`
	Quality float64         `json:"quality,omitempty"`
	Focus   string          `json:"focus,omitempty"`
	Output  string          `json:"output,omitempty"`
	Debug   bool            `json:"debug,omitempty"`
}

// Outcome is the result of a job
type Outcome struct {
	Input  string       `json:"input"`
	Output string       `json:"output,omitempty"`
	Type   string       `json:"type"`
	Bytes  int          `json:"bytes"`
	Result types.Result `json:"result"`

	Blob processing.Blob `json:"-"`
}

// Runner executes jobs with a shared configuration
type Runner struct {
	Config *config.Config
	Loader cropt.Loader

	facesOnce sync.Once
	faces     *focus.Faces
	facesErr  error
}

// NewRunner creates a runner. A nil config means config.Default().
func NewRunner(cfg *config.Config) *Runner {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Runner{Config: cfg, Loader: processing.NewProcessor()}
}

// Crop loads job.Input and renders it without writing anything
func (r *Runner) Crop(ctx context.Context, job Job) (Outcome, error) {
	img, err := r.Loader.Load(ctx, job.Input)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load %s: %w", job.Input, err)
	}
	return r.CropImage(ctx, img, job)
}

// CropImage renders img according to job
func (r *Runner) CropImage(ctx context.Context, img image.Image, job Job) (Outcome, error) {
	cfg := r.Config
	c, err := cropt.New(
		layout.NewContainer(cfg.Cropper.BoundaryWidth, cfg.Cropper.BoundaryHeight),
		r.options(),
		cropt.WithLogger(*log.Ctx(ctx)),
	)
	if err != nil {
		return Outcome{}, err
	}
	defer c.Destroy()

	var bindOpts []cropt.BindOption
	if len(job.Preset) > 0 {
		opt, err := cropt.ParsePreset(job.Preset)
		if err != nil {
			return Outcome{}, err
		}
		bindOpts = append(bindOpts, opt)
	}

	if err := c.BindImage(ctx, img, bindOpts...); err != nil {
		return Outcome{}, fmt.Errorf("failed to bind %s: %w", job.Input, err)
	}

	if job.Rotate != 0 {
		if err := c.SetRotation(ctx, c.Rotation()+job.Rotate); err != nil {
			return Outcome{}, err
		}
	}

	if finder, err := r.finder(job, c.Options().Viewport); err != nil {
		return Outcome{}, err
	} else if finder != nil {
		if err := c.Focus(ctx, finder); err != nil {
			return Outcome{}, err
		}
	}

	result, err := c.Get()
	if err != nil {
		return Outcome{}, err
	}

	blob, err := c.ToBlob(ctx, r.size(job), r.mime(job), r.quality(job))
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to render %s: %w", job.Input, err)
	}

	out := Outcome{
		Input:  job.Input,
		Type:   blob.Type,
		Bytes:  blob.Len(),
		Result: result,
		Blob:   blob,
	}

	if job.Debug {
		if err := r.writeDebug(ctx, c, job); err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("input", job.Input).Msg("debug overlay failed")
		}
	}

	return out, nil
}

// Run crops job and writes the blob to disk
func (r *Runner) Run(ctx context.Context, job Job) (Outcome, error) {
	out, err := r.Crop(ctx, job)
	if err != nil {
		return Outcome{}, err
	}

	path := r.outputPath(job, out.Type)
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return Outcome{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, out.Blob.Data, 0o644); err != nil {
		return Outcome{}, fmt.Errorf("failed to write %s: %w", path, err)
	}
	out.Output = path

	log.Ctx(ctx).Info().
		Str("input", job.Input).
		Str("output", path).
		Str("size", utils.FormatFileSize(int64(out.Bytes))).
		Msg("wrote crop")

	return out, nil
}

// Batch runs jobs concurrently, at most one per CPU. Outcomes keep the
// order of jobs; failed jobs leave a zero Outcome and contribute to the
// joined error.
func (r *Runner) Batch(ctx context.Context, jobs []Job) ([]Outcome, error) {
	if len(jobs) == 0 {
		log.Ctx(ctx).Warn().Msg("no jobs to run")
		return nil, nil
	}

	outcomes := make([]Outcome, len(jobs))
	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	for i, job := range jobs {
		pooler.Go(func(ctx context.Context) error {
			out, err := r.Run(ctx, job)
			if err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("input", job.Input).
					Msg("failed to run job")
				return err
			}
			outcomes[i] = out
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return outcomes, err
	}

	return outcomes, nil
}

// ReadJobs decodes one JSON job per line. Blank lines are skipped.
func ReadJobs(data []byte) ([]Job, error) {
	var jobs []Job
	dec := json.NewDecoder(bytes.NewReader(data))
	for {
		var job Job
		if err := dec.Decode(&job); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("job %d: %w", len(jobs)+1, err)
		}
		if job.Input == "" {
			return nil, fmt.Errorf("job %d: input is required", len(jobs)+1)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *Runner) options() cropt.Options {
	cc := r.Config.Cropper
	opts := cropt.DefaultOptions()
	opts.Viewport = types.Viewport{
		Width:        cc.ViewportWidth,
		Height:       cc.ViewportHeight,
		BorderRadius: cc.BorderRadius,
	}
	opts.MouseWheelZoom = cropt.WheelMode(cc.MouseWheelZoom)
	opts.TransparencyColor = cc.TransparencyColor
	opts.EnableKeypress = cc.EnableKeypress
	opts.ResizeBars = cc.ResizeBars
	return opts
}

func (r *Runner) finder(job Job, vp types.Viewport) (cropt.Finder, error) {
	backend := job.Focus
	if backend == "" {
		backend = r.Config.Focus.Backend
	}

	switch backend {
	case "", config.FocusNone:
		return nil, nil
	case config.FocusSaliency:
		return focus.NewSaliency(vp.Width, vp.Height), nil
	case config.FocusOllama:
		return focus.NewOllama(r.Config.Focus.URL, r.Config.Focus.Model)
	case config.FocusLlamaCpp:
		return focus.NewLlamaCpp(r.Config.Focus.URL, r.Config.Focus.Model)
	case config.FocusFaces:
		// the cascade is shared by every job
		r.facesOnce.Do(func() {
			r.faces, r.facesErr = focus.LoadFaces(r.Config.Focus.Cascade)
		})
		return r.faces, r.facesErr
	default:
		return nil, fmt.Errorf("unknown focus backend %q", backend)
	}
}

func (r *Runner) size(job Job) int {
	if job.Size != 0 {
		return job.Size
	}
	return r.Config.Output.Size
}

func (r *Runner) mime(job Job) string {
	format := job.Format
	if format == "" {
		format = r.Config.Output.DefaultFormat
	}
	return processing.MimeFromFormat(format)
}

func (r *Runner) quality(job Job) float64 {
	if job.Quality > 0 {
		return job.Quality
	}
	return r.Config.Output.Quality
}

func (r *Runner) outputPath(job Job, mime string) string {
	if job.Output != "" {
		return job.Output
	}
	out := r.Config.Output
	return utils.GenerateOutputFilename(job.Input, out.OutputDir, out.Prefix, out.Suffix, processing.Extension(mime))
}

// debugPath places the overlay next to the crop output
func (r *Runner) debugPath(job Job) string {
	path := r.outputPath(job, r.mime(job))
	return strings.TrimSuffix(path, filepath.Ext(path)) + "_debug.png"
}

// writeDebug saves the displayed raster with the crop rectangle drawn on it
func (r *Runner) writeDebug(ctx context.Context, c *cropt.Cropper, job Job) error {
	pts, err := c.Points()
	if err != nil {
		return err
	}
	raster, err := c.Snapshot()
	if err != nil {
		return err
	}

	overlay := processing.CreateDebugOverlay(raster, crop.Rect(pts))
	path := r.debugPath(job)
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := processing.SaveImage(ctx, overlay, path, processing.MimePNG, 1); err != nil {
		return err
	}
	log.Ctx(ctx).Info().Str("output", path).Msg("wrote debug overlay")
	return nil
}
