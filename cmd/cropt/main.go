package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/cropt"
	"github.com/menta2k/cropt/internal/config"
	"github.com/menta2k/cropt/internal/pipeline"
	"github.com/menta2k/cropt/internal/server"
	"github.com/menta2k/cropt/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("cropt"),
		kong.Description("Pan, zoom and rotate crops with reproducible presets."),
		kong.UsageOnError(),
		kong.Vars{"version": cropt.Version},
	)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

type Globals struct {
	Config  string           `help:"Path to the JSON config file" type:"path"`
	Verbose bool             `help:"Enable verbose logging" short:"v"`
	Version kong.VersionFlag `help:"Print the version and exit"`
}

// setup loads the config and installs the logger
func (g *Globals) setup() (context.Context, context.CancelFunc, *config.Config, error) {
	cfg := config.Default()
	path := g.Config
	if path == "" && utils.FileExists(config.GetConfigPath()) {
		path = config.GetConfigPath()
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, nil, nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	})).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = log.Logger.WithContext(ctx)

	return ctx, cancel, cfg, nil
}

type cropCmd struct {
	Input   string  `arg:"" help:"Image path, http(s) URL or data URI"`
	Preset  string  `help:"Preset JSON, or a file containing it, as printed by a previous run"`
	Zoom    float64 `help:"Bind at this zoom instead of the fit zoom"`
	Rotate  int     `help:"Rotate clockwise by this many degrees (multiple of 90)"`
	Size    int     `help:"Output size of the longer side; negative only shrinks"`
	Format  string  `help:"Output format: webp, png or jpg"`
	Quality float64 `help:"Output quality between 0 and 1"`
	Focus   string  `help:"Centre on the subject: none, saliency, ollama, llamacpp or faces"`
	Debug   bool    `help:"Also write the source with the crop rectangle drawn on it"`
	Out     string  `help:"Output file; defaults to the configured output directory" type:"path"`
}

func (cmd *cropCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	job := pipeline.Job{
		Input:   cmd.Input,
		Rotate:  cmd.Rotate,
		Size:    cmd.Size,
		Format:  cmd.Format,
		Quality: cmd.Quality,
		Focus:   cmd.Focus,
		Output:  cmd.Out,
		Debug:   cmd.Debug,
	}

	switch {
	case cmd.Preset != "":
		preset, err := readPreset(cmd.Preset)
		if err != nil {
			return err
		}
		job.Preset = preset
	case cmd.Zoom > 0:
		job.Preset = json.RawMessage(fmt.Sprintf("%g", cmd.Zoom))
	}

	out, err := pipeline.NewRunner(cfg).Run(ctx, job)
	if err != nil {
		return err
	}

	return printJSON(out)
}

// readPreset accepts inline JSON or a path to a JSON file
func readPreset(s string) (json.RawMessage, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "{") {
		return json.RawMessage(s), nil
	}
	data, err := os.ReadFile(s)
	if err != nil {
		return nil, fmt.Errorf("failed to read preset: %w", err)
	}
	return data, nil
}

type batchCmd struct {
	Source string `arg:"" help:"File with one JSON job per line, or a directory of images" type:"path"`
	Focus  string `help:"Focus backend for images found in a directory"`
}

func (cmd *batchCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	jobs, err := cmd.jobs()
	if err != nil {
		return err
	}

	outcomes, err := pipeline.NewRunner(cfg).Batch(ctx, jobs)
	for _, out := range outcomes {
		if out.Output == "" {
			continue
		}
		if perr := printJSON(out); perr != nil {
			log.Error().Err(perr).Msg("Failed to encode outcome")
		}
	}
	return err
}

// jobs reads the jobs file, or makes one default job per image when
// Source is a directory
func (cmd *batchCmd) jobs() ([]pipeline.Job, error) {
	info, err := os.Stat(cmd.Source)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		data, err := os.ReadFile(cmd.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to read jobs: %w", err)
		}
		return pipeline.ReadJobs(data)
	}

	files, err := utils.ListImageFiles(cmd.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	jobs := make([]pipeline.Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, pipeline.Job{Input: f, Focus: cmd.Focus})
	}
	return jobs, nil
}

type serveCmd struct {
	Addr string `help:"Address to listen on" default:"localhost:8090"`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	srv := server.New(server.Config{
		Addr:   cmd.Addr,
		Runner: pipeline.NewRunner(cfg),
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down server...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
		},
	})

	return srv.Run(ctx)
}

type cliArgs struct {
	Globals

	Crop  cropCmd  `cmd:"" help:"Crop a single image"`
	Batch batchCmd `cmd:"" help:"Run crop jobs from a JSON lines file"`
	Serve serveCmd `cmd:"" help:"Serve the crop API over HTTP"`
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	return enc.Encode(v)
}
