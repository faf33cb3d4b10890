// Package server exposes the crop pipeline over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/menta2k/cropt"
	"github.com/menta2k/cropt/internal/pipeline"
	"github.com/menta2k/cropt/pkg/processing"
)

// maxUploadSize bounds the multipart body
const maxUploadSize = 32 << 20

// Config configures the server
type Config struct {
	Addr             string
	Runner           *pipeline.Runner
	OnBeforeShutdown func()
	OnReady          func(addr string)
}

// Server serves POST /api/crop and GET /api/health
type Server struct {
	config       Config
	app          *fiber.App
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// New creates a server and registers its routes
func New(config Config) *Server {
	if config.Runner == nil {
		config.Runner = pipeline.NewRunner(nil)
	}
	s := &Server{
		config:     config,
		shutdownCh: make(chan struct{}),
	}
	s.app = s.newApp()
	return s
}

// App returns the underlying fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown stops a running server
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Run listens on the configured address until ctx is done or Shutdown is
// called
func (s *Server) Run(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
		case <-s.shutdownCh:
		}
		if fn := s.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown server")
		}
	}()

	addr := s.config.Addr
	if addr == "" {
		addr = "localhost:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := s.app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *Server) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             maxUploadSize,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(c.UserContext()).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	app.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := s.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": cropt.Version})
	})

	app.Post("/api/crop", s.handleCrop)

	return app
}

// handleCrop reads a multipart form with an "image" file and the optional
// fields preset, size, type and quality, and answers with the encoded crop.
// The crop result is returned as JSON in the X-Crop header.
func (s *Server) handleCrop(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "image file is required")
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read upload: %w", err)
	}

	img, err := processing.DecodeBytes(data)
	if err != nil {
		return fiber.NewError(http.StatusUnsupportedMediaType, err.Error())
	}

	job := pipeline.Job{
		Input:  fh.Filename,
		Format: c.FormValue("type"),
	}
	if preset := c.FormValue("preset"); preset != "" {
		job.Preset = json.RawMessage(preset)
	}
	if size := c.FormValue("size"); size != "" {
		if job.Size, err = strconv.Atoi(size); err != nil {
			return fiber.NewError(http.StatusBadRequest, "size must be an integer")
		}
	}
	if quality := c.FormValue("quality"); quality != "" {
		if job.Quality, err = strconv.ParseFloat(quality, 64); err != nil || job.Quality < 0 || job.Quality > 1 {
			return fiber.NewError(http.StatusBadRequest, "quality must be between 0 and 1")
		}
	}

	out, err := s.config.Runner.CropImage(c.UserContext(), img, job)
	if err != nil {
		if errors.Is(err, cropt.ErrInvalidRotation) || errors.Is(err, cropt.ErrInvalidPreset) || errors.Is(err, cropt.ErrEmptySource) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	header, err := json.Marshal(out.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	c.Set("X-Crop", string(header))
	c.Set(fiber.HeaderContentType, out.Type)
	return c.Send(out.Blob.Data)
}
