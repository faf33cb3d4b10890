package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/menta2k/cropt/pkg/processing"
)

// Config holds the application configuration
type Config struct {
	Cropper CropperConfig `json:"cropper"`
	Output  OutputConfig  `json:"output"`
	Focus   FocusConfig   `json:"focus"`
	Log     LogConfig     `json:"log"`
}

// CropperConfig holds the cropper geometry and input options
type CropperConfig struct {
	ViewportWidth     int    `json:"viewport_width"`
	ViewportHeight    int    `json:"viewport_height"`
	BorderRadius      string `json:"border_radius"`
	BoundaryWidth     int    `json:"boundary_width"`
	BoundaryHeight    int    `json:"boundary_height"`
	MouseWheelZoom    string `json:"mouse_wheel_zoom"`
	TransparencyColor string `json:"transparency_color"`
	EnableKeypress    bool   `json:"enable_keypress"`
	ResizeBars        bool   `json:"resize_bars"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string  `json:"default_format"`
	Quality       float64 `json:"quality"`
	Size          int     `json:"size"`
	OutputDir     string  `json:"output_dir"`
	Prefix        string  `json:"prefix"`
	Suffix        string  `json:"suffix"`
}

// Focus backends
const (
	FocusNone     = "none"
	FocusSaliency = "saliency"
	FocusOllama   = "ollama"
	FocusLlamaCpp = "llamacpp"
	FocusFaces    = "faces"
)

// FocusConfig selects how a bound image is centred on its subject.
// URL and Model serve the ollama and llamacpp backends, Cascade is the
// pigo cascade file for the faces backend.
type FocusConfig struct {
	Backend string `json:"backend"`
	URL     string `json:"url"`
	Model   string `json:"model"`
	Cascade string `json:"cascade,omitempty"`
}

// LogConfig holds the log level
type LogConfig struct {
	Level string `json:"level"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Cropper: CropperConfig{
			ViewportWidth:     220,
			ViewportHeight:    220,
			BorderRadius:      "0px",
			BoundaryWidth:     320,
			BoundaryHeight:    320,
			MouseWheelZoom:    "on",
			TransparencyColor: "#ffffff",
		},
		Output: OutputConfig{
			DefaultFormat: "webp",
			Quality:       0.9,
			Size:          0,
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_cropped",
		},
		Focus: FocusConfig{
			Backend: FocusNone,
			URL:     "http://localhost:11434",
			Model:   "llava:7b",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cropper.ViewportWidth < 1 || c.Cropper.ViewportHeight < 1 {
		return fmt.Errorf("cropper viewport must be positive")
	}

	if c.Cropper.BoundaryWidth < c.Cropper.ViewportWidth || c.Cropper.BoundaryHeight < c.Cropper.ViewportHeight {
		return fmt.Errorf("cropper boundary must contain the viewport")
	}

	switch c.Cropper.MouseWheelZoom {
	case "off", "on", "ctrl":
	default:
		return fmt.Errorf("cropper.mouse_wheel_zoom must be off, on or ctrl")
	}

	if _, err := processing.ParseColor(c.Cropper.TransparencyColor); err != nil {
		return fmt.Errorf("cropper.transparency_color: %w", err)
	}

	if c.Output.Quality < 0 || c.Output.Quality > 1 {
		return fmt.Errorf("output.quality must be between 0 and 1")
	}

	if !processing.Supported(processing.MimeFromFormat(c.Output.DefaultFormat)) {
		return fmt.Errorf("output.default_format %q is not supported", c.Output.DefaultFormat)
	}

	switch c.Focus.Backend {
	case FocusNone, FocusSaliency:
	case FocusOllama, FocusLlamaCpp:
		if c.Focus.URL == "" {
			return fmt.Errorf("focus.url is required for the %s backend", c.Focus.Backend)
		}
	case FocusFaces:
		if c.Focus.Cascade == "" {
			return fmt.Errorf("focus.cascade is required for the faces backend")
		}
	default:
		return fmt.Errorf("focus.backend must be none, saliency, ollama, llamacpp or faces")
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "cropt", "config.json")
}
