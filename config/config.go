// Package config loads the pdfoverlay configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfoverlay/builder"
)

// Config holds the full pdfoverlay configuration.
type Config struct {
	Listen     string         `yaml:"listen"`
	Log        LogConfig      `yaml:"log"`
	Render     RenderConfig   `yaml:"render"`
	Fonts      FontsConfig    `yaml:"fonts"`
	Ink        InkConfig      `yaml:"ink"`
	Highlight  HighlightStyle `yaml:"highlight"`
	Marks      MarksConfig    `yaml:"marks"`
	Storage    StorageConfig  `yaml:"storage"`
	Database   DatabaseConfig `yaml:"database"`
	DateLayout string         `yaml:"date_layout"`
	MaxPDFMB   int            `yaml:"max_pdf_mb"`
	MaxPages   int            `yaml:"max_pages"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

type RenderConfig struct {
	Scale      float64 `yaml:"scale"`
	Rasterizer string  `yaml:"rasterizer"` // blank | pdftoppm
	Pdftoppm   string  `yaml:"pdftoppm"`
}

// FontFiles are the TrueType programs of one configured family.
type FontFiles struct {
	Regular string `yaml:"regular"`
	Bold    string `yaml:"bold"`
}

type FontsConfig struct {
	// Signature is a TrueType file for signatures; empty uses Go Italic.
	Signature string               `yaml:"signature"`
	Families  map[string]FontFiles `yaml:"families"`
}

type InkConfig struct {
	Color string  `yaml:"color"`
	Width float64 `yaml:"width"`
}

type HighlightStyle struct {
	Color   string  `yaml:"color"`
	Opacity float64 `yaml:"opacity"`
}

type MarksConfig struct {
	Tick  string `yaml:"tick"`
	Cross string `yaml:"cross"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
	// BaseURL prefixes saved document URLs. The server answers them under
	// /files, so a deployment points it at "<public address>/files".
	BaseURL string `yaml:"base_url"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "text"},
		Render: RenderConfig{Scale: 1.5, Rasterizer: "blank", Pdftoppm: "pdftoppm"},
		Ink:    InkConfig{Color: "black", Width: 2},
		Highlight: HighlightStyle{
			Color:   "#FFFF00",
			Opacity: 0.5,
		},
		Marks:      MarksConfig{Tick: "✓", Cross: "✗"},
		Storage:    StorageConfig{Dir: "data/pdfs"},
		Database:   DatabaseConfig{Path: "data/pdfoverlay.db"},
		DateLayout: "01/02/2006",
		MaxPDFMB:   100,
		MaxPages:   5000,
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Render.Scale <= 0 {
		return fmt.Errorf("render.scale must be > 0")
	}
	switch c.Render.Rasterizer {
	case "blank", "pdftoppm":
	default:
		return fmt.Errorf("unsupported render.rasterizer %q (use blank or pdftoppm)", c.Render.Rasterizer)
	}
	for _, v := range []struct{ key, color string }{
		{"ink.color", c.Ink.Color},
		{"highlight.color", c.Highlight.Color},
	} {
		if _, err := builder.ParseColor(v.color); err != nil {
			return fmt.Errorf("%s: %w", v.key, err)
		}
	}
	if c.Ink.Width <= 0 {
		return fmt.Errorf("ink.width must be > 0")
	}
	if c.Highlight.Opacity <= 0 || c.Highlight.Opacity > 1 {
		return fmt.Errorf("highlight.opacity must be in (0, 1]")
	}
	for name, f := range c.Fonts.Families {
		if f.Regular == "" {
			return fmt.Errorf("fonts.families.%s: regular is required", name)
		}
	}
	if c.MaxPDFMB <= 0 {
		return fmt.Errorf("max_pdf_mb must be > 0")
	}
	return nil
}

// MaxPDFBytes returns the upload limit in bytes.
func (c *Config) MaxPDFBytes() int64 { return int64(c.MaxPDFMB) * 1024 * 1024 }
