package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/wudi/pdfoverlay/annotation"
	"github.com/wudi/pdfoverlay/coords"
)

// script is the bake input: annotations to replay onto a document, in
// viewport units of the displayed page.
type script struct {
	Elements   []scriptElement   `yaml:"elements"`
	Strokes    []scriptStroke    `yaml:"strokes"`
	Highlights []scriptHighlight `yaml:"highlights"`
}

type scriptElement struct {
	Page    int                  `yaml:"page"`
	X       float64              `yaml:"x"`
	Y       float64              `yaml:"y"`
	Kind    string               `yaml:"kind"`
	Content string               `yaml:"content"`
	Style   annotation.TextStyle `yaml:"style"`
	// File is an image path, relative to the script.
	File      string  `yaml:"file"`
	Width     float64 `yaml:"width"`
	Height    float64 `yaml:"height"`
	LineWidth float64 `yaml:"line_width"`
}

type scriptStroke struct {
	Page   int          `yaml:"page"`
	Points [][2]float64 `yaml:"points"`
}

type scriptHighlight struct {
	Page int        `yaml:"page"`
	Rect [4]float64 `yaml:"rect"` // x, y, w, h
}

func loadScript(path string) (*script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := parseScript(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

func parseScript(data []byte) (*script, error) {
	var s script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (e scriptElement) payload(dir string) (annotation.Payload, error) {
	switch e.Kind {
	case "text":
		return annotation.Text{Content: e.Content, Style: e.Style}, nil
	case "date":
		return annotation.Date{Content: e.Content, Style: e.Style}, nil
	case "signature":
		return annotation.Signature{Content: e.Content, Size: e.Style.Size, Color: e.Style.Color}, nil
	case "tick":
		return annotation.Tick{Mark: annotation.Mark{Size: e.Style.Size, Color: e.Style.Color}}, nil
	case "cross":
		return annotation.Cross{Mark: annotation.Mark{Size: e.Style.Size, Color: e.Style.Color}}, nil
	case "shape", "circle":
		return annotation.Shape{
			Shape:       annotation.ShapeCircle,
			Width:       e.Width,
			Height:      e.Height,
			StrokeColor: e.Style.Color,
			LineWidth:   e.LineWidth,
		}, nil
	case "image":
		if e.File == "" {
			return nil, fmt.Errorf("image element needs a file")
		}
		path := e.File
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return annotation.Image{Data: data, Width: e.Width, Height: e.Height}, nil
	}
	return nil, fmt.Errorf("unknown element kind %q", e.Kind)
}

// apply replays the script onto m. dir resolves relative image paths.
func (s *script) apply(m *annotation.Model, dir string) error {
	checkPage := func(what string, i, page int) error {
		if page < 1 || page > m.PageCount() {
			return fmt.Errorf("%s %d: page %d out of range [1, %d]", what, i, page, m.PageCount())
		}
		return nil
	}
	for i, e := range s.Elements {
		if err := checkPage("element", i, e.Page); err != nil {
			return err
		}
		p, err := e.payload(dir)
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
		m.AddElement(e.Page, coords.Point{X: e.X, Y: e.Y}, p)
	}
	for i, st := range s.Strokes {
		if err := checkPage("stroke", i, st.Page); err != nil {
			return err
		}
		for j, pt := range st.Points {
			kind := annotation.Draw
			if j == 0 {
				kind = annotation.Begin
			}
			m.AddStrokePoint(st.Page, coords.Point{X: pt[0], Y: pt[1]}, kind)
		}
	}
	for i, h := range s.Highlights {
		if err := checkPage("highlight", i, h.Page); err != nil {
			return err
		}
		m.AddHighlight(h.Page, coords.Rect{X: h.Rect[0], Y: h.Rect[1], W: h.Rect[2], H: h.Rect[3]})
	}
	return nil
}
