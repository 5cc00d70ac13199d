package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wudi/pdfoverlay/document"
)

// Rasterizer turns one page of a document into pixels at scale pixels per
// page unit. The result shows the page as displayed, with /Rotate applied.
type Rasterizer interface {
	RasterizePage(ctx context.Context, doc *document.Handle, page int, scale float64) (image.Image, error)
}

// PixelSize is the surface size of page at scale.
func PixelSize(doc *document.Handle, page int, scale float64) image.Point {
	w, h := doc.PageSize(page)
	return image.Pt(int(math.Ceil(w*scale)), int(math.Ceil(h*scale)))
}

// BlankRasterizer renders every page as a white sheet. It lets the editor
// run without a renderer installed.
type BlankRasterizer struct{}

func (BlankRasterizer) RasterizePage(_ context.Context, doc *document.Handle, page int, scale float64) (image.Image, error) {
	size := PixelSize(doc, page, scale)
	img := image.NewRGBA(image.Rectangle{Max: size})
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img, nil
}

// CommandRasterizer renders pages with poppler's pdftoppm.
type CommandRasterizer struct {
	// Path is the pdftoppm executable; empty means look it up in PATH.
	Path string
}

func (c CommandRasterizer) RasterizePage(ctx context.Context, doc *document.Handle, page int, scale float64) (image.Image, error) {
	if page < 1 || page > doc.PageCount() {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, doc.PageCount())
	}
	bin := c.Path
	if bin == "" {
		bin = "pdftoppm"
	}
	dir, err := os.MkdirTemp("", "pdfoverlay-render-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(in, doc.Bytes(), 0o600); err != nil {
		return nil, err
	}
	root := filepath.Join(dir, "page")
	n := strconv.Itoa(page)
	dpi := strconv.FormatFloat(72*scale, 'f', 2, 64)
	cmd := exec.CommandContext(ctx, bin, "-f", n, "-l", n, "-r", dpi, "-png", "-singlefile", in, root)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, strings.TrimSpace(stderr.String()))
	}
	f, err := os.Open(root + ".png")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}
