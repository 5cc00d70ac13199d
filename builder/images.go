package builder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register decoders
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/wudi/pdfoverlay/ir/raw"
)

// Image is an image XObject ready to be written. JPEG input is kept as is
// (DCTDecode); everything else is decoded to 8-bit RGB with an optional
// DeviceGray soft mask.
type Image struct {
	Width, Height    int
	ColorSpace       string
	BitsPerComponent int
	Filter           string // "DCTDecode" or "" (raw samples)
	Data             []byte
	SMask            *Image
	Format           string // sniffed source format
}

// ImageSize returns the pixel dimensions and format of encoded image data
// without decoding the samples.
func ImageSize(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", fmt.Errorf("sniff image: %w", err)
	}
	return cfg.Width, cfg.Height, format, nil
}

// LoadImage sniffs the format of data and prepares it for embedding.
func LoadImage(data []byte) (*Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("sniff image: %w", err)
	}
	if format == "jpeg" {
		if cs := jpegColorSpace(cfg.ColorModel); cs != "" {
			return &Image{
				Width:            cfg.Width,
				Height:           cfg.Height,
				ColorSpace:       cs,
				BitsPerComponent: 8,
				Filter:           "DCTDecode",
				Data:             data,
				Format:           format,
			}, nil
		}
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	img := FromImage(src)
	img.Format = format
	return img, nil
}

// CMYK JPEGs are re-encoded as RGB because Adobe-inverted data would need a
// Decode array we cannot infer reliably.
func jpegColorSpace(m color.Model) string {
	switch m {
	case color.GrayModel:
		return "DeviceGray"
	case color.YCbCrModel, color.RGBAModel:
		return "DeviceRGB"
	}
	return ""
}

// FromImage converts a decoded image to RGB samples plus a soft mask when any
// pixel is not fully opaque.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(nrgba, nrgba.Bounds(), src, bounds.Min, draw.Src)

	pixels := make([]byte, 0, w*h*3)
	alpha := make([]byte, 0, w*h)
	hasAlpha := false
	for i := 0; i < w*h; i++ {
		off := i * 4
		pixels = append(pixels, nrgba.Pix[off], nrgba.Pix[off+1], nrgba.Pix[off+2])
		a := nrgba.Pix[off+3]
		alpha = append(alpha, a)
		if a < 255 {
			hasAlpha = true
		}
	}

	img := &Image{Width: w, Height: h, ColorSpace: "DeviceRGB", BitsPerComponent: 8, Data: pixels}
	if hasAlpha {
		img.SMask = &Image{Width: w, Height: h, ColorSpace: "DeviceGray", BitsPerComponent: 8, Data: alpha}
	}
	return img
}

// Object builds the XObject stream. smask, when non-nil, is the reference of
// the already written soft mask.
func (img *Image) Object(smask *raw.ObjectRef) (*raw.StreamObj, error) {
	d := raw.Dict()
	d.Set("Type", raw.NameLiteral("XObject"))
	d.Set("Subtype", raw.NameLiteral("Image"))
	d.Set("Width", raw.NumberInt(int64(img.Width)))
	d.Set("Height", raw.NumberInt(int64(img.Height)))
	d.Set("ColorSpace", raw.NameLiteral(img.ColorSpace))
	d.Set("BitsPerComponent", raw.NumberInt(int64(img.BitsPerComponent)))
	if smask != nil {
		d.Set("SMask", raw.Ref(*smask))
	}
	if img.Filter != "" {
		d.Set("Filter", raw.NameLiteral(img.Filter))
		return raw.NewStream(d, img.Data), nil
	}
	return raw.NewFlateStream(d, img.Data)
}
