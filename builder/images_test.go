package builder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/wudi/pdfoverlay/ir/raw"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestLoadImageJPEGPassThrough(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	img, err := LoadImage(buf.Bytes())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if img.Filter != "DCTDecode" || img.Format != "jpeg" || img.ColorSpace != "DeviceRGB" {
		t.Fatalf("unexpected image %+v", img)
	}
	if !bytes.Equal(img.Data, buf.Bytes()) {
		t.Fatalf("jpeg bytes were not passed through")
	}
	if img.Width != 4 || img.Height != 3 {
		t.Fatalf("size %dx%d", img.Width, img.Height)
	}
}

func TestLoadImagePNGWithAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})
	src.Set(1, 1, color.NRGBA{B: 255, A: 10})
	img, err := LoadImage(encodePNG(t, src))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if img.Format != "png" || img.Filter != "" {
		t.Fatalf("unexpected %+v", img)
	}
	if len(img.Data) != 2*2*3 || img.Data[0] != 255 {
		t.Fatalf("bad samples %v", img.Data)
	}
	if img.SMask == nil || img.SMask.ColorSpace != "DeviceGray" || img.SMask.Data[3] != 10 {
		t.Fatalf("expected soft mask, got %+v", img.SMask)
	}

	obj, err := img.Object(&raw.ObjectRef{Num: 12})
	if err != nil {
		t.Fatalf("object: %v", err)
	}
	if f, _ := obj.Dict.Get("Filter"); f != raw.NameLiteral("FlateDecode") {
		t.Fatalf("filter %v", f)
	}
	if sm, _ := obj.Dict.Get("SMask"); sm != raw.Ref(raw.ObjectRef{Num: 12}) {
		t.Fatalf("smask %v", sm)
	}
}

func TestLoadImageOpaquePNGHasNoMask(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 3, 1))
	for x := 0; x < 3; x++ {
		src.Set(x, 0, color.RGBA{G: 200, A: 255})
	}
	img, err := LoadImage(encodePNG(t, src))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if img.SMask != nil {
		t.Fatalf("unexpected soft mask")
	}
}

func TestLoadImageRejectsGarbage(t *testing.T) {
	if _, err := LoadImage([]byte("definitely not an image")); err == nil {
		t.Fatalf("expected error")
	}
}
