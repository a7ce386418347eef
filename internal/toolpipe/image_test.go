package toolpipe

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solidImage(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestNormalizeImage_SmallImagePassesThroughWithinLimits(t *testing.T) {
	src := solidImage(20, 10, color.RGBA{R: 200, G: 20, B: 20, A: 255})
	res := NormalizeImage(encodePNG(t, src), "image/png")

	if res.TextFallback != "" {
		t.Fatalf("unexpected fallback: %s", res.TextFallback)
	}
	if res.MediaType != "image/jpeg" {
		t.Fatalf("expected normalized output to be jpeg, got %q", res.MediaType)
	}
	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 20 || b.Dy() != 10 {
		t.Fatalf("expected bounds preserved for a small image, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestNormalizeImage_LargeImageDownscaledUnderLongestSideLimit(t *testing.T) {
	src := solidImage(2500, 1000, color.RGBA{G: 150, A: 255})
	res := NormalizeImage(encodePNG(t, src), "image/png")

	if res.TextFallback != "" {
		t.Fatalf("unexpected fallback: %s", res.TextFallback)
	}
	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	b := out.Bounds()
	if b.Dx() > MaxLongestSidePx || b.Dy() > MaxLongestSidePx {
		t.Fatalf("expected longest side <= %d, got %dx%d", MaxLongestSidePx, b.Dx(), b.Dy())
	}
	if len(res.Data) > MaxImageBytes {
		t.Fatalf("expected encoded size <= %d bytes, got %d", MaxImageBytes, len(res.Data))
	}
}

func TestNormalizeImage_DecodeFailureReturnsTextFallback(t *testing.T) {
	res := NormalizeImage([]byte("not an image"), "image/png")
	if res.TextFallback == "" {
		t.Fatal("expected a text fallback for undecodable data")
	}
	if res.Data != nil {
		t.Fatal("expected no image data alongside a text fallback")
	}
}

func TestNormalizeImage_JPEGOrientationIsApplied(t *testing.T) {
	src := solidImage(30, 10, color.RGBA{B: 255, A: 255}) // wider than tall
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	data := buf.Bytes()

	// Splice in a fake EXIF APP1 segment right after SOI declaring a 90deg
	// rotation (orientation 6), which should swap width/height in the result.
	exifSeg := buildFakeExifJPEG(6)
	appSegment := exifSeg[2 : len(exifSeg)-2] // strip the fake SOI/EOI wrapper
	spliced := append(append([]byte{}, data[:2]...), appSegment...)
	spliced = append(spliced, data[2:]...)

	res := NormalizeImage(spliced, "image/jpeg")
	if res.TextFallback != "" {
		t.Fatalf("unexpected fallback: %s", res.TextFallback)
	}
	out, _, err := image.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode normalized output: %v", err)
	}
	b := out.Bounds()
	if b.Dx() != 10 || b.Dy() != 30 {
		t.Fatalf("expected orientation 6 to rotate 30x10 into 10x30, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestRotate90CW_SwapsBoundsAndMapsCorner(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	marker := color.RGBA{R: 255, A: 255}
	src.Set(0, 0, marker) // top-left

	out := rotate90CW(src)
	b := out.Bounds()
	if b.Dx() != 2 || b.Dy() != 4 {
		t.Fatalf("expected bounds swapped to 2x4, got %dx%d", b.Dx(), b.Dy())
	}
	if r, g, bl, a := out.At(1, 0).RGBA(); r == 0 && g == 0 && bl == 0 && a == 0 {
		t.Fatal("expected top-left source pixel mapped into the rotated frame")
	}
}

func TestFlipHorizontal_MirrorsColumns(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.RGBA{R: 255, A: 255})
	src.Set(1, 0, color.RGBA{B: 255, A: 255})

	out := flipHorizontal(src)
	rr, _, _, _ := out.At(1, 0).RGBA()
	_, _, bb, _ := out.At(0, 0).RGBA()
	if rr == 0 {
		t.Fatal("expected red pixel mirrored to the right column")
	}
	if bb == 0 {
		t.Fatal("expected blue pixel mirrored to the left column")
	}
}
