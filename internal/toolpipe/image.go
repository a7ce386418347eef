package toolpipe

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register PNG decoding for image.Decode
)

const (
	// MaxLongestSidePx is the longest-edge cap normalized images must meet
	// (spec §4.8 step 2 / §4.9).
	MaxLongestSidePx = 2000
	// MaxImageBytes is the encoded-size cap normalized images must meet.
	MaxImageBytes = 5 * 1024 * 1024
)

// sizes and qualities form the progressive re-encode grid: largest/highest
// first, shrinking until both MaxLongestSidePx and MaxImageBytes are
// satisfied. No third-party image codec or EXIF library appears anywhere
// in the example corpus, so this whole file stays on image/jpeg,
// image/png, and a hand-rolled resize instead of reaching for one.
var (
	gridSizes     = []int{2000, 1600, 1200, 900, 600, 400}
	gridQualities = []int{85, 75, 60, 45, 30}
)

// NormalizeResult is the outcome of normalizing one inbound image block.
type NormalizeResult struct {
	// Data and MediaType are set when normalization produced a usable image.
	Data      []byte
	MediaType string
	// TextFallback is set instead of Data when the image could not be
	// decoded at all; the caller should replace the block with this text.
	TextFallback string
	// Warning is set when the best achievable attempt still exceeds
	// MaxImageBytes (only possible for pathological single-pixel-huge
	// inputs); Data is still populated with the smallest attempt made.
	Warning string
}

// NormalizeImage decodes data, applies EXIF orientation (JPEG only), and
// re-encodes through the size/quality grid until the result satisfies
// longest-side and byte-size limits. On decode failure it returns a text
// fallback block instead of an error, per spec §4.8 step 2: a tool result
// or inbound image that can't be decoded becomes an explanatory note
// rather than aborting the turn.
func NormalizeImage(data []byte, mediaType string) NormalizeResult {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return NormalizeResult{
			TextFallback: fmt.Sprintf("[image could not be decoded (%s, %d bytes): %v]", mediaType, len(data), err),
		}
	}

	if mediaType == "image/jpeg" || mediaType == "image/jpg" {
		if o := exifOrientation(data); o != 1 {
			img = applyOrientation(img, o)
		}
	}

	b := img.Bounds()
	longest := b.Dx()
	if b.Dy() > longest {
		longest = b.Dy()
	}

	var best []byte
	for _, side := range gridSizes {
		if side > longest {
			side = longest
		}
		scaled := img
		if side < longest {
			scaled = resizeLongestSide(img, side)
		}
		for _, q := range gridQualities {
			buf, encErr := encodeJPEG(scaled, q)
			if encErr != nil {
				continue
			}
			best = buf
			if sb := scaled.Bounds(); maxInt(sb.Dx(), sb.Dy()) <= MaxLongestSidePx && len(buf) <= MaxImageBytes {
				return NormalizeResult{Data: buf, MediaType: "image/jpeg"}
			}
		}
		if side <= 400 {
			break
		}
	}

	if best == nil {
		return NormalizeResult{
			TextFallback: fmt.Sprintf("[image (%s, %d bytes) could not be re-encoded within size limits]", mediaType, len(data)),
		}
	}
	return NormalizeResult{
		Data:      best,
		MediaType: "image/jpeg",
		Warning:   fmt.Sprintf("image normalized to %d bytes, still above the %d byte target", len(best), MaxImageBytes),
	}
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// resizeLongestSide scales img so its longest side equals target, using
// nearest-neighbor sampling.
func resizeLongestSide(img image.Image, target int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || target <= 0 {
		return img
	}
	var nw, nh int
	if w >= h {
		nw = target
		nh = int(float64(h) * float64(target) / float64(w))
	} else {
		nh = target
		nw = int(float64(w) * float64(target) / float64(h))
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

// applyOrientation rotates/flips img per an EXIF orientation tag (1-8).
func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return flipHorizontal(img)
	case 3:
		return rotate180(img)
	case 4:
		return flipVertical(img)
	case 5:
		return flipVertical(rotate90CW(img))
	case 6:
		return rotate90CW(img)
	case 7:
		return flipVertical(rotate270CW(img))
	case 8:
		return rotate270CW(img)
	default:
		return img
	}
}

func rotate90CW(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate270CW(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, h, w))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func rotate180(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func flipHorizontal(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(w-1-x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func flipVertical(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
