package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// conversion is one way of turning an image into an opaque RGB image.
type conversion struct {
	name  string
	apply func(image.Image) (image.Image, error)
}

// opaqueConversions are tried in order; the first success wins.
var opaqueConversions = []conversion{
	{name: "flatten", apply: flattenOnWhite},
	{name: "convert", apply: convertRGB},
}

// hasAlpha reports whether img is paletted or carries non-opaque pixels.
func hasAlpha(img image.Image) bool {
	if _, ok := img.(*image.Paletted); ok {
		return true
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	switch img.ColorModel() {
	case color.YCbCrModel, color.GrayModel, color.Gray16Model, color.CMYKModel:
		return false
	}
	return true
}

// makeOpaque runs strategies in order and returns the first result together
// with the name of the strategy that produced it.
func makeOpaque(img image.Image, strategies []conversion) (image.Image, string, error) {
	var errs []error
	for _, s := range strategies {
		out, err := s.apply(img)
		if err == nil {
			return out, s.name, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return nil, "", fmt.Errorf("%w: %w", ErrConversion, errors.Join(errs...))
}

// flattenOnWhite alpha-composites img over an opaque white canvas.
func flattenOnWhite(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errEmptyImage
	}
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst, nil
}

// convertRGB copies color channels and discards alpha.
func convertRGB(img image.Image) (image.Image, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, errEmptyImage
	}
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			dst.SetRGBA(x, y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return dst, nil
}

// scaledSize fits w×h inside a limit×limit box keeping the aspect ratio.
// The shorter side is truncated, never below one pixel.
func scaledSize(w, h, limit int) (int, int, bool) {
	if w <= limit && h <= limit {
		return w, h, false
	}
	if w >= h {
		nh := int(int64(h) * int64(limit) / int64(w))
		if nh < 1 {
			nh = 1
		}
		return limit, nh, true
	}
	nw := int(int64(w) * int64(limit) / int64(h))
	if nw < 1 {
		nw = 1
	}
	return nw, limit, true
}

// resize resamples src to w×h with a Catmull-Rom filter.
func resize(src image.Image, w, h int) image.Image {
	r := image.Rect(0, 0, w, h)
	var dst draw.Image
	switch src.(type) {
	case *image.Gray:
		dst = image.NewGray(r)
	case *image.Gray16:
		dst = image.NewGray16(r)
	case *image.YCbCr, *image.RGBA, *image.CMYK:
		dst = image.NewRGBA(r)
	default:
		dst = image.NewNRGBA(r)
	}
	draw.CatmullRom.Scale(dst, r, src, src.Bounds(), draw.Src, nil)
	return dst
}
