package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/gen2brain/heic"
	"github.com/gen2brain/webp"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Format is an image encoding known to the normalizer.
type Format string

const (
	FormatUnknown Format = ""
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatBMP     Format = "bmp"
	FormatTIFF    Format = "tiff"
	FormatWEBP    Format = "webp"
	FormatHEIC    Format = "heic"
)

// Ext returns the file extension used when persisting f.
func (f Format) Ext() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatTIFF:
		return ".tiff"
	case FormatUnknown:
		return ""
	default:
		return "." + string(f)
	}
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatHEIC {
		return "image/heic"
	}
	if f == FormatUnknown {
		return "application/octet-stream"
	}
	return "image/" + string(f)
}

// safeExtensions are the client extensions whose format is kept as-is.
var safeExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".tif":  true,
	".tiff": true,
	".webp": true,
}

// heifBrands are the ISO-BMFF major brands of HEIC/HEIF still images and sequences.
var heifBrands = map[string]bool{
	"heic": true, "heix": true, "hevc": true, "hevx": true,
	"heim": true, "heis": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true,
}

// DetectFormat identifies the encoding of data from its leading bytes.
func DetectFormat(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return FormatPNG
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case bytes.HasPrefix(data, []byte("BM")):
		return FormatBMP
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return FormatTIFF
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWEBP
	case len(data) >= 12 && string(data[4:8]) == "ftyp" && heifBrands[string(data[8:12])]:
		return FormatHEIC
	}
	return FormatUnknown
}

// TargetFormat decides the persisted encoding for an image decoded as detected
// and uploaded with the given file extension. It is the only place this
// decision is made.
func TargetFormat(detected Format, originalExt string) Format {
	if detected == FormatHEIC {
		return FormatJPEG
	}
	if !safeExtensions[strings.ToLower(originalExt)] {
		return FormatPNG
	}
	return detected
}

type codec struct {
	decodeConfig func(io.Reader) (image.Config, error)
	decode       func(io.Reader) (image.Image, error)
}

var codecs = map[Format]codec{
	FormatJPEG: {jpeg.DecodeConfig, jpeg.Decode},
	FormatPNG:  {png.DecodeConfig, png.Decode},
	FormatGIF:  {gif.DecodeConfig, gif.Decode},
	FormatBMP:  {bmp.DecodeConfig, bmp.Decode},
	FormatTIFF: {tiff.DecodeConfig, tiff.Decode},
	FormatWEBP: {webp.DecodeConfig, webp.Decode},
	FormatHEIC: {heic.DecodeConfig, heic.Decode},
}

// DecodeConfig reads only the header of raw, so dimensions can be checked
// before any pixel buffer is allocated.
func DecodeConfig(raw []byte) (image.Config, Format, error) {
	f := DetectFormat(raw)
	c, ok := codecs[f]
	if !ok {
		return image.Config{}, f, fmt.Errorf("%w: unrecognized image data", ErrDecode)
	}
	cfg, err := guard(func() (image.Config, error) { return c.decodeConfig(bytes.NewReader(raw)) })
	if err != nil {
		return image.Config{}, f, fmt.Errorf("%w: %s header: %v", ErrDecode, f, err)
	}
	return cfg, f, nil
}

// Decode decodes raw in whichever supported format it is encoded.
func Decode(raw []byte) (image.Image, Format, error) {
	f := DetectFormat(raw)
	c, ok := codecs[f]
	if !ok {
		return nil, f, fmt.Errorf("%w: unrecognized image data", ErrDecode)
	}
	img, err := guard(func() (image.Image, error) { return c.decode(bytes.NewReader(raw)) })
	if err != nil {
		return nil, f, fmt.Errorf("%w: %s: %v", ErrDecode, f, err)
	}
	return img, f, nil
}

// guard runs a codec call, turning a decoder panic into an error.
func guard[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			out, err = zero, fmt.Errorf("decoder panic: %v", r)
		}
	}()
	return fn()
}

// encode writes img to w in format f.
func encode(w io.Writer, img image.Image, f Format, jpegQuality int) error {
	switch f {
	case FormatJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: jpegQuality})
	case FormatPNG:
		return png.Encode(w, img)
	case FormatGIF:
		return gif.Encode(w, img, nil)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatWEBP:
		return webp.Encode(w, img, webp.Options{Quality: jpegQuality})
	default:
		return errUnsupportedTarget
	}
}
