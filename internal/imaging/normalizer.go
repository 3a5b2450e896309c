// Package imaging decodes uploaded images and persists a normalized copy:
// bounded in size, in a format the document assembler accepts, and opaque
// whenever the target encoding has no alpha channel.
package imaging

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"img2pdf/internal/fsutil"
	"img2pdf/internal/model"
)

// Side and pixel bounds applied before any pixel buffer is allocated.
const (
	maxSide          = 32768
	defaultMaxPixels = 64 * 1024 * 1024
)

// Options configures normalization policy.
type Options struct {
	// MaxDimension is the longest side allowed after normalization.
	MaxDimension int
	// MaxPixels bounds width*height of the decoded source.
	MaxPixels int64
	// JPEGQuality is used for JPEG and lossy WEBP output.
	JPEGQuality int
}

// DefaultOptions returns the recommended policy: 2048px, 64MiP, quality 90.
func DefaultOptions() Options {
	return Options{
		MaxDimension: 2048,
		MaxPixels:    defaultMaxPixels,
		JPEGQuality:  90,
	}
}

// Normalizer is stateless across calls and safe for concurrent use.
type Normalizer struct {
	opts Options
	log  *zap.Logger
}

// NewNormalizer constructs a Normalizer. Zero option fields take their defaults.
func NewNormalizer(opts Options, log *zap.Logger) *Normalizer {
	def := DefaultOptions()
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = def.MaxDimension
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = def.MaxPixels
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{opts: opts, log: log}
}

// Normalize decodes raw, applies the size and color-mode policy and writes exactly
// one file under dir. originalName only contributes its extension to the format
// decision. On error nothing is left in dir.
func (n *Normalizer) Normalize(ctx context.Context, raw []byte, originalName, dir string) (*model.NormalizedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, src, err := DecodeConfig(raw)
	if err != nil {
		return nil, err
	}
	if err := n.checkBounds(cfg.Width, cfg.Height); err != nil {
		return nil, err
	}

	img, _, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if err := n.checkBounds(b.Dx(), b.Dy()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := TargetFormat(src, filepath.Ext(originalName))
	out := &model.NormalizedImage{
		Format:       string(target),
		SourceFormat: string(src),
		Width:        b.Dx(),
		Height:       b.Dy(),
	}

	if w, h, ok := scaledSize(b.Dx(), b.Dy(), n.opts.MaxDimension); ok {
		img = resize(img, w, h)
		out.Width, out.Height, out.Resized = w, h, true
	}

	if target == FormatJPEG && hasAlpha(img) {
		flat, name, err := makeOpaque(img, opaqueConversions)
		if err != nil {
			return nil, err
		}
		img = flat
		out.Conversion = name
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(dir, uuid.NewString()+target.Ext())
	var size int64
	if target == src && !out.Resized && out.Conversion == "" {
		size, err = fsutil.WriteAtomic(path, func(w io.Writer) error {
			_, err := w.Write(raw)
			return err
		})
	} else {
		size, err = fsutil.WriteAtomic(path, func(w io.Writer) error {
			if err := encode(w, img, target, n.opts.JPEGQuality); err != nil {
				return fmt.Errorf("%w: encode %s: %v", ErrConversion, target, err)
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	out.Path = path
	out.Bytes = size

	n.log.Debug("image normalized",
		zap.String("source_format", out.SourceFormat),
		zap.String("format", out.Format),
		zap.String("size", out.Size()),
		zap.Bool("resized", out.Resized),
		zap.String("conversion", out.Conversion),
	)
	return out, nil
}

func (n *Normalizer) checkBounds(w, h int) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("%w: invalid bounds %dx%d", ErrDecode, w, h)
	}
	if w > maxSide || h > maxSide {
		return fmt.Errorf("%w: %dx%d exceeds %d per side", ErrImageTooLarge, w, h, maxSide)
	}
	if px := int64(w) * int64(h); px > n.opts.MaxPixels {
		return fmt.Errorf("%w: %d pixels exceeds %d", ErrImageTooLarge, px, n.opts.MaxPixels)
	}
	return nil
}
