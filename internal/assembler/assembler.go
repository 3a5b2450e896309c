// Package assembler turns an ordered list of normalized images into a PDF with
// one page per image, each page sized to its image.
package assembler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"go.uber.org/zap"

	"img2pdf/internal/fsutil"
	"img2pdf/internal/imaging"
)

const (
	// MaxPageSide is the largest page side, in points, PDF viewers are required to support.
	MaxPageSide = 14400
	// DefaultMaxDocumentBytes bounds the assembled output.
	DefaultMaxDocumentBytes = 512 << 20
)

var disableConfigDir sync.Once

// Options configures assembly limits.
type Options struct {
	MaxDocumentBytes int64
}

// Assembler holds no cross-call state and is safe for concurrent use.
type Assembler struct {
	opts Options
	log  *zap.Logger
}

// New constructs an Assembler. A zero MaxDocumentBytes takes the default.
func New(opts Options, log *zap.Logger) *Assembler {
	if opts.MaxDocumentBytes <= 0 {
		opts.MaxDocumentBytes = DefaultMaxDocumentBytes
	}
	if log == nil {
		log = zap.NewNop()
	}
	// pdfcpu would otherwise create a config directory under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)
	return &Assembler{opts: opts, log: log}
}

// Assemble returns the document built from paths, in order. Every path is
// checked before encoding starts; nothing partial is ever returned.
func (a *Assembler) Assemble(ctx context.Context, paths []string) ([]byte, error) {
	var buf bytes.Buffer
	if err := a.assemble(ctx, paths, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// AssembleFile writes the document to outPath. On failure outPath is left as
// it was, so a previous document is neither truncated nor half-replaced.
func (a *Assembler) AssembleFile(ctx context.Context, paths []string, outPath string) (int64, error) {
	return fsutil.WriteAtomic(outPath, func(w io.Writer) error {
		return a.assemble(ctx, paths, w)
	})
}

func (a *Assembler) assemble(ctx context.Context, paths []string, w io.Writer) error {
	if len(paths) == 0 {
		return ErrNoPages
	}
	if err := checkSources(paths); err != nil {
		return err
	}

	pages := make([]io.Reader, len(paths))
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := a.loadPage(p)
		if err != nil {
			return err
		}
		pages[i] = page
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	conf := model.NewDefaultConfiguration()

	lw := &limitWriter{w: w, limit: a.opts.MaxDocumentBytes}
	if err := api.ImportImages(nil, lw, pages, imp, conf); err != nil {
		if lw.exceeded {
			return fmt.Errorf("%w: output exceeds %d bytes", ErrDocumentTooLarge, a.opts.MaxDocumentBytes)
		}
		return fmt.Errorf("%w: %v", ErrAssembly, err)
	}

	a.log.Debug("document assembled", zap.Int("pages", len(paths)), zap.Int64("bytes", lw.n))
	return nil
}

// checkSources reports all missing inputs at once.
func checkSources(paths []string) error {
	var missing []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &SourceMissingError{Paths: missing}
	}
	return nil
}

// loadPage reads one image and returns it in a form pdfcpu embeds directly.
// JPEG and PNG pass through; other formats are re-encoded as PNG.
func (a *Assembler) loadPage(path string) (io.Reader, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &SourceMissingError{Paths: []string{path}}
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrAssembly, path, err)
	}

	cfg, format, err := imaging.DecodeConfig(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssembly, path, err)
	}
	if cfg.Width > MaxPageSide || cfg.Height > MaxPageSide {
		return nil, fmt.Errorf("%w: %s is %dx%d, pages are limited to %d",
			ErrDocumentTooLarge, path, cfg.Width, cfg.Height, MaxPageSide)
	}

	switch format {
	case imaging.FormatJPEG, imaging.FormatPNG:
		return bytes.NewReader(raw), nil
	}

	img, _, err := imaging.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrAssembly, path, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: transcode %s: %v", ErrAssembly, path, err)
	}
	return &buf, nil
}

// limitWriter fails writes once more than limit bytes were written.
type limitWriter struct {
	w        io.Writer
	limit    int64
	n        int64
	exceeded bool
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.n+int64(len(p)) > l.limit {
		l.exceeded = true
		return 0, ErrDocumentTooLarge
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}
