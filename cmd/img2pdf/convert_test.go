package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"img2pdf/internal/config"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	first := writePNG(t, dir, "first.png", 40, 20)
	second := writePNG(t, dir, "second.png", 10, 30)
	output := filepath.Join(dir, "out.pdf")

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Log.Level = "error"

	var out bytes.Buffer
	require.NoError(t, convert(context.Background(), cfg, []string{first, second}, output, &out))

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	pages, err := api.PageCount(f, model.NewDefaultConfiguration())
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	assert.Contains(t, out.String(), "first.png")
	assert.Contains(t, out.String(), "2 pages")
}

func TestConvert_RejectsCorruptImage(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", 8, 8)
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o600))
	output := filepath.Join(dir, "out.pdf")

	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Log.Level = "error"

	err = convert(context.Background(), cfg, []string{good, bad}, output, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.png")
	assert.NoFileExists(t, output)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0, len(root.Commands()))
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "convert"}, names)
}
