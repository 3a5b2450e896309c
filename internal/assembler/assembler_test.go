package assembler

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeImage(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	switch filepath.Ext(name) {
	case ".jpg":
		require.NoError(t, jpeg.Encode(&buf, img, nil))
	case ".gif":
		pal := image.NewPaletted(img.Bounds(), color.Palette{color.White, color.Black})
		require.NoError(t, gif.Encode(&buf, pal, nil))
	default:
		require.NoError(t, png.Encode(&buf, img))
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func pageDims(t *testing.T, doc []byte) [][2]float64 {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	n, err := api.PageCount(bytes.NewReader(doc), conf)
	require.NoError(t, err)
	dims, err := api.PageDims(bytes.NewReader(doc), conf)
	require.NoError(t, err)
	require.Len(t, dims, n)

	out := make([][2]float64, len(dims))
	for i, d := range dims {
		out[i] = [2]float64{d.Width, d.Height}
	}
	return out
}

func TestAssemble_OnePagePerImageInOrder(t *testing.T) {
	dir := t.TempDir()
	paths := []string{
		writeImage(t, dir, "a.png", 100, 50),
		writeImage(t, dir, "b.jpg", 30, 60),
		writeImage(t, dir, "c.gif", 40, 40),
		writeImage(t, dir, "d.png", 80, 20),
	}

	doc, err := New(Options{}, nil).Assemble(context.Background(), paths)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))

	dims := pageDims(t, doc)
	want := [][2]float64{{100, 50}, {30, 60}, {40, 40}, {80, 20}}
	require.Len(t, dims, len(want))
	for i := range want {
		assert.InDelta(t, want[i][0], dims[i][0], 0.5, "page %d width", i+1)
		assert.InDelta(t, want[i][1], dims[i][1], 0.5, "page %d height", i+1)
	}
}

func TestAssemble_MissingSources(t *testing.T) {
	dir := t.TempDir()
	ok := writeImage(t, dir, "ok.png", 10, 10)
	gone1 := filepath.Join(dir, "gone1.png")
	gone2 := filepath.Join(dir, "gone2.png")

	doc, err := New(Options{}, nil).Assemble(context.Background(), []string{ok, gone1, gone2})

	assert.Nil(t, doc)
	assert.ErrorIs(t, err, ErrSourceMissing)
	var missing *SourceMissingError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{gone1, gone2}, missing.Paths)
}

func TestAssemble_DirectoryIsNotASource(t *testing.T) {
	dir := t.TempDir()

	_, err := New(Options{}, nil).Assemble(context.Background(), []string{dir})

	assert.ErrorIs(t, err, ErrSourceMissing)
}

func TestAssemble_Empty(t *testing.T) {
	_, err := New(Options{}, nil).Assemble(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoPages)
}

func TestAssemble_PageTooLarge(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, MaxPageSide+1, 1))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "wide.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	_, err := New(Options{}, nil).Assemble(context.Background(), []string{path})

	assert.ErrorIs(t, err, ErrDocumentTooLarge)
}

func TestAssembleFile(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeImage(t, dir, "a.png", 20, 10), writeImage(t, dir, "b.png", 10, 20)}
	out := filepath.Join(dir, "doc.pdf")

	n, err := New(Options{}, nil).AssembleFile(context.Background(), paths, out)
	require.NoError(t, err)

	doc, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(doc)), n)
	assert.Len(t, pageDims(t, doc), 2)
}

func TestAssembleFile_TooLargeLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeImage(t, dir, "a.png", 64, 64)}
	out := filepath.Join(dir, "doc.pdf")

	_, err := New(Options{MaxDocumentBytes: 64}, nil).AssembleFile(context.Background(), paths, out)

	assert.ErrorIs(t, err, ErrDocumentTooLarge)
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAssembleFile_FailureKeepsPreviousDocument(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "doc.pdf")
	require.NoError(t, os.WriteFile(out, []byte("previous"), 0o600))

	_, err := New(Options{}, nil).AssembleFile(context.Background(), []string{filepath.Join(dir, "missing.png")}, out)
	require.Error(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(got))
}

func TestAssemble_Cancelled(t *testing.T) {
	dir := t.TempDir()
	paths := []string{writeImage(t, dir, "a.png", 10, 10)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{}, nil).Assemble(ctx, paths)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestLimitWriter(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, limit: 5}

	n, err := lw.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = lw.Write([]byte("def"))
	assert.ErrorIs(t, err, ErrDocumentTooLarge)
	assert.True(t, lw.exceeded)
	assert.Equal(t, "abc", buf.String())
}
