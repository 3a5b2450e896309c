package imaging

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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func opaqueRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	return img
}

func decodeFile(t *testing.T, path string) (image.Image, string) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, format, err := image.Decode(f)
	require.NoError(t, err)
	return img, format
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNormalize_PreservesSafeImage(t *testing.T) {
	dir := t.TempDir()
	raw := encodePNG(t, opaqueRGBA(300, 200))
	n := NewNormalizer(DefaultOptions(), nil)

	out, err := n.Normalize(context.Background(), raw, "holiday.png", dir)
	require.NoError(t, err)

	assert.Equal(t, 300, out.Width)
	assert.Equal(t, 200, out.Height)
	assert.Equal(t, "png", out.Format)
	assert.False(t, out.Resized)
	assert.Empty(t, out.Conversion)
	assert.Equal(t, dir, filepath.Dir(out.Path))

	written, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	assert.Equal(t, raw, written)

	img, format := decodeFile(t, out.Path)
	assert.Equal(t, "png", format)
	assert.IsType(t, &image.RGBA{}, img)
	assert.Equal(t, int64(len(raw)), out.Bytes)
}

func TestNormalize_ResizesLongSide(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"landscape", 4000, 2000, 2048, 1024},
		{"portrait", 1500, 3000, 1024, 2048},
		{"odd ratio truncates", 3000, 1001, 2048, 683},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			raw := encodePNG(t, image.NewGray(image.Rect(0, 0, tt.width, tt.height)))
			n := NewNormalizer(DefaultOptions(), nil)

			out, err := n.Normalize(context.Background(), raw, "big.png", dir)
			require.NoError(t, err)

			assert.True(t, out.Resized)
			assert.Equal(t, tt.wantW, out.Width)
			assert.Equal(t, tt.wantH, out.Height)

			img, _ := decodeFile(t, out.Path)
			assert.Equal(t, tt.wantW, img.Bounds().Dx())
			assert.Equal(t, tt.wantH, img.Bounds().Dy())
		})
	}
}

func TestNormalize_JPEGStaysJPEG(t *testing.T) {
	dir := t.TempDir()
	raw := encodeJPEG(t, opaqueRGBA(120, 80))

	out, err := NewNormalizer(DefaultOptions(), nil).Normalize(context.Background(), raw, "IMG_0001.JPG", dir)
	require.NoError(t, err)

	assert.Equal(t, "jpeg", out.Format)
	assert.True(t, strings.HasSuffix(out.Path, ".jpg"))
	_, format := decodeFile(t, out.Path)
	assert.Equal(t, "jpeg", format)
}

func TestNormalize_UncommonExtensionBecomesPNG(t *testing.T) {
	dir := t.TempDir()
	raw := encodeJPEG(t, opaqueRGBA(64, 64))

	out, err := NewNormalizer(DefaultOptions(), nil).Normalize(context.Background(), raw, "scan.jfif", dir)
	require.NoError(t, err)

	assert.Equal(t, "png", out.Format)
	assert.Equal(t, "jpeg", out.SourceFormat)
	_, format := decodeFile(t, out.Path)
	assert.Equal(t, "png", format)
}

func TestNormalize_GIFPreserved(t *testing.T) {
	dir := t.TempDir()
	pal := image.NewPaletted(image.Rect(0, 0, 10, 10), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, pal, nil))

	out, err := NewNormalizer(DefaultOptions(), nil).Normalize(context.Background(), buf.Bytes(), "anim.gif", dir)
	require.NoError(t, err)

	assert.Equal(t, "gif", out.Format)
	assert.Empty(t, out.Conversion)
}

func TestNormalize_IgnoresClientPath(t *testing.T) {
	dir := t.TempDir()
	raw := encodePNG(t, opaqueRGBA(8, 8))

	out, err := NewNormalizer(DefaultOptions(), nil).Normalize(context.Background(), raw, "../../etc/passwd.png", dir)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(out.Path))
	assert.NotContains(t, filepath.Base(out.Path), "passwd")
	assert.Len(t, dirEntries(t, dir), 1)
}

func TestNormalize_Failures(t *testing.T) {
	tests := []struct {
		name    string
		raw     func(t *testing.T) []byte
		opts    Options
		ctx     func() context.Context
		wantErr error
	}{
		{
			name:    "garbage",
			raw:     func(t *testing.T) []byte { return []byte("definitely not an image") },
			wantErr: ErrDecode,
		},
		{
			name: "truncated png",
			raw: func(t *testing.T) []byte {
				full := encodePNG(t, opaqueRGBA(50, 50))
				return full[:len(full)/2]
			},
			wantErr: ErrDecode,
		},
		{
			name: "fake heic header",
			raw: func(t *testing.T) []byte {
				return append([]byte{0, 0, 0, 0x18}, []byte("ftypheic\x00\x00\x00\x00mif1heic")...)
			},
			wantErr: ErrDecode,
		},
		{
			name:    "pixel bomb",
			raw:     func(t *testing.T) []byte { return encodePNG(t, image.NewGray(image.Rect(0, 0, 100, 100))) },
			opts:    Options{MaxPixels: 5000},
			wantErr: ErrImageTooLarge,
		},
		{
			name: "cancelled",
			raw:  func(t *testing.T) []byte { return encodePNG(t, opaqueRGBA(4, 4)) },
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			wantErr: context.Canceled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()
			if tt.ctx != nil {
				ctx = tt.ctx()
			}

			out, err := NewNormalizer(tt.opts, nil).Normalize(ctx, tt.raw(t), "input.png", dir)

			assert.Nil(t, out)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, dirEntries(t, dir))
		})
	}
}

func TestNormalize_MissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	raw := encodePNG(t, opaqueRGBA(4, 4))

	_, err := NewNormalizer(DefaultOptions(), nil).Normalize(context.Background(), raw, "a.png", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage error")
}

func TestScaledSize(t *testing.T) {
	tests := []struct {
		w, h, limit  int
		wantW, wantH int
		resized      bool
	}{
		{4000, 2000, 2048, 2048, 1024, true},
		{2048, 2048, 2048, 2048, 2048, false},
		{1000, 500, 2048, 1000, 500, false},
		{9000, 3, 2048, 2048, 1, true},
		{3, 9000, 2048, 1, 2048, true},
	}
	for _, tt := range tests {
		w, h, resized := scaledSize(tt.w, tt.h, tt.limit)
		assert.Equal(t, tt.wantW, w)
		assert.Equal(t, tt.wantH, h)
		assert.Equal(t, tt.resized, resized)
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return raw
}

func TestNormalize_HEICBecomesJPEG(t *testing.T) {
	for _, name := range []string{"test.heic", "gray.heic"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			raw := readFixture(t, name)
			cfg, src, err := DecodeConfig(raw)
			require.NoError(t, err)
			require.Equal(t, FormatHEIC, src)
			require.LessOrEqual(t, max(cfg.Width, cfg.Height), DefaultOptions().MaxDimension)

			out, err := NewNormalizer(DefaultOptions(), nil).Normalize(context.Background(), raw, "IMG_0042.HEIC", dir)
			require.NoError(t, err)

			assert.Equal(t, "heic", out.SourceFormat)
			assert.Equal(t, "jpeg", out.Format)
			assert.Equal(t, ".jpg", filepath.Ext(out.Path))
			assert.False(t, out.Resized)
			assert.Equal(t, cfg.Width, out.Width)
			assert.Equal(t, cfg.Height, out.Height)

			img, format := decodeFile(t, out.Path)
			assert.Equal(t, "jpeg", format)
			assert.Equal(t, cfg.Width, img.Bounds().Dx())
			assert.Equal(t, cfg.Height, img.Bounds().Dy())
			assert.Len(t, dirEntries(t, dir), 1)
		})
	}
}

func TestNormalize_HEICResized(t *testing.T) {
	dir := t.TempDir()
	raw := readFixture(t, "test.heic")
	cfg, _, err := DecodeConfig(raw)
	require.NoError(t, err)
	limit := max(cfg.Width, cfg.Height) / 2
	wantW, wantH, resized := scaledSize(cfg.Width, cfg.Height, limit)
	require.True(t, resized)

	opts := DefaultOptions()
	opts.MaxDimension = limit
	out, err := NewNormalizer(opts, nil).Normalize(context.Background(), raw, "large.heic", dir)
	require.NoError(t, err)

	assert.True(t, out.Resized)
	assert.Equal(t, "jpeg", out.Format)
	assert.Equal(t, wantW, out.Width)
	assert.Equal(t, wantH, out.Height)
	img, format := decodeFile(t, out.Path)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, limit, max(img.Bounds().Dx(), img.Bounds().Dy()))
}
