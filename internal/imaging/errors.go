package imaging

import "errors"

var (
	// ErrDecode reports unreadable, corrupt or unrecognized image data.
	ErrDecode = errors.New("image decode failed")
	// ErrImageTooLarge reports an image whose declared size exceeds the pixel bound.
	ErrImageTooLarge = errors.New("image exceeds size limit")
	// ErrConversion reports a color-mode or format coercion that failed after every fallback.
	ErrConversion = errors.New("image conversion failed")

	errUnsupportedTarget = errors.New("unsupported target format")
	errEmptyImage        = errors.New("image has empty bounds")
)
