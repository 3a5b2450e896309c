// Package fsutil holds the filesystem helpers shared by the pipeline stages.
package fsutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"img2pdf/internal/model"
)

// tempPattern marks in-flight files; they never carry a final extension.
const tempPattern = ".partial-*"

// WriteAtomic writes through a temp file in the destination directory and
// renames it into place, returning the final size. The temp file is removed on
// every failure path, so path either holds the complete content or is untouched.
// Filesystem failures wrap model.ErrStorage; errors from write are returned as is.
func WriteAtomic(path string, write func(io.Writer) error) (int64, error) {
	f, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return 0, fmt.Errorf("%w: create temp file: %v", model.ErrStorage, err)
	}
	tmp := f.Name()
	fail := func(err error) (int64, error) {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}

	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		return fail(err)
	}
	if err := bw.Flush(); err != nil {
		return fail(fmt.Errorf("%w: write %s: %v", model.ErrStorage, path, err))
	}
	info, err := f.Stat()
	if err != nil {
		return fail(fmt.Errorf("%w: stat %s: %v", model.ErrStorage, path, err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: close %s: %v", model.ErrStorage, path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("%w: rename into %s: %v", model.ErrStorage, path, err)
	}
	return info.Size(), nil
}
