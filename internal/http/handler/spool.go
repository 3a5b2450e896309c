package handler

import (
	"errors"
	"fmt"
	"io"
	"os"
)

const spoolPattern = "img2pdf-download-*.pdf"

// spoolFile is a response body stream that deletes its file once fasthttp
// closes it after writing the response.
type spoolFile struct {
	*os.File
}

func (s *spoolFile) Close() error {
	return errors.Join(s.File.Close(), os.Remove(s.Name()))
}

// spool copies r into a temp file positioned at its start, so the response
// can be written after the source has been removed.
func spool(r io.Reader) (*spoolFile, int64, error) {
	f, err := os.CreateTemp("", spoolPattern)
	if err != nil {
		return nil, 0, fmt.Errorf("create spool file: %w", err)
	}
	s := &spoolFile{File: f}
	n, err := io.Copy(f, r)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		_ = s.Close()
		return nil, 0, fmt.Errorf("spool document: %w", err)
	}
	return s, n, nil
}
