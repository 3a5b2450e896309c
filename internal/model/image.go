package model

import "fmt"

// Upload is one raw file received from a client.
type Upload struct {
	Name string
	Data []byte
}

// NormalizedImage describes the file written by the normalizer.
type NormalizedImage struct {
	Path         string
	Format       string
	SourceFormat string
	Width        int
	Height       int
	Resized      bool
	// Conversion names the color-mode strategy applied, empty when none was needed.
	Conversion string
	Bytes      int64
}

// Size formats the dimensions the way clients display them, e.g. "2048x1024".
func (n *NormalizedImage) Size() string {
	return fmt.Sprintf("%dx%d", n.Width, n.Height)
}
