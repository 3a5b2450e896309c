// Package storage archives delivered documents in an S3-compatible bucket.
// Archiving is optional and never affects the outcome of a download.
package storage

import (
	"context"
	"io"
	"path"
	"time"
)

// ArchivePrefix is the key prefix under which delivered documents are stored.
const ArchivePrefix = "archive"

// PutOptions describe an object being archived. Size is -1 when unknown.
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo is what the backend reports about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// Archive stores delivered documents.
type Archive interface {
	// Put streams r into the bucket under key.
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	// Ping checks that the bucket is reachable.
	Ping(ctx context.Context) error
}

// DocumentKey returns the object key of a session's delivered document.
func DocumentKey(sessionID string) string {
	return path.Join(ArchivePrefix, sessionID+".pdf")
}
