package model

import "time"

// SessionState is the lifecycle position of a session.
type SessionState string

const (
	StateActive        SessionState = "active"
	StateDocumentReady SessionState = "document_ready"
	StateDelivered     SessionState = "delivered"
	StateRemoved       SessionState = "removed"
)

// Session is one upload-to-download cycle. It owns WorkingDir exclusively.
// This is a pure domain model; Session values handed out by the store are snapshots.
type Session struct {
	ID           string        `json:"id"`
	WorkingDir   string        `json:"-"`
	Images       []ImageRecord `json:"images"`
	DocumentPath string        `json:"-"`
	State        SessionState  `json:"state"`
	CreatedAt    time.Time     `json:"created_at"`
	LastAccessed time.Time     `json:"last_accessed"`
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	out := *s
	out.Images = append([]ImageRecord(nil), s.Images...)
	return &out
}

// ImagePaths returns the storage paths in page order.
func (s *Session) ImagePaths() []string {
	paths := make([]string, len(s.Images))
	for i, img := range s.Images {
		paths[i] = img.StoragePath
	}
	return paths
}

// ImageRecord is a normalized image owned by a session.
// DisplayName is the client supplied name and is never used to build paths.
type ImageRecord struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	StoragePath string `json:"-"`
	Format      string `json:"format"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}
