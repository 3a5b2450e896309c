package repository

import (
	"context"
	"errors"
	"time"

	"img2pdf/internal/model"
)

var (
	// ErrSessionNotFound is returned for unknown, expired or already torn down session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStaleDocument is returned when a document was assembled from fewer
	// images than the session now holds.
	ErrStaleDocument = errors.New("document does not cover all session images")
)

// SessionRepository is the registry of live sessions. It never touches the
// filesystem; working directories are managed by the caller.
// Sessions returned are snapshots and may be used without further locking.
type SessionRepository interface {
	// Create registers a new session whose working directory is root/<id>.
	Create(ctx context.Context, root string) (*model.Session, error)

	// Get returns the session and marks it accessed.
	Get(ctx context.Context, id string) (*model.Session, error)

	// Append adds images in the given order. A generated document no longer
	// matches the image list afterwards, so it is cleared and its path returned.
	Append(ctx context.Context, id string, records ...model.ImageRecord) (stale string, err error)

	// SetDocumentPath records a document assembled from the first pages images,
	// replacing any previous one. It fails with ErrStaleDocument when images
	// were appended after assembly started.
	SetDocumentPath(ctx context.Context, id, path string, pages int) error

	// ClearDocumentPath forgets the assembled document. It is a no-op when none is recorded.
	ClearDocumentPath(ctx context.Context, id string) error

	// MarkDelivered records that the document was handed to the client.
	MarkDelivered(ctx context.Context, id string) error

	// Touch marks the session accessed.
	Touch(ctx context.Context, id string) error

	// Remove unregisters the session. It returns the last snapshot and whether
	// this call removed it; removing an unknown id is not an error.
	Remove(ctx context.Context, id string) (*model.Session, bool)

	// RemoveIdle removes the session only if it was last accessed before the cutoff.
	RemoveIdle(ctx context.Context, id string, before time.Time) (*model.Session, bool)

	// Expired lists sessions last accessed before the cutoff.
	Expired(ctx context.Context, before time.Time) []string

	// List returns snapshots of all live sessions without marking them accessed.
	List(ctx context.Context) []*model.Session

	// Len returns the number of live sessions.
	Len() int
}
