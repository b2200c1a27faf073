package db

import (
	"context"
	"strings"
	"time"
)

// Document is the durable code file bound 1:1 to a room.
type Document struct {
	ID            string    `json:"fileId"`
	RoomID        string    `json:"roomId"`
	OwnerID       string    `json:"ownerId"`
	Collaborators []string  `json:"collaborators"`
	Filename      string    `json:"filename"`
	Language      string    `json:"language"`
	Folder        string    `json:"folder"`
	Code          string    `json:"code"`
	Version       int       `json:"version"`
	IsDeleted     bool      `json:"isDeleted"`
	IsPublic      bool      `json:"isPublic"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Meta is the summary projection returned without the code body.
type Meta struct {
	FileID        string    `json:"fileId"`
	RoomID        string    `json:"roomId"`
	Filename      string    `json:"filename"`
	Language      string    `json:"language"`
	Version       int       `json:"version"`
	Collaborators []string  `json:"collaborators"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Meta builds the summary projection of a document.
func (d *Document) Meta() *Meta {
	return &Meta{
		FileID:        d.ID,
		RoomID:        d.RoomID,
		Filename:      d.Filename,
		Language:      d.Language,
		Version:       d.Version,
		Collaborators: d.Collaborators,
		UpdatedAt:     d.UpdatedAt,
	}
}

// FileStore is the persistence contract for documents.
type FileStore interface {
	// FindOrCreate returns the document for roomID, creating it atomically
	// with starter content when absent. The bool reports whether this call
	// performed the insert.
	FindOrCreate(ctx context.Context, roomID, ownerID, language string) (*Document, bool, error)

	// Open resolves a document, enforcing view access. A requester who is
	// neither owner nor collaborator is added to the collaborator set.
	Open(ctx context.Context, ref Ref, userID string) (*Document, error)

	// Save replaces code and increments the version. Requires edit access.
	Save(ctx context.Context, id, code, userID string) (int, error)

	// AutoSave persists code without touching the version; a no-op when the
	// stored code is identical. Requires edit access.
	AutoSave(ctx context.Context, ref Ref, code, userID string) error

	Rename(ctx context.Context, id, newName, userID string) (*Document, error)
	ChangeLanguage(ctx context.Context, id, language, userID string) (*Document, error)
	ChangeExtension(ctx context.Context, id, ext, userID string) (*Document, error)

	SoftDelete(ctx context.Context, id, userID string) error
	Restore(ctx context.Context, id, userID string) error

	ListForUser(ctx context.Context, userID string, recentOnly bool) ([]*Document, error)
	Get(ctx context.Context, ref Ref) (*Document, error)
}

// RecentLimit caps the recent-files listing.
const RecentLimit = 10

// baseName is the filename part before the first dot, matching how renames
// and language changes rebuild the name.
func baseName(filename string) string {
	if i := strings.Index(filename, "."); i >= 0 {
		return filename[:i]
	}
	return filename
}

// currentExtension is the part after the last dot.
func currentExtension(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i+1:]
	}
	return "txt"
}
