package book

//go:generate mockgen -source=ports.go -destination=mock_ports.go -package=book

import (
	"context"
	"io"

	"bookshelf/internal/attachment"
)

// Repository defines the contract for book record storage.
type Repository interface {
	// Create assigns b.ID and persists the record.
	Create(ctx context.Context, b *Book) error
	// Get reports found=false for an unknown id; absence is not an error.
	Get(ctx context.Context, id int64) (b Book, found bool, err error)
	// List returns every record in insertion order.
	List(ctx context.Context) ([]Book, error)
	Update(ctx context.Context, b Book) error
	Delete(ctx context.Context, id int64) error
}

// AttachmentStore keeps at most one file per (book id, file type).
type AttachmentStore interface {
	Save(ctx context.Context, bookID int64, fileType string, r io.Reader) (path string, size int64, err error)
	Exists(ctx context.Context, bookID int64, fileType string) (bool, error)
	Open(ctx context.Context, bookID int64, fileType string) (*attachment.File, error)
	RemoveAll(ctx context.Context, bookID int64) error
}
