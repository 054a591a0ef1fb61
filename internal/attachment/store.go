package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no file is stored for a (book, file type) pair.
	ErrNotFound = errors.New("attachment not found")
	// ErrInvalidFileType is returned for file type tokens that cannot name a file.
	ErrInvalidFileType = errors.New("invalid file type")
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// File is an opened attachment. Caller must close it.
type File struct {
	io.ReadCloser
	Name    string
	Size    int64
	ModTime time.Time
}

// Local stores attachments on the local filesystem:
//
//	<root>/<bookID>/<bookID>.<fileType>
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at root, creating the directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create uploads root %q: %w", root, err)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve uploads root: %w", err)
	}
	return &Local{root: absRoot}, nil
}

// Root returns the absolute uploads directory.
func (l *Local) Root() string {
	return l.root
}

// FileName returns the stored name of an attachment, e.g. "12.pdf".
func FileName(bookID int64, fileType string) string {
	return strconv.FormatInt(bookID, 10) + "." + fileType
}

// RelativePath returns the attachment location relative to the uploads root.
func RelativePath(bookID int64, fileType string) string {
	return strconv.FormatInt(bookID, 10) + "/" + FileName(bookID, fileType)
}

// ValidFileType rejects empty tokens and anything that could leave the book directory.
func ValidFileType(fileType string) bool {
	return fileType != "" &&
		!strings.Contains(fileType, "/") &&
		!strings.Contains(fileType, "\\") &&
		!strings.Contains(fileType, "..") &&
		!strings.ContainsRune(fileType, 0)
}

func (l *Local) dir(bookID int64) string {
	return filepath.Join(l.root, strconv.FormatInt(bookID, 10))
}

func (l *Local) path(bookID int64, fileType string) (string, error) {
	if !ValidFileType(fileType) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileType, fileType)
	}
	return filepath.Join(l.dir(bookID), FileName(bookID, fileType)), nil
}

// Save writes r to the attachment slot for (bookID, fileType), replacing any
// previous content. The write is not atomic: a failure part way through
// leaves a truncated file behind.
func (l *Local) Save(_ context.Context, bookID int64, fileType string, r io.Reader) (string, int64, error) {
	dest, err := l.path(bookID, fileType)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return "", 0, fmt.Errorf("mkdir %q: %w", filepath.Dir(dest), err)
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return "", 0, fmt.Errorf("open %q: %w", dest, err)
	}
	n, werr := io.Copy(f, r)
	cerr := f.Close()
	if werr != nil {
		return "", 0, fmt.Errorf("write %q: %w", dest, werr)
	}
	if cerr != nil {
		return "", 0, fmt.Errorf("flush %q: %w", dest, cerr)
	}
	return RelativePath(bookID, fileType), n, nil
}

// Exists reports whether an attachment is stored for (bookID, fileType).
// Invalid file type tokens never exist.
func (l *Local) Exists(_ context.Context, bookID int64, fileType string) (bool, error) {
	p, err := l.path(bookID, fileType)
	if err != nil {
		return false, nil
	}
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Open opens the attachment for reading.
func (l *Local) Open(_ context.Context, bookID int64, fileType string) (*File, error) {
	p, err := l.path(bookID, fileType)
	if err != nil {
		return nil, ErrNotFound
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return &File{
		ReadCloser: f,
		Name:       FileName(bookID, fileType),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}, nil
}

// RemoveAll deletes every attachment of bookID. A missing directory is not an error.
func (l *Local) RemoveAll(_ context.Context, bookID int64) error {
	if err := os.RemoveAll(l.dir(bookID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove attachments of book %d: %w", bookID, err)
	}
	return nil
}
