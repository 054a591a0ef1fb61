package book

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bookshelf/internal/platform/validate"
)

var (
	// ErrNotFound is returned when a book is not found.
	ErrNotFound = errors.New("book not found")
	// ErrInvalidInput is returned when a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFileNotProvided is returned when an upload carries no file content.
	ErrFileNotProvided = fmt.Errorf("%w: file not provided", ErrInvalidInput)
	// ErrFileTypeNotProvided is returned when a download does not name a file type.
	ErrFileTypeNotProvided = fmt.Errorf("%w: file type not provided", ErrInvalidInput)
	// ErrFileNotFound is returned when the book exists but has no file of the requested type.
	ErrFileNotFound = errors.New("book file not found")
)

// Book represents a book record.
type Book struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"publishedAt"`
}

// CreateInput holds the fields accepted when creating a book.
type CreateInput struct {
	Title string `validate:"required,notblank,max=255"`
}

// PatchInput holds the fields accepted by a partial update. A nil Title leaves it unchanged.
type PatchInput struct {
	Title *string `validate:"omitempty,notblank,max=255"`
}

// FileUpload is an incoming book file. Body is nil when no file was sent.
type FileUpload struct {
	Filename string
	Body     io.Reader
}

// UploadResult describes a stored book file.
type UploadResult struct {
	Path     string `json:"file_path"`
	FileType string `json:"file_type"`
	Size     int64  `json:"size"`
}

// ValidationError carries the failed field rules of an input. It matches ErrInvalidInput.
type ValidationError struct {
	Fields []validate.FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		msgs = append(msgs, f.Message)
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func validateInput(in any) error {
	if errs := validate.Struct(in); len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
