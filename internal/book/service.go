package book

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bookshelf/internal/attachment"
)

// Service provides book-related business logic on top of the record and attachment stores.
//
// The record is always looked up before the attachment store is touched, so an
// unknown id yields ErrNotFound even when stale files exist on disk. Operations
// on the same id are serialized; different ids never wait on each other.
type Service struct {
	repo  Repository
	files AttachmentStore
	locks *idLocks
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp PublishedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new book service.
func NewService(repo Repository, files AttachmentStore, opts ...Option) *Service {
	s := &Service{
		repo:  repo,
		files: files,
		locks: newIDLocks(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all books in insertion order.
func (s *Service) List(ctx context.Context) ([]Book, error) {
	books, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	if books == nil {
		books = []Book{}
	}
	return books, nil
}

// Get returns a book by its id.
func (s *Service) Get(ctx context.Context, id int64) (Book, error) {
	b, found, err := s.repo.Get(ctx, id)
	if err != nil {
		return Book{}, fmt.Errorf("get book %d: %w", id, err)
	}
	if !found {
		return Book{}, ErrNotFound
	}
	return b, nil
}

// Create stores a new book stamped with the current time.
func (s *Service) Create(ctx context.Context, in CreateInput) (Book, error) {
	if err := validateInput(in); err != nil {
		return Book{}, err
	}

	b := Book{
		Title:       in.Title,
		PublishedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, &b); err != nil {
		return Book{}, fmt.Errorf("create book: %w", err)
	}
	return b, nil
}

// Patch changes the title of a book. A nil title is a no-op.
func (s *Service) Patch(ctx context.Context, id int64, in PatchInput) (Book, error) {
	defer s.locks.lock(id)()

	b, err := s.Get(ctx, id)
	if err != nil {
		return Book{}, err
	}
	if in.Title == nil {
		return b, nil
	}
	if err := validateInput(in); err != nil {
		return Book{}, err
	}

	b.Title = *in.Title
	if err := s.repo.Update(ctx, b); err != nil {
		return Book{}, fmt.Errorf("update book %d: %w", id, err)
	}
	return b, nil
}

// Delete removes a book and every file attached to it.
// If the files cannot be removed the record is already gone and the error is returned.
func (s *Service) Delete(ctx context.Context, id int64) error {
	defer s.locks.lock(id)()

	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete book %d: %w", id, err)
	}
	if err := s.files.RemoveAll(ctx, id); err != nil {
		return fmt.Errorf("delete files of book %d: %w", id, err)
	}
	return nil
}

// Upload stores the file for a book under the extension inferred from its content.
// A second upload resolving to the same extension replaces the first.
func (s *Service) Upload(ctx context.Context, id int64, f FileUpload) (UploadResult, error) {
	defer s.locks.lock(id)()

	if _, err := s.Get(ctx, id); err != nil {
		return UploadResult{}, err
	}
	if f.Body == nil {
		return UploadResult{}, ErrFileNotProvided
	}

	ext, body, err := attachment.DetectExtension(f.Body, f.Filename)
	if errors.Is(err, attachment.ErrEmpty) {
		return UploadResult{}, ErrFileNotProvided
	}
	if err != nil {
		return UploadResult{}, fmt.Errorf("read upload for book %d: %w", id, err)
	}

	path, size, err := s.files.Save(ctx, id, ext, body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("save file of book %d: %w", id, err)
	}
	return UploadResult{Path: path, FileType: ext, Size: size}, nil
}

// Download opens the file of the given type. fileType must equal the stored
// extension exactly. Caller must close the returned file.
func (s *Service) Download(ctx context.Context, id int64, fileType string) (*attachment.File, error) {
	defer s.locks.lock(id)()

	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if fileType == "" {
		return nil, ErrFileTypeNotProvided
	}

	ok, err := s.files.Exists(ctx, id, fileType)
	if err != nil {
		return nil, fmt.Errorf("stat file of book %d: %w", id, err)
	}
	if !ok {
		return nil, ErrFileNotFound
	}

	f, err := s.files.Open(ctx, id, fileType)
	if errors.Is(err, attachment.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open file of book %d: %w", id, err)
	}
	return f, nil
}
