package book

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"bookshelf/internal/attachment"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *MemoryRepo, *attachment.Local) {
	t.Helper()
	files, err := attachment.NewLocal(t.TempDir())
	require.NoError(t, err)
	repo := NewMemoryRepo()
	return NewService(repo, files, opts...), repo, files
}

func readFile(t *testing.T, f *attachment.File) string {
	t.Helper()
	defer f.Close()
	b, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(b)
}

func strPtr(s string) *string { return &s }

func TestService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("stamps publishedAt with now", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		before := time.Now().UTC()
		b, err := svc.Create(ctx, CreateInput{Title: "Новая книга"})
		after := time.Now().UTC()

		require.NoError(t, err)
		assert.Equal(t, int64(1), b.ID)
		assert.Equal(t, "Новая книга", b.Title)
		assert.False(t, b.PublishedAt.Before(before))
		assert.False(t, b.PublishedAt.After(after))

		got, err := svc.Get(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b, got)
	})

	t.Run("uses injected clock", func(t *testing.T) {
		fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		svc, _, _ := newTestService(t, WithClock(func() time.Time { return fixed }))

		b, err := svc.Create(ctx, CreateInput{Title: "Dune"})
		require.NoError(t, err)
		assert.Equal(t, fixed, b.PublishedAt)
	})

	t.Run("rejects missing or blank title", func(t *testing.T) {
		svc, repo, _ := newTestService(t)

		for _, title := range []string{"", "   ", strings.Repeat("x", 256)} {
			_, err := svc.Create(ctx, CreateInput{Title: title})
			assert.ErrorIs(t, err, ErrInvalidInput)

			var verr *ValidationError
			assert.True(t, errors.As(err, &verr))
		}

		books, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, books)
	})

	t.Run("ids are never reused", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		a, err := svc.Create(ctx, CreateInput{Title: "A"})
		require.NoError(t, err)
		require.NoError(t, svc.Delete(ctx, a.ID))

		b, err := svc.Create(ctx, CreateInput{Title: "B"})
		require.NoError(t, err)
		assert.Greater(t, b.ID, a.ID)
	})
}

func TestService_List(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	books, err := svc.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)

	_, err = svc.Create(ctx, CreateInput{Title: "Book 1 from list test"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Title: "Book 2 from list test"})
	require.NoError(t, err)

	books, err = svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "Book 1 from list test", books[0].Title)
	assert.Equal(t, "Book 2 from list test", books[1].Title)
}

func TestService_Patch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	orig, err := svc.Create(ctx, CreateInput{Title: "Старая книга"})
	require.NoError(t, err)

	t.Run("missing title is a no-op", func(t *testing.T) {
		b, err := svc.Patch(ctx, orig.ID, PatchInput{})
		require.NoError(t, err)
		assert.Equal(t, orig, b)
	})

	t.Run("only title changes", func(t *testing.T) {
		b, err := svc.Patch(ctx, orig.ID, PatchInput{Title: strPtr("Обновленная книга")})
		require.NoError(t, err)
		assert.Equal(t, orig.ID, b.ID)
		assert.Equal(t, orig.PublishedAt, b.PublishedAt)
		assert.Equal(t, "Обновленная книга", b.Title)

		got, err := svc.Get(ctx, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, b, got)
	})

	t.Run("blank title is rejected", func(t *testing.T) {
		_, err := svc.Patch(ctx, orig.ID, PatchInput{Title: strPtr(" ")})
		assert.ErrorIs(t, err, ErrInvalidInput)

		got, err := svc.Get(ctx, orig.ID)
		require.NoError(t, err)
		assert.Equal(t, "Обновленная книга", got.Title)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := svc.Patch(ctx, 999999, PatchInput{Title: strPtr(" ")})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _, files := newTestService(t)

	b, err := svc.Create(ctx, CreateInput{Title: "Новая книга"})
	require.NoError(t, err)
	_, err = svc.Upload(ctx, b.ID, FileUpload{Filename: "book.pdf", Body: strings.NewReader("%PDF-1.4 content")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, b.ID))

	_, err = svc.Get(ctx, b.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := files.Exists(ctx, b.ID, "pdf")
	require.NoError(t, err)
	assert.False(t, ok, "attachments must be removed with the record")

	assert.ErrorIs(t, svc.Delete(ctx, b.ID), ErrNotFound)
}

func TestService_UploadDownloadRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	b, err := svc.Create(ctx, CreateInput{Title: "Тестовая книга"})
	require.NoError(t, err)

	res, err := svc.Upload(ctx, b.ID, FileUpload{Filename: "file.txt", Body: strings.NewReader("Тестовое содержание файла")})
	require.NoError(t, err)
	assert.Equal(t, "txt", res.FileType)
	assert.Equal(t, "1/1.txt", res.Path)
	assert.Equal(t, int64(len("Тестовое содержание файла")), res.Size)

	f, err := svc.Download(ctx, b.ID, "txt")
	require.NoError(t, err)
	assert.Equal(t, "1.txt", f.Name)
	assert.Equal(t, "Тестовое содержание файла", readFile(t, f))

	t.Run("second upload overwrites", func(t *testing.T) {
		_, err := svc.Upload(ctx, b.ID, FileUpload{Filename: "other.txt", Body: strings.NewReader("second")})
		require.NoError(t, err)

		f, err := svc.Download(ctx, b.ID, "txt")
		require.NoError(t, err)
		assert.Equal(t, "second", readFile(t, f))
	})

	t.Run("file type must match exactly", func(t *testing.T) {
		_, err := svc.Download(ctx, b.ID, "TXT")
		assert.ErrorIs(t, err, ErrFileNotFound)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown file type", func(t *testing.T) {
		_, err := svc.Download(ctx, b.ID, "epub")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("traversal file type", func(t *testing.T) {
		_, err := svc.Download(ctx, b.ID, "../../etc/passwd")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("file type omitted", func(t *testing.T) {
		_, err := svc.Download(ctx, b.ID, "")
		assert.ErrorIs(t, err, ErrFileTypeNotProvided)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestService_UploadWithoutFile(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	b, err := svc.Create(ctx, CreateInput{Title: "Книга для теста загрузки"})
	require.NoError(t, err)

	_, err = svc.Upload(ctx, b.ID, FileUpload{})
	assert.ErrorIs(t, err, ErrFileNotProvided)

	_, err = svc.Upload(ctx, b.ID, FileUpload{Filename: "empty.pdf", Body: strings.NewReader("")})
	assert.ErrorIs(t, err, ErrFileNotProvided)
}

func TestService_UnknownIDNeverTouchesAttachments(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockRepository(ctrl)
	mockFiles := NewMockAttachmentStore(ctrl)
	svc := NewService(mockRepo, mockFiles)
	ctx := context.Background()
	const id = int64(999999)

	mockRepo.EXPECT().Get(gomock.Any(), id).Return(Book{}, false, nil).Times(5)

	_, err := svc.Get(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Patch(ctx, id, PatchInput{Title: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, id), ErrNotFound)

	_, err = svc.Upload(ctx, id, FileUpload{Filename: "a.pdf", Body: strings.NewReader("%PDF-1.4")})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Download(ctx, id, "pdf")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_StorageFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockRepo := NewMockRepository(ctrl)
	mockFiles := NewMockAttachmentStore(ctrl)
	svc := NewService(mockRepo, mockFiles)
	ctx := context.Background()
	diskErr := errors.New("disk full")
	book := Book{ID: 1, Title: "Test"}

	t.Run("list", func(t *testing.T) {
		mockRepo.EXPECT().List(gomock.Any()).Return(nil, context.DeadlineExceeded)

		_, err := svc.List(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("save", func(t *testing.T) {
		mockRepo.EXPECT().Get(gomock.Any(), int64(1)).Return(book, true, nil)
		mockFiles.EXPECT().Save(gomock.Any(), int64(1), "pdf", gomock.Any()).Return("", int64(0), diskErr)

		_, err := svc.Upload(ctx, 1, FileUpload{Body: strings.NewReader("%PDF-1.4")})
		assert.ErrorIs(t, err, diskErr)
	})

	t.Run("cascade delete", func(t *testing.T) {
		gomock.InOrder(
			mockRepo.EXPECT().Get(gomock.Any(), int64(1)).Return(book, true, nil),
			mockRepo.EXPECT().Delete(gomock.Any(), int64(1)).Return(nil),
			mockFiles.EXPECT().RemoveAll(gomock.Any(), int64(1)).Return(diskErr),
		)

		err := svc.Delete(ctx, 1)
		assert.ErrorIs(t, err, diskErr)
	})

	t.Run("exists", func(t *testing.T) {
		mockRepo.EXPECT().Get(gomock.Any(), int64(1)).Return(book, true, nil)
		mockFiles.EXPECT().Exists(gomock.Any(), int64(1), "pdf").Return(false, diskErr)

		_, err := svc.Download(ctx, 1, "pdf")
		assert.ErrorIs(t, err, diskErr)
		assert.NotErrorIs(t, err, ErrFileNotFound)
	})

	t.Run("patch without title skips update", func(t *testing.T) {
		mockRepo.EXPECT().Get(gomock.Any(), int64(1)).Return(book, true, nil)

		got, err := svc.Patch(ctx, 1, PatchInput{})
		require.NoError(t, err)
		assert.Equal(t, book, got)
	})
}

func TestService_SameIDOperationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	svc, _, files := newTestService(t)

	b, err := svc.Create(ctx, CreateInput{Title: "Race"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = svc.Upload(ctx, b.ID, FileUpload{Filename: "r.pdf", Body: strings.NewReader("%PDF-1.4 race")})
	}()
	go func() {
		defer wg.Done()
		_ = svc.Delete(ctx, b.ID)
	}()
	wg.Wait()

	// Whichever ran second saw a consistent state: either the upload lost to the
	// delete (NotFound, no file) or the delete removed the uploaded file.
	ok, err := files.Exists(ctx, b.ID, "pdf")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, svc.locks.size())
}
