package book

import (
	"errors"
	"io"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"bookshelf/internal/httpx"

	"github.com/go-chi/chi/v5"
)

const (
	msgBookNotFound        = "Book not found"
	msgInvalidData         = "Invalid data"
	msgFileNotProvided     = "File not provided"
	msgFileTypeNotProvided = "File type not provided"
	msgFileNotFound        = "File not found"
	msgFileTooLarge        = "File too large"
	msgInternal            = "Internal server error"
	msgUploaded            = "File uploaded successfully"
)

const multipartMemory = 8 << 20

type HTTPHandler struct {
	service      *Service
	maxJSONBytes int64
}

func NewHTTPHandler(service *Service, maxJSONBytes int64) *HTTPHandler {
	return &HTTPHandler{service: service, maxJSONBytes: maxJSONBytes}
}

type createBookRequest struct {
	Title string `json:"title"`
}

type patchBookRequest struct {
	Title *string `json:"title"`
}

type uploadResponse struct {
	Message  string `json:"message"`
	FilePath string `json:"file_path"`
}

// Routes registers the book endpoints on r.
func (h *HTTPHandler) Routes(r chi.Router) {
	r.Route("/api/books", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Post("/upload/{id}", h.Upload)
		r.Get("/download/{id}", h.Download)
		r.Get("/{id}", h.Get)
		r.Patch("/{id}", h.Patch)
		r.Delete("/{id}", h.Delete)
	})
}

// List handles GET /api/books
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.List(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, books)
}

// Get handles GET /api/books/{id}
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, msgBookNotFound)
		return
	}

	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// Create handles POST /api/books
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBookRequest
	if err := httpx.DecodeJSON(w, r, &req, h.maxJSONBytes); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, msgInvalidData)
		return
	}

	b, err := h.service.Create(r.Context(), CreateInput{Title: req.Title})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

// Patch handles PATCH /api/books/{id}
func (h *HTTPHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, msgBookNotFound)
		return
	}

	var req patchBookRequest
	if err := httpx.DecodeJSON(w, r, &req, h.maxJSONBytes); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		// an unknown id still wins over a bad body
		if _, gerr := h.service.Get(r.Context(), id); gerr != nil {
			h.writeServiceError(w, r, gerr)
			return
		}
		httpx.JSONError(w, http.StatusBadRequest, msgInvalidData)
		return
	}

	b, err := h.service.Patch(r.Context(), id, PatchInput{Title: req.Title})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

// Delete handles DELETE /api/books/{id}
func (h *HTTPHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, msgBookNotFound)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.NoContent(w)
}

// Upload handles POST /api/books/upload/{id} with a multipart "file" field.
func (h *HTTPHandler) Upload(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, msgBookNotFound)
		return
	}

	upload := FileUpload{}
	if err := r.ParseMultipartForm(multipartMemory); err == nil {
		defer r.MultipartForm.RemoveAll()
		file, header, ferr := r.FormFile("file")
		if ferr == nil {
			defer file.Close()
			upload = FileUpload{Filename: header.Filename, Body: file}
		}
	} else {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.JSONError(w, http.StatusRequestEntityTooLarge, msgFileTooLarge)
			return
		}
	}

	res, err := h.service.Upload(r.Context(), id, upload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, uploadResponse{Message: msgUploaded, FilePath: res.Path})
}

// Download handles GET /api/books/download/{id}?fileType=pdf
func (h *HTTPHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		httpx.JSONError(w, http.StatusNotFound, msgBookNotFound)
		return
	}

	f, err := h.service.Download(r.Context(), id, r.URL.Query().Get("fileType"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(f.Name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		log.Printf("download interrupted: request_id=%s book_id=%d error=%v", httpx.RequestIDFrom(r), id, err)
	}
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, msgBookNotFound)
	case errors.Is(err, ErrFileNotProvided):
		httpx.JSONError(w, http.StatusBadRequest, msgFileNotProvided)
	case errors.Is(err, ErrFileTypeNotProvided):
		httpx.JSONError(w, http.StatusBadRequest, msgFileTypeNotProvided)
	case errors.Is(err, ErrFileNotFound):
		httpx.JSONError(w, http.StatusBadRequest, msgFileNotFound)
	case errors.Is(err, ErrInvalidInput):
		httpx.JSONError(w, http.StatusBadRequest, msgInvalidData)
	default:
		log.Printf("internal error: request_id=%s method=%s path=%s error=%v", httpx.RequestIDFrom(r), r.Method, r.URL.Path, err)
		httpx.JSONError(w, http.StatusInternalServerError, msgInternal)
	}
}

// pathID parses the {id} path segment. Ids below 1 are never issued.
func pathID(r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		raw = chi.URLParam(r, "id")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}
