// Package httpserver exposes the upload and polling API.
package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ecosnap/ecosnap/internal/llm"
	"github.com/ecosnap/ecosnap/internal/pipeline"
	"github.com/ecosnap/ecosnap/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// maxUploadSize caps uploaded images at 10MB.
	maxUploadSize = 10 << 20
	listLimit     = 50
)

// Router handles the upload/poll endpoints.
type Router struct {
	uploads  storage.UploadStore
	images   storage.ImageStore
	pool     *pipeline.Pool
	primary  llm.Analyzer
	fallback llm.Analyzer // nil when not configured
}

// New builds the HTTP handler. fallback may be nil.
func New(uploads storage.UploadStore, images storage.ImageStore, pool *pipeline.Pool, primary, fallback llm.Analyzer) http.Handler {
	r := &Router{uploads: uploads, images: images, pool: pool, primary: primary, fallback: fallback}
	mux := chi.NewRouter()

	mux.Get("/health", r.handleHealth)
	mux.Route("/api", func(rt chi.Router) {
		rt.Post("/upload", r.wrap(r.handleUpload))
		rt.Get("/uploads", r.wrap(r.handleList))
		rt.Get("/uploads/{id}", r.wrap(r.handleGet))
		rt.Delete("/uploads/{id}", r.wrap(r.handleDelete))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// httpError carries a status code through the handler error path.
type httpError struct {
	status  int
	message string
}

func (e *httpError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var herr *httpError
		switch {
		case errors.As(err, &herr):
			writeJSON(w, herr.status, map[string]string{"error": herr.message})
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		case errors.Is(err, pipeline.ErrQueueFull):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analysis queue is full, try again later"})
		default:
			log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
	}
}

type uploadResponse struct {
	UploadID     string `json:"uploadId"`
	Filename     string `json:"filename"`
	OriginalName string `json:"originalName"`
	Status       string `json:"status"`
}

// handleUpload accepts a multipart image, persists the upload in pending
// state and enqueues the analysis job. It returns before the analysis runs.
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, maxUploadSize)

	file, header, err := req.FormFile("image")
	if err != nil {
		return badRequest("no image file provided")
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return badRequest("only image files are accepted, got %s", ct)
	}

	id := uuid.NewString()
	filename := id + strings.ToLower(filepath.Ext(header.Filename))

	path, size, err := r.images.Save(filename, file)
	if err != nil {
		return err
	}

	upload := &storage.Upload{
		ID:           id,
		Filename:     filename,
		OriginalName: header.Filename,
		ImagePath:    path,
		MimeType:     header.Header.Get("Content-Type"),
		SizeBytes:    size,
	}
	if err := r.uploads.Create(upload); err != nil {
		// Don't leave an orphaned file behind
		if rmErr := r.images.Remove(path); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", path).Msg("failed to remove orphaned image")
		}
		return err
	}

	job := pipeline.Job{UploadID: id, ImagePath: path, OriginalName: header.Filename}
	if err := r.pool.Submit(job); err != nil {
		return err
	}

	log.Info().
		Str("uploadId", id).
		Str("originalName", header.Filename).
		Int64("sizeBytes", size).
		Msg("image uploaded, analysis queued")

	writeJSON(w, http.StatusCreated, uploadResponse{
		UploadID:     id,
		Filename:     filename,
		OriginalName: header.Filename,
		Status:       string(storage.StatusPending),
	})
	return nil
}

type uploadView struct {
	UploadID     string           `json:"uploadId"`
	OriginalName string           `json:"originalName"`
	Status       string           `json:"status"`
	Result       *json.RawMessage `json:"result,omitempty"`
	Error        string           `json:"error,omitempty"`
	UploadedAt   time.Time        `json:"uploadedAt"`
}

func toView(u *storage.Upload) (uploadView, error) {
	view := uploadView{
		UploadID:     u.ID,
		OriginalName: u.OriginalName,
		Status:       string(u.Status),
		Error:        u.Error,
		UploadedAt:   u.CreatedAt,
	}
	if u.Result != nil {
		raw, err := json.Marshal(u.Result)
		if err != nil {
			return view, err
		}
		msg := json.RawMessage(raw)
		view.Result = &msg
	}
	return view, nil
}

// handleGet is the polling endpoint: current status plus the analysis
// result once completed.
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	upload, err := r.uploads.Get(chi.URLParam(req, "id"))
	if err != nil {
		return err
	}
	view, err := toView(upload)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	uploads, err := r.uploads.List(listLimit)
	if err != nil {
		return err
	}
	views := make([]uploadView, 0, len(uploads))
	for i := range uploads {
		view, err := toView(&uploads[i])
		if err != nil {
			return err
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
	return nil
}

func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "id")
	upload, err := r.uploads.Get(id)
	if err != nil {
		return err
	}
	if err := r.uploads.Delete(id); err != nil {
		return err
	}
	if err := r.images.Remove(upload.ImagePath); err != nil {
		log.Warn().Err(err).Str("uploadId", id).Msg("failed to remove image file")
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type healthResponse struct {
	Status    string `json:"status"`
	Primary   string `json:"primary"`
	Fallback  string `json:"fallback"`
	CheckedAt string `json:"checkedAt"`
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Primary:   "ok",
		Fallback:  "not configured",
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := r.primary.CheckHealth(req.Context()); err != nil {
		resp.Primary = err.Error()
	}
	if r.fallback != nil {
		resp.Fallback = "ok"
		if err := r.fallback.CheckHealth(req.Context()); err != nil {
			resp.Fallback = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
