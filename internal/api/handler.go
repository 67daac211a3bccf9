// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the conversion job lifecycle over HTTP. Callers are
// authenticated by an upstream gateway, which forwards the user identity
// in the X-User-ID header.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/flowbase/datasync/internal/dedup"
	"github.com/flowbase/datasync/internal/jobs"
	"github.com/flowbase/datasync/internal/models"
	"github.com/flowbase/datasync/internal/tabular"
)

const (
	// UserHeader carries the authenticated user id.
	UserHeader = "X-User-ID"
	// IdempotencyHeader lets clients retry an upload without duplicating it.
	IdempotencyHeader = "Idempotency-Key"
)

// ErrInFlight is returned by an Idempotency implementation while another
// request holds the same key.
var ErrInFlight = dedup.ErrInFlight

// Jobs is the job lifecycle the API drives. Implemented by jobs.Manager.
type Jobs interface {
	Create(ctx context.Context, userID, filename string, source io.Reader) (*models.Job, error)
	Get(ctx context.Context, userID, jobID string) (*models.Job, error)
	List(ctx context.Context, userID string, limit, offset int) ([]models.Job, int, error)
	Delete(ctx context.Context, userID, jobID string) error
	Retry(ctx context.Context, userID, jobID string) (*models.Job, error)
	Download(ctx context.Context, userID, jobID string) (*models.Job, io.ReadCloser, error)
	Preview(ctx context.Context, userID, jobID string, limit int) ([]map[string]string, error)
	Report(ctx context.Context, userID, jobID string) (*models.Report, error)
}

// Idempotency reserves upload keys. Implemented by dedup.Filter.
type Idempotency interface {
	Reserve(ctx context.Context, userID, key string) (string, error)
	Bind(ctx context.Context, userID, key, jobID string) error
	Release(ctx context.Context, userID, key string) error
}

// Handler serves the job API.
type Handler struct {
	jobs           Jobs
	idem           Idempotency
	maxUploadBytes int64
	previewRows    int
	uploads        *uploadLimiter
	ping           func(ctx context.Context) error
}

// HandlerConfig holds the dependencies of a Handler. Ping, when set, is
// checked by the health endpoint. Idempotency may be nil, in which case
// the Idempotency-Key header is ignored.
type HandlerConfig struct {
	Jobs           Jobs
	Idempotency    Idempotency
	MaxUploadBytes int64
	PreviewRows    int
	Ping           func(ctx context.Context) error

	// UploadsPerMinute caps uploads per user; 0 disables the limit.
	UploadsPerMinute int
}

// NewHandler creates the job API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.PreviewRows <= 0 {
		cfg.PreviewRows = 20
	}
	return &Handler{
		jobs:           cfg.Jobs,
		idem:           cfg.Idempotency,
		maxUploadBytes: cfg.MaxUploadBytes,
		previewRows:    cfg.PreviewRows,
		uploads:        newUploadLimiter(cfg.UploadsPerMinute),
		ping:           cfg.Ping,
	}
}

// Routes returns the router for the API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", h.health)

	r.Route("/jobs", func(r chi.Router) {
		r.Use(requireUser)
		r.With(h.throttle).Post("/", h.create)
		r.Get("/", h.list)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(validJobID)
			r.Get("/", h.get)
			r.Delete("/", h.delete)
			r.Post("/retry", h.retry)
			r.Get("/preview", h.preview)
			r.Get("/report", h.report)
			r.Get("/download", h.download)
		})
	})
	return r
}

type ctxKey struct{}

// requireUser rejects requests without a user identity.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing user identity")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(r *http.Request) string {
	userID, _ := r.Context().Value(ctxKey{}).(string)
	return userID
}

// validJobID rejects malformed job ids before they reach the store.
func validJobID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := uuid.Parse(chi.URLParam(r, "id")); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid job id")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jobResponse is the JSON view of a job.
type jobResponse struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	FilenameOriginal string    `json:"filename_original"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func toResponse(j *models.Job) jobResponse {
	return jobResponse{
		ID:               j.ID,
		Status:           string(j.Status),
		FilenameOriginal: j.FilenameOriginal,
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file exceeds the %d byte limit", h.maxUploadBytes))
		case errors.Is(err, http.ErrMissingFile):
			writeError(w, http.StatusBadRequest, "missing file field")
		default:
			writeError(w, http.StatusBadRequest, "invalid multipart upload")
		}
		return
	}
	defer file.Close()
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	if !tabular.Supported(header.Filename) {
		writeError(w, http.StatusBadRequest, tabular.ErrUnsupportedFormat.Error())
		return
	}

	ctx, userID := r.Context(), userFrom(r)
	idemKey := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if h.idem == nil {
		idemKey = ""
	}
	if idemKey != "" {
		existing, err := h.idem.Reserve(ctx, userID, idemKey)
		switch {
		case errors.Is(err, ErrInFlight):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			slog.Warn("idempotency check failed, proceeding", "user_id", userID, "error", err)
			idemKey = ""
		case existing != "":
			job, err := h.jobs.Get(ctx, userID, existing)
			switch {
			case errors.Is(err, jobs.ErrNotFound):
				// The bound job was deleted; the new job takes over the key.
				slog.Info("idempotency key points at a deleted job, creating a new one",
					"job_id", existing, "user_id", userID)
			case err != nil:
				h.fail(w, r, err)
				return
			default:
				slog.Info("duplicate upload, returning existing job", "job_id", job.ID, "user_id", userID)
				writeJSON(w, http.StatusOK, toResponse(job))
				return
			}
		}
	}

	job, err := h.jobs.Create(ctx, userID, header.Filename, file)
	if err != nil {
		if idemKey != "" {
			if rerr := h.idem.Release(ctx, userID, idemKey); rerr != nil {
				slog.Warn("failed to release idempotency key", "user_id", userID, "error", rerr)
			}
		}
		h.fail(w, r, err)
		return
	}
	if idemKey != "" {
		if err := h.idem.Bind(ctx, userID, idemKey, job.ID); err != nil {
			slog.Warn("failed to bind idempotency key", "job_id", job.ID, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, toResponse(job))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, total, err := h.jobs.List(r.Context(), userFrom(r), limit, offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]jobResponse, 0, len(list))
	for i := range list {
		out = append(out, toResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "jobs": out})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Get(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(job))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Delete(r.Context(), userFrom(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Retry(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(job))
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rows, err := h.jobs.Preview(r.Context(), userFrom(r), id, h.previewRows)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id":  id,
		"columns": models.Columns,
		"rows":    rows,
	})
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.jobs.Report(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	job, rc, err := h.jobs.Download(r.Context(), userFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadName(job.FilenameOriginal)))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("download interrupted", "job_id", job.ID, "error", err)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail maps a job error to its HTTP status.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrNotReady):
		writeError(w, http.StatusConflict, "job is not done yet")
	case errors.Is(err, jobs.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "job cannot be retried in its current status")
	case errors.Is(err, tabular.ErrUnsupportedFormat):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// downloadName derives the attachment name from the uploaded file name.
func downloadName(original string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	if base == "" || base == "." {
		base = "contacts"
	}
	return "validated_" + base + ".csv"
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// Serve starts the API HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
