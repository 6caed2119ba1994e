// Package media serves the media picker: the caller's uploads plus the shared stock images.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"designlab/core"
	"designlab/lab"
	"designlab/metrics"
	"designlab/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// StockPrefix holds images offered to every user.
const StockPrefix = "stock/"

const (
	sniffLen = 512
	// Room for multipart boundaries and part headers on top of the file itself.
	formOverhead = 64 << 10
)

type Handler struct {
	store    core.MediaStore
	maxBytes int64
	now      func() time.Time
}

func New(store core.MediaStore, maxBytes int64) *Handler {
	return &Handler{store: store, maxBytes: maxBytes, now: time.Now}
}

// Routes mounts the media endpoints. limitUpload wraps the upload handler only.
func (h *Handler) Routes(r chi.Router, limitUpload func(http.Handler) http.Handler) {
	r.Get("/", h.HandleList())
	r.With(limitUpload).Post("/", h.HandleUpload())
	r.Delete("/{name}", h.HandleDelete())
}

func errorJSON(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

// userPrefix is the folder holding one user's uploads. Subjects may contain characters
// that are not safe as a single path segment.
func userPrefix(subject string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(subject) + "/"
}

func toFile(store core.MediaStore, obj core.MediaObject, stock bool) core.MediaFile {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = mime.TypeByExtension(path.Ext(obj.Key))
	}
	return core.MediaFile{
		ID:        obj.Key,
		Name:      path.Base(obj.Key),
		URL:       store.PublicURL(obj.Key),
		Type:      contentType,
		Size:      obj.Size,
		Stock:     stock,
		CreatedAt: obj.ModTime,
	}
}

// HandleList returns the caller's files, newest first, followed by the stock images.
func (h *Handler) HandleList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.CurrentUser(r.Context())
		if !ok {
			errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		own, err := h.store.List(r.Context(), userPrefix(claims.Subject))
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "userID": claims.Subject}).Error("Failed to list media")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to list media")
			return
		}
		stock, err := h.store.List(r.Context(), StockPrefix)
		if err != nil {
			logrus.WithError(err).Error("Failed to list stock media")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to list media")
			return
		}

		files := make([]core.MediaFile, 0, len(own)+len(stock))
		for i := len(own) - 1; i >= 0; i-- {
			files = append(files, toFile(h.store, own[i], false))
		}
		for _, obj := range stock {
			files = append(files, toFile(h.store, obj, true))
		}
		render.JSON(w, r, files)
	}
}

// HandleUpload stores a multipart "file" field. Both the declared type and the sniffed
// content must be an image.
func (h *Handler) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.CurrentUser(r.Context())
		if !ok {
			errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}
		log := logrus.WithField("userID", claims.Subject)

		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				metrics.RecordUpload("too_large")
				errorJSON(w, r, http.StatusRequestEntityTooLarge, "File is too large")
				return
			}
			metrics.RecordUpload("invalid")
			errorJSON(w, r, http.StatusBadRequest, "A file field is required")
			return
		}
		defer file.Close()

		if header.Size > h.maxBytes {
			metrics.RecordUpload("too_large")
			errorJSON(w, r, http.StatusRequestEntityTooLarge, "File is too large")
			return
		}

		head := make([]byte, sniffLen)
		n, err := io.ReadFull(file, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			metrics.RecordUpload("invalid")
			errorJSON(w, r, http.StatusBadRequest, "Failed to read upload")
			return
		}
		head = head[:n]

		declared := header.Header.Get("Content-Type")
		sniffed := http.DetectContentType(head)
		if !lab.IsImageType(declared) || !lab.IsImageType(sniffed) {
			metrics.RecordUpload("rejected")
			log.WithFields(logrus.Fields{"declared": declared, "sniffed": sniffed}).Info("Rejected non-image upload")
			errorJSON(w, r, http.StatusBadRequest, lab.ErrNotImage.Error())
			return
		}

		key := fmt.Sprintf("%s%d%s", userPrefix(claims.Subject), h.now().UnixMilli(), extensionFor(header.Filename, sniffed))
		url, err := h.store.Upload(r.Context(), key, sniffed, io.MultiReader(bytes.NewReader(head), file))
		if err != nil {
			metrics.RecordUpload("error")
			log.WithError(err).Error("Failed to store upload")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to store upload")
			return
		}

		metrics.RecordUpload("ok")
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, core.MediaFile{
			ID:        key,
			Name:      header.Filename,
			URL:       url,
			Type:      sniffed,
			Size:      header.Size,
			CreatedAt: h.now(),
		})
	}
}

// extensionFor keeps the uploaded file's extension, falling back to the sniffed type.
func extensionFor(filename, contentType string) string {
	if ext := strings.ToLower(path.Ext(filename)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// HandleDelete removes one of the caller's uploads. Stock images cannot be deleted.
func (h *Handler) HandleDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.CurrentUser(r.Context())
		if !ok {
			errorJSON(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		name := chi.URLParam(r, "name")
		if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\") {
			errorJSON(w, r, http.StatusBadRequest, "Invalid file name")
			return
		}

		key := userPrefix(claims.Subject) + name
		if err := h.store.Delete(r.Context(), key); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "key": key}).Error("Failed to delete media")
			errorJSON(w, r, http.StatusInternalServerError, "Failed to delete media")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
