package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/REZ3X/ghostchat-backend/internal/blob"
	"github.com/REZ3X/ghostchat-backend/internal/metrics"
	"github.com/REZ3X/ghostchat-backend/internal/models"
)

var contentTypeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// UploadResponse is the upload endpoint payload.
type UploadResponse struct {
	Success  bool   `json:"success"`
	ImageID  string `json:"imageId"`
	Filename string `json:"filename"`
	ImageURL string `json:"imageUrl"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
}

// UploadImage handles POST /api/upload-image (multipart, field "image").
// Type and size are validated before anything touches the blob store.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("image")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "Failed to read image")
		return
	}

	ttl := models.DefaultTTL
	if raw := r.FormValue("ttl"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			ttl = n
		}
	}

	meta, err := h.lifecycle.StoreUpload(header.Filename, header.Header.Get("Content-Type"), data, r.FormValue("messageId"), ttl)
	if err != nil {
		h.ErrorFrom(w, err)
		return
	}

	h.logger.Info().
		Str("filename", meta.Filename).
		Int64("size", meta.Size).
		Int("ttl", ttl).
		Msg("image uploaded")

	h.JSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		ImageID:  meta.ID,
		Filename: meta.Filename,
		ImageURL: meta.ImageURL,
		Size:     meta.Size,
		MimeType: meta.MimeType,
	})
}

// ServeImage handles GET /api/image/{filename}, returning raw bytes with
// a content type inferred from the extension.
func (h *Handler) ServeImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	data, err := h.blobs.Read(filename)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			h.Error(w, http.StatusNotFound, "Image not found or expired")
			return
		}
		h.Error(w, http.StatusBadRequest, "Invalid image name")
		return
	}

	ct, ok := contentTypeByExt[strings.ToLower(filepath.Ext(filename))]
	if !ok {
		ct = "image/jpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// DeleteImageResponse is the image deletion payload.
type DeleteImageResponse struct {
	Success bool   `json:"success"`
	ImageID string `json:"imageId"`
}

// DeleteImage handles DELETE /api/image/{imageId}: best-effort removal of
// the matching stored message record and its blob.
func (h *Handler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageId")

	deleted, err := h.history.DeleteImageRecord(r.Context(), imageID, func(filename string) {
		removed, err := h.blobs.Delete(filename)
		if err != nil {
			h.logger.Warn().Err(err).Str("filename", filename).Msg("blob delete failed")
			return
		}
		if removed {
			metrics.BlobsDeleted.WithLabelValues("manual").Inc()
		}
	})
	if err != nil {
		h.ErrorFrom(w, err)
		return
	}

	h.JSON(w, http.StatusOK, DeleteImageResponse{Success: deleted, ImageID: imageID})
}
