package lifecycle

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/REZ3X/ghostchat-backend/internal/apperr"
)

// MaxImageBytes is the upload size ceiling.
const MaxImageBytes = 10 * 1024 * 1024

var allowedExtensions = map[string]bool{
	".jpeg": true,
	".jpg":  true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// dataURLPrefix strips data:image/...;base64, headers from inline payloads.
var dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// validateImage enforces type and size limits before anything is written.
func validateImage(name, mimeType string, size int64) error {
	ext := strings.ToLower(filepath.Ext(name))
	if !allowedExtensions[ext] || !allowedMimeTypes[strings.ToLower(mimeType)] {
		return apperr.New(apperr.InvalidRequest, "Invalid file type. Only JPEG, PNG, GIF, and WebP are allowed.")
	}
	if size <= 0 || size > MaxImageBytes {
		return apperr.New(apperr.InvalidRequest, "Image exceeds maximum size")
	}
	return nil
}

// decodeImagePayload decodes an inline base64 image, tolerating a data
// URL header.
func decodeImagePayload(payload string) ([]byte, error) {
	raw := dataURLPrefix.ReplaceAllString(payload, "")
	return base64.StdEncoding.DecodeString(raw)
}

// secureFilename derives an unguessable stored name from the message id,
// the creation time and random bytes, keeping only the original
// extension. Sequential or guessed names never hit a stored blob.
func secureFilename(originalName, messageID string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%d_%s%s", messageID, now.UnixMilli(), hex.EncodeToString(buf), ext)
}

// newUploadID mints an id for uploads that arrive without one.
func newUploadID() string {
	return "img_" + uuid.NewString()
}
