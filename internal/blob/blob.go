// Package blob abstracts the upload storage backing image messages.
package blob

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("blob: not found")

// Store is the capability interface the relay needs from blob storage.
// FSStore implements it over a local directory.
type Store interface {
	Write(name string, data []byte) error
	Read(name string) ([]byte, error)

	// Delete removes a blob and reports whether it was present. Deleting
	// an absent blob is not an error; scheduled deletions race the
	// janitor and manual removal, and only the actor that wins the race
	// should account for the removal.
	Delete(name string) (bool, error)

	List() ([]string, error)

	// ModTime returns a blob's last-modified time, or ErrNotFound.
	ModTime(name string) (time.Time, error)
}
