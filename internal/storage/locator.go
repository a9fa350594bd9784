package storage

import (
	"fmt"
	"path/filepath"

	"mediaserver/internal/domain/variant"
)

// Locator finds originals. The public store is checked first; the upload
// store holds the canonical copy.
type Locator struct {
	publicDir     string
	uploadDir     string
	storeOriginal bool
	publisher     *Publisher
}

func NewLocator(publicDir, uploadDir string, storeOriginal bool, publisher *Publisher) *Locator {
	return &Locator{
		publicDir:     publicDir,
		uploadDir:     uploadDir,
		storeOriginal: storeOriginal,
		publisher:     publisher,
	}
}

// PublicDir is the root of the public store.
func (l *Locator) PublicDir() string {
	return l.publicDir
}

// PublicPath maps a request path onto the public store.
func (l *Locator) PublicPath(rel string) string {
	return filepath.Join(l.publicDir, filepath.FromSlash(rel))
}

// UploadPath maps a relative path onto the upload store.
func (l *Locator) UploadPath(rel string) string {
	return filepath.Join(l.uploadDir, filepath.FromSlash(rel))
}

// Locate returns a filesystem path for the original behind rel, which may
// carry a variant token. With materialize, or when originals are stored, a
// file found only in the upload store is published first.
func (l *Locator) Locate(rel string, materialize bool) (string, error) {
	original := variant.OriginalPath(rel)

	public := l.PublicPath(original)
	if exists(public) {
		return public, nil
	}

	upload := l.UploadPath(original)
	if !exists(upload) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, original)
	}

	if l.storeOriginal || materialize {
		if err := l.publisher.Link(upload, public); err != nil {
			return "", err
		}
		return public, nil
	}
	return upload, nil
}
