package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaserver/internal/domain/variant"
)

// PurgeVariants removes derived files (name,token.ext) from the category
// directories of the public store, including fallbacks linked at variant
// paths. A non-zero cutoff keeps files modified after it. It returns the
// removed paths; with dryRun nothing is deleted.
func PurgeVariants(publicDir string, cutoff time.Time, dryRun bool) ([]string, error) {
	var removed []string
	for _, category := range variant.Categories {
		root := filepath.Join(publicDir, category)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() || !strings.Contains(d.Name(), ",") {
				return nil
			}
			if !cutoff.IsZero() {
				info, err := d.Info()
				if err != nil {
					return err
				}
				if info.ModTime().After(cutoff) {
					return nil
				}
			}
			if !dryRun {
				if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return &StorageError{Op: "remove", Path: p, Err: err}
				}
			}
			removed = append(removed, p)
			return nil
		})
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}
