package storage

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("original not found")

// StorageError reports a failed filesystem write (mkdir, copy, rename).
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
