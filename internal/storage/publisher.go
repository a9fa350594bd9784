package storage

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"mediaserver/internal/config"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Publisher puts files into the public store, linking where it can and
// copying otherwise.
type Publisher struct {
	mode   string
	linkFn func(src, dst string) error
	logger *zap.SugaredLogger
}

func NewPublisher(mode string, logger *zap.SugaredLogger) *Publisher {
	switch mode {
	case config.LinkHard, config.LinkSoft, config.LinkNone:
	default:
		mode = config.LinkNone
	}
	p := &Publisher{mode: mode, logger: logger}
	p.linkFn = p.link
	return p
}

// Mode returns the link mode in use.
func (p *Publisher) Mode() string {
	return p.mode
}

// Link makes dst refer to src. A failed link is never reported; the file is
// copied instead. Only a failed copy returns an error.
func (p *Publisher) Link(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return &StorageError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}

	if p.mode != config.LinkNone {
		if err := p.linkFn(src, dst); err != nil {
			p.logger.Debugw("link failed, copying", "mode", p.mode, "src", src, "dst", dst, "error", err)
		}
		if exists(dst) {
			return nil
		}
	}
	return p.copy(src, dst)
}

func (p *Publisher) link(src, dst string) error {
	// ln -f: an existing target is replaced
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return err
		}
	}
	if p.mode == config.LinkHard {
		return os.Link(src, dst)
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return err
	}
	return os.Symlink(abs, dst)
}

func (p *Publisher) copy(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &StorageError{Op: "copy", Path: src, Err: err}
	}
	defer in.Close()

	return p.writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// Write stores data at dst. Readers never observe a partial file: the data
// goes to a temporary file in the same directory and is renamed into place.
func (p *Publisher) Write(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirPerm); err != nil {
		return &StorageError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	return p.writeAtomic(dst, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func (p *Publisher) writeAtomic(dst string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return &StorageError{Op: "create", Path: dst, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if err := fill(tmp); err != nil {
		cleanup()
		return &StorageError{Op: "copy", Path: dst, Err: err}
	}
	if err := tmp.Chmod(filePerm); err != nil {
		cleanup()
		return &StorageError{Op: "chmod", Path: dst, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &StorageError{Op: "copy", Path: dst, Err: err}
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return &StorageError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}

// exists follows symlinks, so a dangling link counts as missing.
func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	return exists(path)
}
