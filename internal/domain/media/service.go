package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediaserver/internal/config"
	"mediaserver/internal/storage"
)

const spoolDir = ".tmp"

// UploadInput is one file to store. Either Reader or Path is set; Path
// imports a file already on the local filesystem.
type UploadInput struct {
	Owner    Owner
	Field    string
	Filename string
	Reader   io.Reader
	Path     string
}

type UploadResult struct {
	Media     *Media
	Duplicate bool
	Fields    map[string]any
}

// Service stores originals in the upload store and links them to owners.
type Service struct {
	repo    Repository
	locator *storage.Locator
	cfg     config.UploadConfig
	rules   []rule
	logger  *zap.SugaredLogger
}

func NewService(repo Repository, locator *storage.Locator, cfg config.UploadConfig, logger *zap.SugaredLogger) *Service {
	return &Service{
		repo:    repo,
		locator: locator,
		cfg:     cfg,
		rules:   contentRules(cfg),
		logger:  logger,
	}
}

// RequestLimit bounds an upload request body: the file plus form overhead.
func (s *Service) RequestLimit() int64 {
	return s.cfg.MaxSize + 1<<20
}

// Upload runs validate, persist, link and project. A validation failure
// returns *ValidationError and leaves nothing behind.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	field := in.Field
	if field == "" {
		field = "file"
	}
	if !in.Owner.IsZero() {
		if err := s.checkOwner(in.Owner, field); err != nil {
			return nil, err
		}
	}

	c, err := s.validate(ctx, in, field)
	if err != nil {
		return nil, err
	}
	defer os.Remove(c.path)

	var link *Link
	if !in.Owner.IsZero() {
		link = &Link{Model: in.Owner.Kind, ForeignID: in.Owner.ID, Field: field}
	}

	m, duplicate, err := s.persist(ctx, c, link)
	if err != nil {
		return nil, err
	}

	res := &UploadResult{Media: m, Duplicate: duplicate, Fields: map[string]any{}}
	if link != nil {
		if res.Fields, err = s.project(ctx, in.Owner); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*Media, error) {
	return s.repo.GetByID(ctx, id)
}

// Duplicates lists records sharing a checksum, newest checksum first.
func (s *Service) Duplicates(ctx context.Context) ([]*Media, error) {
	return s.repo.Duplicates(ctx)
}

// Project copies linked record attributes onto the owner's configured keys.
// Fields without a link project as nil.
func (s *Service) Project(ctx context.Context, owner Owner) (map[string]any, error) {
	if _, ok := s.cfg.Owners[owner.Kind]; !ok {
		return nil, invalid("owner_type", RuleOwner)
	}
	if !s.cfg.PopulateOnRead {
		return map[string]any{}, nil
	}
	return s.project(ctx, owner)
}

// PurgeCache removes generated variants from the public store, keeping
// those modified within olderThan. Originals are left alone.
func (s *Service) PurgeCache(olderThan time.Duration, dryRun bool) ([]string, error) {
	var cutoff time.Time
	if olderThan > 0 {
		cutoff = time.Now().Add(-olderThan)
	}
	removed, err := storage.PurgeVariants(s.locator.PublicDir(), cutoff, dryRun)
	if err != nil {
		return removed, err
	}
	s.logger.Infow("variant cache purged", "removed", len(removed), "dry_run", dryRun)
	return removed, nil
}

// Unlink detaches a field. The record and its file stay.
func (s *Service) Unlink(ctx context.Context, owner Owner, field string) error {
	if err := s.checkOwner(owner, field); err != nil {
		return err
	}
	return s.repo.DeleteLink(ctx, owner, field)
}

func (s *Service) checkOwner(owner Owner, field string) error {
	fields, ok := s.cfg.Owners[owner.Kind]
	if !ok {
		return invalid("owner_type", RuleOwner)
	}
	if owner.ID == "" {
		return invalid("owner_id", RuleOwner)
	}
	if _, ok := fields[field]; !ok {
		return invalid("field", RuleField)
	}
	return nil
}

func (s *Service) validate(ctx context.Context, in UploadInput, field string) (*candidate, error) {
	src, name := in.Reader, in.Filename
	if in.Path != "" {
		f, kind := checkSource(in.Path)
		if kind != "" {
			return nil, invalid(field, kind)
		}
		defer f.Close()
		src = f
		if name == "" {
			name = filepath.Base(in.Path)
		}
	}
	if src == nil {
		return nil, invalid(field, RuleResource)
	}

	c, err := s.spool(ctx, src, name)
	if err != nil {
		return nil, err
	}
	fail := func(err error) (*candidate, error) {
		_ = os.Remove(c.path)
		return nil, err
	}

	if c.size == 0 {
		return fail(invalid(field, RuleResource))
	}
	if err := inspect(c); err != nil {
		return fail(fmt.Errorf("inspect upload: %w", err))
	}
	for _, r := range s.rules {
		if !r.check(c) {
			s.logger.Infow("upload rejected", "field", field, "rule", r.kind, "name", name, "size", c.size)
			return fail(invalid(field, r.kind))
		}
	}
	return c, nil
}

// spool copies at most MaxSize+1 bytes to a temp file inside the upload
// store, hashing as it goes.
func (s *Service) spool(ctx context.Context, src io.Reader, name string) (*candidate, error) {
	dir := s.locator.UploadPath(spoolDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &storage.StorageError{Op: "mkdir", Path: dir, Err: err}
	}
	tmp := filepath.Join(dir, uuid.NewString()+".part")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &storage.StorageError{Op: "create", Path: tmp, Err: err}
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(f, h), io.LimitReader(src, s.cfg.MaxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, &storage.StorageError{Op: "spool", Path: tmp, Err: err}
	}

	return &candidate{
		name:     name,
		path:     tmp,
		size:     n,
		tooLarge: n > s.cfg.MaxSize,
		checksum: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func (s *Service) persist(ctx context.Context, c *candidate, link *Link) (*Media, bool, error) {
	existing, err := s.repo.GetByChecksum(ctx, c.checksum)
	switch {
	case err == nil:
		if link != nil {
			link.MediaID = existing.ID
			if err := s.repo.UpsertLink(ctx, link); err != nil {
				return nil, false, fmt.Errorf("link media: %w", err)
			}
		}
		s.logger.Infow("upload deduplicated", "media_id", existing.ID, "file", existing.File)
		return existing, true, nil
	case !errors.Is(err, ErrMediaNotFound):
		return nil, false, fmt.Errorf("lookup checksum: %w", err)
	}

	rel, err := s.place(c)
	if err != nil {
		return nil, false, err
	}
	m := &Media{
		File:     rel,
		Dirname:  path.Dir(rel),
		Basename: path.Base(rel),
		MimeType: c.mimeType,
		Size:     c.size,
		Checksum: c.checksum,
		Width:    c.width,
		Height:   c.height,
	}

	created, err := s.repo.SaveAndLink(ctx, m, link)
	if err != nil {
		_ = os.Remove(s.locator.UploadPath(rel))
		return nil, false, fmt.Errorf("save media: %w", err)
	}
	if !created {
		// another upload of the same bytes won the insert
		_ = os.Remove(s.locator.UploadPath(rel))
		s.logger.Infow("upload merged", "media_id", m.ID, "file", m.File)
		return m, true, nil
	}

	s.purgePublic(rel)
	s.logger.Infow("upload stored", "media_id", m.ID, "file", m.File, "size", m.Size)
	return m, false, nil
}

// place moves the spooled file to <category>/<name>.<ext>, trying
// <name>_1 .. <name>_N when the name is taken.
func (s *Service) place(c *candidate) (string, error) {
	category := categoryFor(c.mimeType)
	base := sanitizeName(c.name)
	ext := c.ext()
	if ext == "" {
		ext = "bin"
	}

	names := make([]string, 0, s.cfg.AlternativeFile+2)
	names = append(names, base)
	for n := 1; n <= s.cfg.AlternativeFile; n++ {
		names = append(names, fmt.Sprintf("%s_%d", base, n))
	}
	names = append(names, base+"_"+uuid.NewString()[:8])

	for _, name := range names {
		rel := path.Join(category, name+"."+ext)
		dst := s.locator.UploadPath(rel)
		ok, err := claim(dst)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if err := os.Rename(c.path, dst); err != nil {
			_ = os.Remove(dst)
			return "", &storage.StorageError{Op: "rename", Path: dst, Err: err}
		}
		return rel, nil
	}
	return "", &storage.StorageError{Op: "place", Path: path.Join(category, base+"."+ext), Err: os.ErrExist}
}

// claim creates dst exclusively so concurrent uploads never pick the same name.
func claim(dst string) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, &storage.StorageError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, os.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, &storage.StorageError{Op: "create", Path: dst, Err: err}
	}
	return true, f.Close()
}

// purgePublic drops public copies and variants left over from an earlier
// file with the same name.
func (s *Service) purgePublic(rel string) {
	public := s.locator.PublicPath(rel)
	stale := []string{public}
	if matches, err := filepath.Glob(strings.TrimSuffix(public, filepath.Ext(public)) + ",*"); err == nil {
		stale = append(stale, matches...)
	}
	for _, p := range stale {
		if err := os.Remove(p); err == nil {
			s.logger.Infow("stale public copy removed", "path", p)
		}
	}
}

func (s *Service) project(ctx context.Context, owner Owner) (map[string]any, error) {
	fields := s.cfg.Owners[owner.Kind]
	links, err := s.repo.ListLinks(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	byField := make(map[string]*Media, len(links))
	for _, l := range links {
		byField[l.Field] = l.Media
	}

	out := make(map[string]any)
	for field, set := range fields {
		m := byField[field]
		if m == nil {
			continue
		}
		for attr, key := range set {
			if v, ok := m.Attribute(attr); ok {
				out[key] = v
			}
		}
	}
	return out, nil
}

func sanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if len(name) > 64 {
		name = name[:64]
	}
	if name == "" || name == "." {
		return "file"
	}
	return name
}
