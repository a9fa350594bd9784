package media

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/tiff"

	"mediaserver/internal/config"
)

// candidate is an upload spooled to disk and waiting for validation.
type candidate struct {
	name     string // client file name
	path     string // spooled copy
	size     int64
	tooLarge bool
	checksum string
	mimeType string
	sniffExt string
	width    int
	height   int
}

// ext is the client's extension, or the sniffed one when the name has none.
func (c *candidate) ext() string {
	if ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(c.name), ".")); ext != "" {
		return ext
	}
	return c.sniffExt
}

// rule is one validation step. Rules run in order and the first failure wins.
type rule struct {
	kind  string
	check func(c *candidate) bool
}

// Rules are ordered from the cheapest to the most expensive check;
// resource, access and permission run before the file is spooled.
func contentRules(cfg config.UploadConfig) []rule {
	return []rule{
		{RuleSize, func(c *candidate) bool {
			return !c.tooLarge && c.size <= cfg.MaxSize
		}},
		{RulePixels, func(c *candidate) bool {
			if cfg.MaxWidth > 0 && c.width > cfg.MaxWidth {
				return false
			}
			return cfg.MaxHeight == 0 || c.height <= cfg.MaxHeight
		}},
		{RuleExtension, func(c *candidate) bool {
			return listed(c.ext(), cfg.AllowedExts, cfg.DeniedExts)
		}},
		{RuleMimeType, func(c *candidate) bool {
			return listed(c.mimeType, cfg.AllowedMimeTypes, cfg.DeniedMimeTypes)
		}},
	}
}

// listed applies a deny list, then an allow list when one is set.
func listed(v string, allow, deny []string) bool {
	if v == "" {
		return len(allow) == 0
	}
	if slices.Contains(deny, v) {
		return false
	}
	return len(allow) == 0 || slices.Contains(allow, v)
}

// checkSource runs the resource, access and permission rules on a local
// file before it is read.
func checkSource(path string) (*os.File, string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return nil, RuleResource
	}
	if info.Mode().Perm()&0o111 != 0 {
		return nil, RulePermission
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, RuleAccess
	}
	return f, ""
}

// inspect sniffs the spooled file and reads image dimensions when it has any.
func inspect(c *candidate) error {
	mt, err := mimetype.DetectFile(c.path)
	if err != nil {
		return err
	}
	c.mimeType, _, _ = strings.Cut(mt.String(), ";")
	c.mimeType = strings.TrimSpace(c.mimeType)
	c.sniffExt = strings.TrimPrefix(mt.Extension(), ".")

	if !strings.HasPrefix(c.mimeType, "image/") {
		return nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		return err
	}
	defer f.Close()
	if cfg, _, err := image.DecodeConfig(f); err == nil {
		c.width, c.height = cfg.Width, cfg.Height
	}
	return nil
}

// categoryFor maps a MIME type onto the first path segment of the store.
func categoryFor(mimeType string) string {
	major, minor, _ := strings.Cut(mimeType, "/")
	switch {
	case minor == "x-icon" || minor == "vnd.microsoft.icon":
		return "ico"
	case major == "image":
		return "img"
	case major == "video":
		return "vid"
	case major == "audio":
		return "aud"
	case major == "text":
		return "txt"
	case mimeType == "application/pdf",
		strings.HasPrefix(minor, "msword"),
		strings.HasPrefix(minor, "vnd.openxmlformats"),
		strings.HasPrefix(minor, "vnd.oasis.opendocument"):
		return "doc"
	}
	return "gen"
}
