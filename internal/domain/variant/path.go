package variant

import (
	"fmt"
	"path"
	"strings"
)

// Categories are the first path segments served by the media gate.
var Categories = []string{"aud", "doc", "gen", "ico", "img", "txt", "vid"}

// Request is a media path split into its parts.
//
//	img/2024/photo,small.jpg -> Category=img Name=2024/photo Token=small Ext=jpg
type Request struct {
	Path     string
	Category string
	Name     string
	Token    string
	Ext      string
}

// HasVariant reports whether the path asks for a derived rendition.
func (r Request) HasVariant() bool {
	return r.Token != ""
}

// Original is the path of the original file the request derives from.
func (r Request) Original() string {
	return OriginalPath(r.Path)
}

// ParsePath validates a request path and splits it. The path is relative to
// the public store; a leading slash is ignored.
func ParsePath(raw string) (Request, error) {
	p := strings.TrimLeft(raw, "/")
	if p == "" || strings.Contains(p, "\\") || strings.ContainsRune(p, 0) {
		return Request{}, fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return Request{}, fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}

	category, rest, ok := strings.Cut(p, "/")
	if !ok || !isCategory(category) {
		return Request{}, fmt.Errorf("%w: unknown category in %q", ErrInvalidPath, raw)
	}

	dot := strings.LastIndex(rest, ".")
	if dot <= 0 || dot == len(rest)-1 || strings.Contains(rest[dot:], "/") {
		return Request{}, fmt.Errorf("%w: missing extension in %q", ErrInvalidPath, raw)
	}
	ext := rest[dot+1:]
	name := rest[:dot]

	req := Request{Path: p, Category: category, Ext: ext}
	dir, base := path.Split(name)
	if i := strings.Index(base, ","); i >= 0 {
		req.Token = base[i+1:]
		base = base[:i]
		if base == "" || req.Token == "" {
			return Request{}, fmt.Errorf("%w: empty name or variant in %q", ErrInvalidPath, raw)
		}
	}
	req.Name = dir + base
	return req, nil
}

// OriginalPath strips a variant token: dir/name,token.ext -> dir/name.ext.
func OriginalPath(p string) string {
	p = strings.TrimLeft(p, "/")
	slash := strings.LastIndex(p, "/")
	comma := strings.Index(p[slash+1:], ",")
	if comma < 0 {
		return p
	}
	comma += slash + 1
	dot := strings.LastIndex(p, ".")
	if dot < comma {
		return p[:comma]
	}
	return p[:comma] + p[dot:]
}

// VariantPath builds the public path of a variant of an original.
func VariantPath(original, token string) string {
	ext := path.Ext(original)
	return strings.TrimSuffix(original, ext) + "," + token + ext
}

func isCategory(s string) bool {
	for _, c := range Categories {
		if c == s {
			return true
		}
	}
	return false
}
