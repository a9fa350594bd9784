package transform

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// Generator renders variants of original files.
type Generator struct {
	registry    *Registry
	jpegQuality int
	logger      *zap.SugaredLogger
}

func NewGenerator(registry *Registry, jpegQuality int, logger *zap.SugaredLogger) *Generator {
	if jpegQuality <= 0 || jpegQuality > 100 {
		jpegQuality = 90
	}
	return &Generator{registry: registry, jpegQuality: jpegQuality, logger: logger}
}

// Registry exposes the transforms the generator dispatches to.
func (g *Generator) Registry() *Registry {
	return g.registry
}

// Generate applies the named transform to the original and encodes the
// result in the format of targetExt. Unknown transforms are rejected before
// the original is read.
func (g *Generator) Generate(ctx context.Context, originalPath, name string, args []string, targetExt string) ([]byte, error) {
	t, err := g.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	format, err := imaging.FormatFromExtension(strings.TrimPrefix(targetExt, "."))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransform, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, err := imaging.Open(originalPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrTransform, originalPath, err)
	}
	out, err := t.Apply(src, args)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, format, imaging.JPEGQuality(g.jpegQuality)); err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrTransform, err)
	}

	b := out.Bounds()
	g.logger.Debugw("variant generated",
		"original", originalPath,
		"transform", name,
		"args", args,
		"width", b.Dx(),
		"height", b.Dy(),
		"bytes", buf.Len(),
	)
	return buf.Bytes(), nil
}
