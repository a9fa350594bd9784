package transform

import (
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Limits caps the size of a rendition. Zero leaves a side unbounded.
type Limits struct {
	MaxWidth  int
	MaxHeight int
}

func (l Limits) check(w, h int) error {
	if (l.MaxWidth > 0 && w > l.MaxWidth) || (l.MaxHeight > 0 && h > l.MaxHeight) {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrTransform, w, h, l.MaxWidth, l.MaxHeight)
	}
	return nil
}

// RegisterBuiltins adds the stock image transforms to r. Every rendition
// they produce stays within limits.
func RegisterBuiltins(r *Registry, limits Limits) {
	b := builtins{limits: limits}
	r.Register("fit", Func(b.fit))
	r.Register("fitInside", Func(b.fitInside))
	r.Register("fitOutside", Func(b.fitOutside))
	r.Register("fitCrop", Func(b.fitCrop))
	r.Register("zoomCrop", Func(b.zoomCrop))
	r.Register("crop", cropTransform{})
}

type builtins struct {
	limits Limits
}

// fit scales proportionally so both sides stay within the box, enlarging
// when needed.
func (b builtins) fit(img image.Image, args []string) (image.Image, error) {
	w, h, err := boxArgs(args)
	if err != nil {
		return nil, err
	}
	return b.scale(img, w, h, false, true)
}

// fitInside is fit without enlarging.
func (b builtins) fitInside(img image.Image, args []string) (image.Image, error) {
	w, h, err := boxArgs(args)
	if err != nil {
		return nil, err
	}
	return b.scale(img, w, h, false, false)
}

// fitOutside scales proportionally so the box is covered.
func (b builtins) fitOutside(img image.Image, args []string) (image.Image, error) {
	w, h, err := boxArgs(args)
	if err != nil {
		return nil, err
	}
	return b.scale(img, w, h, true, true)
}

// fitCrop covers the box and crops the overflow around the center.
func (b builtins) fitCrop(img image.Image, args []string) (image.Image, error) {
	w, h, err := boxArgs(args)
	if err != nil {
		return nil, err
	}
	return b.fill(img, w, h, imaging.Center)
}

// zoomCrop is fitCrop with a gravity argument: zoomCrop,W,H[,gravity].
func (b builtins) zoomCrop(img image.Image, args []string) (image.Image, error) {
	w, h, err := boxArgs(args)
	if err != nil {
		return nil, err
	}
	anchor := imaging.Center
	if len(args) > 2 {
		if anchor, err = parseGravity(args[2]); err != nil {
			return nil, err
		}
	}
	return b.fill(img, w, h, anchor)
}

func (b builtins) fill(img image.Image, w, h int, anchor imaging.Anchor) (image.Image, error) {
	if w == 0 || h == 0 {
		return b.scale(img, w, h, false, true)
	}
	if err := b.limits.check(w, h); err != nil {
		return nil, err
	}
	return imaging.Fill(img, w, h, anchor, imaging.Lanczos), nil
}

// cropTransform cuts a rectangle: crop,left,top,width,height.
type cropTransform struct{}

func (cropTransform) Apply(img image.Image, args []string) (image.Image, error) {
	if len(args) < 4 {
		return nil, fmt.Errorf("%w: crop needs left,top,width,height", ErrTransform)
	}
	var v [4]int
	for i := range v {
		n, err := parseDim(args[i])
		if err != nil {
			return nil, err
		}
		v[i] = n
	}
	b := img.Bounds()
	rect := image.Rect(b.Min.X+v[0], b.Min.Y+v[1], b.Min.X+v[0]+v[2], b.Min.Y+v[1]+v[3]).Intersect(b)
	if rect.Empty() {
		return nil, fmt.Errorf("%w: crop rectangle outside image", ErrTransform)
	}
	return imaging.Crop(img, rect), nil
}

func (cropTransform) Dimensions(args []string) (string, string) {
	if len(args) < 4 {
		return "", ""
	}
	return args[2], args[3]
}

func boxArgs(args []string) (int, int, error) {
	w, h := leadingDimensions(args)
	width, err := parseDim(w)
	if err != nil {
		return 0, 0, err
	}
	height, err := parseDim(h)
	if err != nil {
		return 0, 0, err
	}
	return width, height, nil
}

// parseDim reads a non-negative integer; empty means unconstrained (0).
func parseDim(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: bad dimension %q", ErrTransform, s)
	}
	return n, nil
}

func (b builtins) scale(img image.Image, w, h int, cover, enlarge bool) (image.Image, error) {
	bounds := img.Bounds()
	sw, sh := float64(bounds.Dx()), float64(bounds.Dy())
	if sw == 0 || sh == 0 || (w == 0 && h == 0) {
		return img, nil
	}

	var r float64
	switch {
	case w == 0:
		r = float64(h) / sh
	case h == 0:
		r = float64(w) / sw
	case cover:
		r = math.Max(float64(w)/sw, float64(h)/sh)
	default:
		r = math.Min(float64(w)/sw, float64(h)/sh)
	}
	if r == 1 || (r > 1 && !enlarge) {
		return img, nil
	}

	tw := math.Max(1, math.Round(sw*r))
	th := math.Max(1, math.Round(sh*r))
	if tw > math.MaxInt32 || th > math.MaxInt32 {
		return nil, fmt.Errorf("%w: %.0fx%.0f is too large", ErrTransform, tw, th)
	}
	if err := b.limits.check(int(tw), int(th)); err != nil {
		return nil, err
	}
	return imaging.Resize(img, int(tw), int(th), imaging.Lanczos), nil
}

func parseGravity(s string) (imaging.Anchor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "center", "c":
		return imaging.Center, nil
	case "top", "t", "north":
		return imaging.Top, nil
	case "bottom", "b", "south":
		return imaging.Bottom, nil
	case "left", "l", "west":
		return imaging.Left, nil
	case "right", "r", "east":
		return imaging.Right, nil
	case "topleft", "tl", "northwest":
		return imaging.TopLeft, nil
	case "topright", "tr", "northeast":
		return imaging.TopRight, nil
	case "bottomleft", "bl", "southwest":
		return imaging.BottomLeft, nil
	case "bottomright", "br", "southeast":
		return imaging.BottomRight, nil
	}
	return imaging.Center, fmt.Errorf("%w: unknown gravity %q", ErrTransform, s)
}
