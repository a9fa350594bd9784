package transform

import (
	"fmt"
	"image"
	"sort"
	"sync"
)

// Transform produces a rendition of an image from positional string
// arguments.
type Transform interface {
	Apply(img image.Image, args []string) (image.Image, error)
	// Dimensions names the width and height a rendition is expected to have,
	// for placeholder lookups. Empty strings mean unknown.
	Dimensions(args []string) (width, height string)
}

// Func adapts a function to Transform. Its dimensions are read from the
// first two arguments.
type Func func(img image.Image, args []string) (image.Image, error)

func (f Func) Apply(img image.Image, args []string) (image.Image, error) {
	return f(img, args)
}

func (f Func) Dimensions(args []string) (string, string) {
	return leadingDimensions(args)
}

// Registry maps transform names to implementations.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]Transform
}

func NewRegistry() *Registry {
	return &Registry{transforms: make(map[string]Transform)}
}

// DefaultRegistry returns a registry holding the built-in image transforms,
// bounded by limits.
func DefaultRegistry(limits Limits) *Registry {
	r := NewRegistry()
	RegisterBuiltins(r, limits)
	return r
}

// Register adds or replaces a transform.
func (r *Registry) Register(name string, t Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transforms[name] = t
}

// Lookup fails with ErrUnsupportedTransform for unknown names.
func (r *Registry) Lookup(name string) (Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransform, name)
	}
	return t, nil
}

// Names lists the registered transforms in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func leadingDimensions(args []string) (string, string) {
	var w, h string
	if len(args) > 0 {
		w = args[0]
	}
	if len(args) > 1 {
		h = args[1]
	}
	return w, h
}
