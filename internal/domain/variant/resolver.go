package variant

import (
	"fmt"
	"regexp"
	"strings"

	"mediaserver/internal/config"
)

// FitTransform is used for bare WxH tokens.
const FitTransform = "fit"

var dimensionsToken = regexp.MustCompile(`^(\d*)x(\d*)$`)

// Spec is what a variant token resolves to.
type Spec struct {
	Token     string
	Transform string
	Args      []string
	Preset    bool
}

// Resolver turns variant tokens into transform specs.
type Resolver struct {
	presets map[string]config.Preset
}

func NewResolver(presets map[string]config.Preset) *Resolver {
	return &Resolver{presets: presets}
}

// Resolve looks the token up in the presets, then tries WxH, then the inline
// form transform,arg1,arg2. Inline arguments are kept as strings.
func (r *Resolver) Resolve(token string) (Spec, error) {
	if p, ok := r.presets[token]; ok {
		return Spec{
			Token:     token,
			Transform: p.Transform,
			Args:      append([]string(nil), p.Args...),
			Preset:    true,
		}, nil
	}
	if m := dimensionsToken.FindStringSubmatch(token); m != nil {
		return Spec{Token: token, Transform: FitTransform, Args: []string{m[1], m[2]}}, nil
	}
	if strings.Contains(token, ",") {
		parts := strings.Split(token, ",")
		if parts[0] == "" {
			return Spec{}, fmt.Errorf("%w: %q", ErrUnresolvable, token)
		}
		return Spec{Token: token, Transform: parts[0], Args: parts[1:]}, nil
	}
	return Spec{}, fmt.Errorf("%w: %q", ErrUnresolvable, token)
}
