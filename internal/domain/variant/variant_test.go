package variant

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaserver/internal/config"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		in   string
		want Request
	}{
		{"/img/example.jpg", Request{Path: "img/example.jpg", Category: "img", Name: "example", Ext: "jpg"}},
		{"img/example,small.jpg", Request{Path: "img/example,small.jpg", Category: "img", Name: "example", Token: "small", Ext: "jpg"}},
		{"img/2024/05/example,zoomCrop,50,50,center.png", Request{
			Path: "img/2024/05/example,zoomCrop,50,50,center.png", Category: "img",
			Name: "2024/05/example", Token: "zoomCrop,50,50,center", Ext: "png",
		}},
		{"doc/v1.2/manual,x300.pdf", Request{Path: "doc/v1.2/manual,x300.pdf", Category: "doc", Name: "v1.2/manual", Token: "x300", Ext: "pdf"}},
	}
	for _, tc := range cases {
		got, err := ParsePath(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParsePath_Rejects(t *testing.T) {
	for _, in := range []string{
		"",
		"/",
		"img/../secret.jpg",
		"img//a.jpg",
		"etc/passwd.txt",
		"img/noext",
		"img/trailing.",
		"img/,small.jpg",
		"img/photo,.jpg",
		"img/dir.v2/file",
	} {
		_, err := ParsePath(in)
		assert.True(t, errors.Is(err, ErrInvalidPath), "expected ErrInvalidPath for %q, got %v", in, err)
	}
}

func TestOriginalPath(t *testing.T) {
	assert.Equal(t, "img/example.jpg", OriginalPath("/img/example,small.jpg"))
	assert.Equal(t, "img/example.jpg", OriginalPath("img/example,fitCrop,50,50.jpg"))
	assert.Equal(t, "img/example.jpg", OriginalPath("img/example.jpg"))
	assert.Equal(t, "img/a,b/example.jpg", OriginalPath("img/a,b/example.jpg"))
}

func TestVariantPath(t *testing.T) {
	assert.Equal(t, "img/photo,icon.jpg", VariantPath("img/photo.jpg", "icon"))
}

func TestResolve(t *testing.T) {
	r := NewResolver(map[string]config.Preset{
		"small":   {Transform: "fitInside", Args: []string{"150", "300"}},
		"100x100": {Transform: "fitCrop", Args: []string{"99", "99"}},
	})

	t.Run("preset", func(t *testing.T) {
		spec, err := r.Resolve("small")
		require.NoError(t, err)
		assert.Equal(t, Spec{Token: "small", Transform: "fitInside", Args: []string{"150", "300"}, Preset: true}, spec)
	})

	t.Run("preset wins over dimensions", func(t *testing.T) {
		spec, err := r.Resolve("100x100")
		require.NoError(t, err)
		assert.Equal(t, "fitCrop", spec.Transform)
	})

	t.Run("dimensions", func(t *testing.T) {
		spec, err := r.Resolve("200x150")
		require.NoError(t, err)
		assert.Equal(t, Spec{Token: "200x150", Transform: "fit", Args: []string{"200", "150"}}, spec)
	})

	t.Run("open ended dimensions", func(t *testing.T) {
		spec, err := r.Resolve("x300")
		require.NoError(t, err)
		assert.Equal(t, []string{"", "300"}, spec.Args)
	})

	t.Run("inline", func(t *testing.T) {
		spec, err := r.Resolve("someother,1,2,3,foo,bar,zum")
		require.NoError(t, err)
		assert.Equal(t, "someother", spec.Transform)
		assert.Equal(t, []string{"1", "2", "3", "foo", "bar", "zum"}, spec.Args)
	})

	t.Run("unresolvable", func(t *testing.T) {
		_, err := r.Resolve("huge")
		assert.ErrorIs(t, err, ErrUnresolvable)
		_, err = r.Resolve(",50,50")
		assert.ErrorIs(t, err, ErrUnresolvable)
	})

	t.Run("preset args are copied", func(t *testing.T) {
		spec, err := r.Resolve("small")
		require.NoError(t, err)
		spec.Args[0] = "1"
		again, _ := r.Resolve("small")
		assert.Equal(t, "150", again.Args[0])
	})
}
