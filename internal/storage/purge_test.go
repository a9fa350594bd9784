package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurgeVariants(t *testing.T) {
	public := t.TempDir()
	original := filepath.Join(public, "img", "photo.jpg")
	small := filepath.Join(public, "img", "photo,small.jpg")
	nested := filepath.Join(public, "img", "2024", "a,20x20.png")
	outside := filepath.Join(public, "assets", "x,y.css")
	for _, p := range []string{original, small, nested, outside} {
		writeFile(t, p, "x")
	}

	removed, err := PurgeVariants(public, time.Time{}, true)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{small, nested}, removed)
	assert.FileExists(t, small)

	removed, err = PurgeVariants(public, time.Time{}, false)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.NoFileExists(t, small)
	assert.NoFileExists(t, nested)
	assert.FileExists(t, original)
	assert.FileExists(t, outside)
}

func TestPurgeVariants_Cutoff(t *testing.T) {
	public := t.TempDir()
	old := filepath.Join(public, "img", "old,small.jpg")
	fresh := filepath.Join(public, "img", "new,small.jpg")
	writeFile(t, old, "x")
	writeFile(t, fresh, "x")
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := PurgeVariants(public, time.Now().Add(-24*time.Hour), false)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, removed)
	assert.FileExists(t, fresh)
}

func TestPurgeVariants_MissingStore(t *testing.T) {
	removed, err := PurgeVariants(filepath.Join(t.TempDir(), "nope"), time.Time{}, false)
	require.NoError(t, err)
	assert.Empty(t, removed)
}
