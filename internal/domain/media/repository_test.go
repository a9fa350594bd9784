package media

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepository_SaveAndLinkMergesOnChecksum(t *testing.T) {
	env := setupService(t, nil)
	repo := NewRepository(env.db)
	ctx := context.Background()

	first := &Media{File: "img/a.png", Dirname: "img", Basename: "a.png", MimeType: "image/png", Size: 10, Checksum: "c0ffee"}
	created, err := repo.SaveAndLink(ctx, first, nil)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotZero(t, first.ID)

	// same bytes stored under another name, as a racing upload would
	second := &Media{File: "img/b.png", Dirname: "img", Basename: "b.png", MimeType: "image/png", Size: 10, Checksum: "c0ffee"}
	link := &Link{Model: "User", ForeignID: "7", Field: "avatar"}
	created, err = repo.SaveAndLink(ctx, second, link)
	require.NoError(t, err)

	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "img/a.png", second.File)
	assert.Equal(t, first.ID, link.MediaID)
	assert.Equal(t, int64(1), env.countMedia(t))

	links, err := repo.ListLinks(ctx, Owner{Kind: "User", ID: "7"})
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, first.ID, links[0].MediaID)
	require.NotNil(t, links[0].Media)
	assert.Equal(t, "img/a.png", links[0].Media.File)
}

func TestRepository_DuplicatesHonoursContext(t *testing.T) {
	env := setupService(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRepository(env.db).Duplicates(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
