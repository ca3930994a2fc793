package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalCache(t *testing.T, opts ...Option) *ImageCache {
	t.Helper()
	l, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	return New(l, opts...)
}

func TestImageCache_PutGet(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := newLocalCache(t, WithClock(clockwork.NewFakeClockAt(now)))
	ctx := context.Background()

	id, err := c.Put(ctx, []byte("png bytes"), "image/png")
	require.NoError(t, err)
	assert.True(t, ValidID(id))

	e, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", e.ContentType)
	assert.Equal(t, []byte("png bytes"), e.Data)
	assert.Empty(t, e.SourceURL)
	assert.True(t, now.Equal(e.CreatedAt))
}

func TestImageCache_PutIsContentAddressed(t *testing.T) {
	c := newLocalCache(t)
	ctx := context.Background()

	a, err := c.Put(ctx, []byte("same"), "image/png")
	require.NoError(t, err)
	b, err := c.Put(ctx, []byte("same"), "image/png")
	require.NoError(t, err)
	other, err := c.Put(ctx, []byte("different"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, other)
}

func TestImageCache_GetUnknown(t *testing.T) {
	c := newLocalCache(t)
	ctx := context.Background()

	_, err := c.Get(ctx, strings.Repeat("ab", 32))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestImageCache_URLEntries(t *testing.T) {
	c := newLocalCache(t)
	ctx := context.Background()
	url := "https://img.example/cat.png?sig=1"

	_, err := c.GetURL(ctx, url)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, c.PutURL(ctx, url, []byte("cat"), "image/png"))

	e, err := c.GetURL(ctx, url)
	require.NoError(t, err)
	assert.Equal(t, url, e.SourceURL)
	assert.Equal(t, []byte("cat"), e.Data)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(strings.Repeat("0f", 32)))
	assert.False(t, ValidID(""))
	assert.False(t, ValidID(strings.Repeat("0f", 31)))
	assert.False(t, ValidID(strings.Repeat("zz", 32)))
}
