package render

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"
	"time"

	"designlab/core"

	"github.com/disintegration/imaging"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_RenderPNGUsesCache(t *testing.T) {
	loader := newSolidLoader()
	loader.add("tee.png", 400, 300, red)
	r := NewRenderer(loader, Options{}, NewMemoryCache(4))
	d := core.Design{ID: "d1", Product: &core.ProductRef{ID: "p1", ImageURL: "tee.png"}}

	first, err := r.RenderPNG(context.Background(), d)
	require.NoError(t, err)

	d.Name = "renamed"
	second, err := r.RenderPNG(context.Background(), d)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, loader.callCount("tee.png"))

	img, err := png.Decode(bytes.NewReader(first))
	require.NoError(t, err)
	w, h := r.Size()
	assert.Equal(t, w, img.Bounds().Dx())
	assert.Equal(t, h, img.Bounds().Dy())
}

func TestRenderer_FailedLoadIsNotCached(t *testing.T) {
	loader := newSolidLoader()
	r := NewRenderer(loader, Options{Width: 40, Height: 30}, NewMemoryCache(4))
	d := core.Design{ID: "d1", Product: &core.ProductRef{ID: "p1", ImageURL: "tee.png"}}

	blank, err := r.RenderPNG(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 1, loader.callCount("tee.png"))

	// The image host recovers.
	loader.add("tee.png", 40, 30, red)
	recovered, err := r.RenderPNG(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, 2, loader.callCount("tee.png"), "failed preview must not be served from the cache")
	assert.NotEqual(t, blank, recovered)

	cached, err := r.RenderPNG(context.Background(), d)
	require.NoError(t, err)
	assert.Equal(t, recovered, cached)
	assert.Equal(t, 2, loader.callCount("tee.png"))
}

func TestCacheKey(t *testing.T) {
	d := core.Design{Product: &core.ProductRef{ID: "p1"}, Layers: []core.Layer{layer("A", "a.png", 0, 0, 0, 10, 10)}}
	base := CacheKey(d, 800, 600)

	renamed := d.Clone()
	renamed.Name = "other"
	assert.Equal(t, base, CacheKey(renamed, 800, 600))

	moved := d.Clone()
	moved.Layers[0].X = 1
	assert.NotEqual(t, base, CacheKey(moved, 800, 600))
	assert.NotEqual(t, base, CacheKey(d, 1024, 768))
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2)
	c.Put(ctx, "a", []byte("1"))
	c.Put(ctx, "b", []byte("2"))
	c.Put(ctx, "a", []byte("3"))
	c.Put(ctx, "c", []byte("4"))

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	got, ok := c.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, []byte("2"), got)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestRedisCache_UnreachableIsMiss(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	c := NewRedisCacheWithClient(client, time.Minute)
	defer c.Close()

	ctx := context.Background()
	c.Put(ctx, "k", []byte("v"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNewRedisCache_InvalidURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url", time.Minute)
	assert.Error(t, err)
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, imaging.JPEG, FormatFor("out.jpg"))
	assert.Equal(t, imaging.PNG, FormatFor("out.png"))
	assert.Equal(t, imaging.PNG, FormatFor("out"))
}

func TestSchemeLoader(t *testing.T) {
	var got string
	rec := func(tag string) Loader {
		return LoaderFunc(func(_ context.Context, src string) (image.Image, error) {
			got = tag
			return imaging.New(1, 1, red), nil
		})
	}
	l := SchemeLoader{HTTP: rec("http"), File: rec("file")}

	_, err := l.Load(context.Background(), "https://cdn.example.com/a.png")
	require.NoError(t, err)
	assert.Equal(t, "http", got)

	_, err = l.Load(context.Background(), "art/a.png")
	require.NoError(t, err)
	assert.Equal(t, "file", got)
}
