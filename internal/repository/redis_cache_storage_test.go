package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/basmagi-quiz/pkg/errors"
)

func TestRedisCacheStorageKeyLayout(t *testing.T) {
	r := NewRedisCacheStorage(nil, "", nil)
	assert.Equal(t, "offline:stores", r.storesKey())
	assert.Equal(t, "offline:store:basmagi-v2.4.0-static:index", r.indexKey("basmagi-v2.4.0-static"))
	assert.Equal(t, "offline:store:basmagi-v2.4.0-static:entry:/quiz.html?id=1", r.entryKey("basmagi-v2.4.0-static", "/quiz.html?id=1"))
}

func TestRedisCacheStorageWithoutClient(t *testing.T) {
	ctx := context.Background()
	r := NewRedisCacheStorage(nil, "test", nil)

	_, err := r.Match(ctx, "s", "/")
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	require.NoError(t, r.Put(ctx, "s", entry("/", "body")))
	require.NoError(t, r.Delete(ctx, "s", "/"))
	require.NoError(t, r.DeleteStore(ctx, "s"))

	keys, err := r.Keys(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, keys)
	stores, err := r.Stores(ctx)
	require.NoError(t, err)
	assert.Empty(t, stores)
	require.NoError(t, r.Close())
}

func TestRedisCacheStorageUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping unreachable host test in short mode")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:59999", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	r := NewRedisCacheStorage(client, "test", nil)
	defer r.Close()

	ctx := context.Background()
	_, err := r.Match(ctx, "s", "/")
	require.Error(t, err)
	assert.False(t, errors.Is(err, appErrors.ErrCacheMiss))
	assert.Error(t, r.Put(ctx, "s", entry("/", "body")))
}

func newMiniredisStorage(t *testing.T) (*RedisCacheStorage, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	r := NewRedisCacheStorage(client, "test", nil)
	t.Cleanup(func() { _ = r.Close() })
	return r, srv
}

func TestRedisCacheStoragePutMatch(t *testing.T) {
	ctx := context.Background()
	r, srv := newMiniredisStorage(t)

	e := entry("/quiz.html?id=1", "<html>quiz</html>")
	require.NoError(t, r.Put(ctx, "basmagi-v2.4.0-static", e))

	got, err := r.Match(ctx, "basmagi-v2.4.0-static", "/quiz.html?id=1")
	require.NoError(t, err)
	assert.Equal(t, e.Status, got.Status)
	assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
	assert.Equal(t, "<html>quiz</html>", string(got.Body))
	assert.True(t, e.StoredAt.Equal(got.StoredAt))

	_, err = r.Match(ctx, "basmagi-v2.4.0-static", "/missing")
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
	_, err = r.Match(ctx, "basmagi-v2.4.0-images", "/quiz.html?id=1")
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))

	assert.True(t, srv.Exists("test:store:basmagi-v2.4.0-static:entry:/quiz.html?id=1"))
	members, err := srv.SMembers("test:stores")
	require.NoError(t, err)
	assert.Equal(t, []string{"basmagi-v2.4.0-static"}, members)
}

func TestRedisCacheStorageKeysOldestFirst(t *testing.T) {
	ctx := context.Background()
	r, _ := newMiniredisStorage(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, url := range []string{"/c.png", "/a.png", "/b.png"} {
		e := entry(url, url)
		e.StoredAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, r.Put(ctx, "images", e))
	}
	refreshed := entry("/c.png", "newer")
	refreshed.StoredAt = base.Add(time.Minute)
	require.NoError(t, r.Put(ctx, "images", refreshed))

	keys, err := r.Keys(ctx, "images")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a.png", "/b.png", "/c.png"}, keys)

	require.NoError(t, r.Delete(ctx, "images", "/a.png"))
	keys, err = r.Keys(ctx, "images")
	require.NoError(t, err)
	assert.Equal(t, []string{"/b.png", "/c.png"}, keys)
	_, err = r.Match(ctx, "images", "/a.png")
	assert.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestRedisCacheStorageDeleteStore(t *testing.T) {
	ctx := context.Background()
	r, srv := newMiniredisStorage(t)

	require.NoError(t, r.Put(ctx, "basmagi-v1-static", entry("/", "old")))
	require.NoError(t, r.Put(ctx, "basmagi-v1-static", entry("/index.html", "old")))
	require.NoError(t, r.Put(ctx, "basmagi-v2-static", entry("/", "new")))

	stores, err := r.Stores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"basmagi-v1-static", "basmagi-v2-static"}, stores)

	require.NoError(t, r.DeleteStore(ctx, "basmagi-v1-static"))

	stores, err = r.Stores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"basmagi-v2-static"}, stores)
	keys, err := r.Keys(ctx, "basmagi-v1-static")
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.False(t, srv.Exists("test:store:basmagi-v1-static:entry:/"))
	assert.False(t, srv.Exists("test:store:basmagi-v1-static:index"))

	got, err := r.Match(ctx, "basmagi-v2-static", "/")
	require.NoError(t, err)
	assert.Equal(t, "new", string(got.Body))
}
