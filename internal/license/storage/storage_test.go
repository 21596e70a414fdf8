package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Read(ctx, KeyLicenseCache)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Write(ctx, KeyLicenseCache, []byte(`{"a":1}`)))
	got, err := store.Read(ctx, KeyLicenseCache)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(got))

	// last writer wins
	require.NoError(t, store.Write(ctx, KeyLicenseCache, []byte(`{"a":2}`)))
	got, err = store.Read(ctx, KeyLicenseCache)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(got))

	_, err = store.Read(ctx, KeyLicenseUsage)
	require.ErrorIs(t, err, ErrNotFound, "keys must be independent")

	require.NoError(t, store.Remove(ctx, KeyLicenseCache))
	_, err = store.Read(ctx, KeyLicenseCache)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Remove(ctx, KeyLicenseCache), "removing a missing key is not an error")

	for _, bad := range []string{"", "..", "a/b", `a\b`, "../escape"} {
		assert.ErrorIs(t, store.Write(ctx, bad, []byte("x")), errInvalidKey, "key %q", bad)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value := []byte("original")
	require.NoError(t, store.Write(ctx, "k", value))
	value[0] = 'X'

	got, err := store.Read(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestNewFileStoreRejectsEmptyDir(t *testing.T) {
	_, err := NewFileStore("  ")
	require.Error(t, err)
}

func TestFileStoreWritesOwnerOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not enforced on windows")
	}

	dir := filepath.Join(t.TempDir(), "a11ykit")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), KeyLicenseCache, []byte("{}")))

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())

	fileInfo, err := os.Stat(store.Path(KeyLicenseCache))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fileInfo.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFileStoreRefusesSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	target := filepath.Join(t.TempDir(), "elsewhere.json")
	require.NoError(t, os.WriteFile(target, []byte(`{"valid":true}`), 0o600))
	require.NoError(t, os.Symlink(target, store.Path(KeyLicenseCache)))

	_, err = store.Read(context.Background(), KeyLicenseCache)
	require.ErrorIs(t, err, errUnsafeRecordPath)

	err = store.Write(context.Background(), KeyLicenseCache, []byte("{}"))
	require.ErrorIs(t, err, errUnsafeRecordPath)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, `{"valid":true}`, string(data), "symlink target must be untouched")
}

func TestFileStoreRejectsOversizedRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	big := make([]byte, maxRecordFileSize+1)
	require.NoError(t, os.WriteFile(store.Path(KeyLicenseUsage), big, 0o600))

	_, err = store.Read(context.Background(), KeyLicenseUsage)
	require.ErrorIs(t, err, errUnsafeRecordPath)
}

func TestFileStoreHonoursCanceledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Write(ctx, KeyLicenseCache, []byte("{}"))
	require.True(t, errors.Is(err, context.Canceled))
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client)
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestRedisStorePrefixesKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStore(client)
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), KeyLicenseCache, []byte("{}")))

	raw, err := mr.Get("a11ykit:" + KeyLicenseCache)
	require.NoError(t, err)
	assert.Equal(t, "{}", raw)
	assert.NoError(t, store.Close(), "borrowed clients are not closed")
}

func TestNewRedisStoreNilClient(t *testing.T) {
	store, err := NewRedisStore(nil)
	require.ErrorIs(t, err, errNilRedisClient)
	assert.Nil(t, store)
}

func TestOpenRedisUnreachable(t *testing.T) {
	_, closeFn, err := Open(Options{Kind: KindRedis, RedisAddr: "127.0.0.1:1"})
	require.Error(t, err)
	require.NotNil(t, closeFn)
	assert.Contains(t, err.Error(), "connect to redis at 127.0.0.1:1")
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		opts Options
		want any
	}{
		{name: "default is file", opts: Options{Dir: t.TempDir()}, want: &FileStore{}},
		{name: "memory", opts: Options{Kind: KindMemory}, want: &MemoryStore{}},
		{name: "redis", opts: Options{Kind: KindRedis, RedisAddr: mr.Addr()}, want: &RedisStore{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := Open(tt.opts)
			require.NoError(t, err)
			require.NotNil(t, closeFn)
			t.Cleanup(func() { _ = closeFn() })
			assert.IsType(t, tt.want, store)
		})
	}
}

func TestOpenErrors(t *testing.T) {
	_, closeFn, err := Open(Options{Kind: KindFile})
	require.Error(t, err)
	require.NotNil(t, closeFn)

	_, _, err = Open(Options{Kind: KindRedis, RedisAddr: ""})
	require.Error(t, err)

	_, _, err = Open(Options{Kind: "s3"})
	require.Error(t, err)
}

func TestParseKind(t *testing.T) {
	kind, err := ParseKind("")
	require.NoError(t, err)
	assert.Equal(t, KindFile, kind)

	kind, err = ParseKind(" Redis ")
	require.NoError(t, err)
	assert.Equal(t, KindRedis, kind)

	_, err = ParseKind("bolt")
	require.Error(t, err)
}
