package alert

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestState_Clone(t *testing.T) {
	var nilState State
	c := nilState.Clone()
	require.NotNil(t, c)
	assert.Empty(t, c)

	s := State{"lint": "1"}
	c = s.Clone()
	c["lint"] = "2"
	assert.Equal(t, "1", s["lint"])
}

func TestState_Jobs(t *testing.T) {
	assert.Equal(t, []string{"e2e", "lint"}, State{"lint": "1", "e2e": "2"}.Jobs())
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(State{"lint": "1"})

	s, err := m.Load(ctx)
	require.NoError(t, err)
	s["lint"] = "changed"

	reloaded, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{"lint": "1"}, reloaded)

	require.NoError(t, m.Save(ctx, State{"e2e": "9"}))
	reloaded, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{"e2e": "9"}, reloaded)
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	f := NewFileStore(filepath.Join(t.TempDir(), "state.json"), testLogger())

	s, err := f.Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")
	f := NewFileStore(path, testLogger())

	require.NoError(t, f.Save(ctx, State{"lint": "5", "unit-test (amd64)": "12"}))
	require.NoError(t, f.Save(ctx, State{"lint": "6"}))

	s, err := f.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{"lint": "6"}, s, "save replaces the whole state")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files are left behind")
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestFileStore_ReadsPlainJSONObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_notified_state.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lint": "42", "e2e": "7"}`), 0644))

	s, err := NewFileStore(path, testLogger()).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, State{"lint": "42", "e2e": "7"}, s)
}

func TestFileStore_EmptyFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	s, err := NewFileStore(path, testLogger()).Load(context.Background())

	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestFileStore_CorruptFileIsPersistenceError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := NewFileStore(path, testLogger()).Load(context.Background())

	assert.ErrorIs(t, err, ErrStatePersistence)
}

func TestFileStore_UnwritableIsPersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	f := NewFileStore(filepath.Join(blocker, "state.json"), testLogger())
	err := f.Save(context.Background(), State{"lint": "1"})

	assert.ErrorIs(t, err, ErrStatePersistence)
}

// setupTestRedis connects to REDIS_ADDR, skipping the test when redis is not
// reachable.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStore_RoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	ctx := context.Background()
	key := "ciwatch:test:" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	r := NewRedisStore(client, key)

	s, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s)

	require.NoError(t, r.Save(ctx, State{"lint": "5", "e2e": "3"}))
	require.NoError(t, r.Save(ctx, State{"lint": "6"}))

	s, err = r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, State{"lint": "6"}, s)

	require.NoError(t, r.Save(ctx, State{}))
	s, err = r.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, s)
}

func TestRedisStore_UnreachableIsPersistenceError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	r := NewRedisStore(client, "")

	_, err := r.Load(context.Background())
	assert.ErrorIs(t, err, ErrStatePersistence)
	assert.ErrorIs(t, r.Save(context.Background(), State{"lint": "1"}), ErrStatePersistence)
}
