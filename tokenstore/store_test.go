package tokenstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, store Store, clock *fakeClock) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "absent")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k1", []byte(`{"access_token":"abc"}`), time.Hour))

		value, err := store.Get(ctx, "k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"access_token":"abc"}`, string(value))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k2", []byte("first"), time.Hour))
		require.NoError(t, store.Put(ctx, "k2", []byte("second"), time.Hour))

		value, err := store.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "second", string(value))
	})

	t.Run("ttl elapses", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k3", []byte("short"), time.Minute))
		clock.Advance(2 * time.Minute)

		_, err := store.Get(ctx, "k3")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("no ttl never expires", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k4", []byte("forever"), 0))
		clock.Advance(1000 * time.Hour)

		value, err := store.Get(ctx, "k4")
		require.NoError(t, err)
		assert.Equal(t, "forever", string(value))
	})

	t.Run("forget", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "k5", []byte("gone"), time.Hour))
		require.NoError(t, store.Forget(ctx, "k5"))

		_, err := store.Get(ctx, "k5")
		require.ErrorIs(t, err, ErrNotFound)

		// Forgetting twice is fine.
		require.NoError(t, store.Forget(ctx, "k5"))
	})
}

func TestMemory(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewMemory()
	store.now = clock.Now

	exerciseStore(t, store, clock)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	value := []byte("original")
	require.NoError(t, store.Put(ctx, "k", value, time.Hour))
	value[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'Y'

	again, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again))
}

func TestFile(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store, err := NewFile(t.TempDir())
	require.NoError(t, err)
	store.now = clock.Now

	exerciseStore(t, store, clock)
}

func TestFileRejectsPathKeys(t *testing.T) {
	store, err := NewFile(t.TempDir())
	require.NoError(t, err)

	err = store.Put(context.Background(), "../escape", []byte("x"), time.Hour)
	require.Error(t, err)
}

func TestKeyring(t *testing.T) {
	keyring.MockInit()

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewKeyring("")
	store.now = clock.Now

	exerciseStore(t, store, clock)
}

func TestSQLite(t *testing.T) {
	store, err := OpenSQL(context.Background(), DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store.now = clock.Now

	exerciseStore(t, store, clock)
}

func TestOpenSQLUnknownDriver(t *testing.T) {
	_, err := OpenSQL(context.Background(), "mysql", "")
	require.Error(t, err)
}

func TestRecordExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	r := newRecord([]byte("v"), time.Minute, now)
	assert.False(t, r.expired(now.Add(59*time.Second)))
	assert.True(t, r.expired(now.Add(time.Minute)))

	forever := newRecord([]byte("v"), 0, now)
	assert.False(t, forever.expired(now.Add(24*time.Hour)))
}
