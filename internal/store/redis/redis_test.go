package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/internal/store/storetest"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

func setupTestRedis(t *testing.T, opts Options) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := New(client, opts)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := setupTestRedis(t, Options{KeyPrefix: "test:", MaxRetries: 50})
		return s
	})
}

func TestKeyLayout(t *testing.T) {
	s, mr := setupTestRedis(t, Options{KeyPrefix: "ms:"})
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/cart/p1", map[string]int{"quantity": 2}))

	raw, err := mr.Get("ms:d:users/u1/cart/p1")
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(raw), &env))
	assert.Equal(t, int64(1), env.Version)
	assert.JSONEq(t, `{"quantity":2}`, string(env.Doc))

	for _, idx := range []string{"ms:i:users", "ms:i:users/u1", "ms:i:users/u1/cart"} {
		members, err := mr.Members(idx)
		require.NoError(t, err, idx)
		assert.Equal(t, []string{"users/u1/cart/p1"}, members, idx)
	}

	require.NoError(t, s.Delete(ctx, "users/u1/cart/p1"))
	assert.False(t, mr.Exists("ms:d:users/u1/cart/p1"))
	assert.False(t, mr.Exists("ms:i:users/u1/cart"))
}

func TestList_SkipsStaleIndexMembers(t *testing.T) {
	s, mr := setupTestRedis(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/cart/p1", map[string]int{"quantity": 1}))
	_, err := mr.SetAdd("i:users/u1/cart", "users/u1/cart/ghost")
	require.NoError(t, err)

	entries, err := s.List(ctx, "users/u1/cart")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users/u1/cart/p1", entries[0].Path)
}

func TestUpdate_RetriesWhenWatchedKeyChanges(t *testing.T) {
	s, mr := setupTestRedis(t, Options{})
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/points", map[string]int64{"balance": 100}))

	attempts := 0
	err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		attempts++
		e, err := tx.Read(ctx, "users/u1/points")
		if err != nil {
			return err
		}
		if attempts == 1 {
			// A concurrent writer touches the watched key.
			require.NoError(t, mr.Set("d:users/u1/points", `{"v":2,"d":{"balance":500}}`))
		}
		var acc map[string]int64
		if err := json.Unmarshal(e.Value, &acc); err != nil {
			return err
		}
		acc["balance"] -= 50
		return tx.Write(ctx, "users/u1/points", acc)
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)

	e, err := s.Read(ctx, "users/u1/points")
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":450}`, string(e.Value))
	assert.Equal(t, int64(3), e.Version)
}

func TestUpdate_ConflictAfterMaxRetries(t *testing.T) {
	s, mr := setupTestRedis(t, Options{MaxRetries: 3})
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/points", map[string]int{"balance": 1}))

	attempts := 0
	err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		attempts++
		if _, err := tx.Read(ctx, "users/u1/points"); err != nil {
			return err
		}
		require.NoError(t, mr.Set("d:users/u1/points", `{"v":9,"d":{"balance":1}}`))
		return tx.Write(ctx, "users/u1/points", map[string]int{"balance": 2})
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Equal(t, 3, attempts)
}

func TestRead_CorruptEnvelope(t *testing.T) {
	s, mr := setupTestRedis(t, Options{})
	require.NoError(t, mr.Set("d:users/u1/profile", "{{nope"))

	_, err := s.Read(context.Background(), "users/u1/profile")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode users/u1/profile")
}

func TestPing(t *testing.T) {
	s, mr := setupTestRedis(t, Options{})
	assert.NoError(t, s.Ping(context.Background()))
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}
