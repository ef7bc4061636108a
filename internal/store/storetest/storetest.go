// Package storetest holds behavior tests every store backend must pass.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/mobileshop/internal/store"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) store.Store

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Run exercises the store contract.
func Run(t *testing.T, newStore Factory) {
	t.Run("ReadMissing", func(t *testing.T) { testReadMissing(t, newStore(t)) })
	t.Run("WriteRead", func(t *testing.T) { testWriteRead(t, newStore(t)) })
	t.Run("ListSortedDescendants", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("Patch", func(t *testing.T) { testPatch(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("InvalidPath", func(t *testing.T) { testInvalidPath(t, newStore(t)) })
	t.Run("UpdateReadsOwnWrites", func(t *testing.T) { testUpdateReadYourWrites(t, newStore(t)) })
	t.Run("UpdateRollsBackOnError", func(t *testing.T) { testUpdateRollback(t, newStore(t)) })
	t.Run("UpdateConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("Subscribe", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

func testReadMissing(t *testing.T, s store.Store) {
	_, err := s.Read(context.Background(), "users/u1/points")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.True(t, store.IsNotFound(err))
}

func testWriteRead(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/profile", doc{Name: "Lan", Count: 1}))

	e, err := s.Read(ctx, "users/u1/profile")
	require.NoError(t, err)
	assert.Equal(t, "users/u1/profile", e.Path)
	assert.Equal(t, int64(1), e.Version)
	got, err := store.Decode[doc](e)
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "Lan", Count: 1}, got)

	require.NoError(t, s.Write(ctx, "users/u1/profile", doc{Name: "Minh"}))
	e, err = s.Read(ctx, "users/u1/profile")
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Version)
	got, err = store.Decode[doc](e)
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "Minh"}, got)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, p := range []string{"users/u1/cart/b", "users/u1/cart/a", "users/u1/cartx/z", "users/u2/cart/a", "users/u1/cart"} {
		require.NoError(t, s.Write(ctx, p, doc{Name: p}))
	}

	entries, err := s.List(ctx, "users/u1/cart")
	require.NoError(t, err)
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	assert.Equal(t, []string{"users/u1/cart/a", "users/u1/cart/b"}, paths)

	entries, err = s.List(ctx, "users/nobody")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testPatch(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.Patch(ctx, "users/u1/cart/p1", map[string]any{"count": 2})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, s.Write(ctx, "users/u1/cart/p1", doc{Name: "case", Count: 1}))
	require.NoError(t, s.Patch(ctx, "users/u1/cart/p1", map[string]any{"count": 5}))

	e, err := s.Read(ctx, "users/u1/cart/p1")
	require.NoError(t, err)
	got, err := store.Decode[doc](e)
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "case", Count: 5}, got)
	assert.Equal(t, int64(2), e.Version)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, "users/u1/cart/none"))

	require.NoError(t, s.Write(ctx, "users/u1/cart/p1", doc{Name: "case"}))
	require.NoError(t, s.Delete(ctx, "users/u1/cart/p1"))
	_, err := s.Read(ctx, "users/u1/cart/p1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	entries, err := s.List(ctx, "users/u1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func testInvalidPath(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, p := range []string{"", "users//cart", "/users", "users/u1/"} {
		_, err := s.Read(ctx, p)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "path %q", p)
		assert.ErrorIs(t, s.Write(ctx, p, doc{}), apperrors.ErrInvalidInput, "path %q", p)
	}
}

func testUpdateReadYourWrites(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/cart/a", doc{Name: "a"}))

	err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Write(ctx, "users/u1/cart/b", doc{Name: "b"}); err != nil {
			return err
		}
		if err := tx.Delete(ctx, "users/u1/cart/a"); err != nil {
			return err
		}
		e, err := tx.Read(ctx, "users/u1/cart/b")
		if err != nil {
			return err
		}
		got, err := store.Decode[doc](e)
		if err != nil {
			return err
		}
		assert.Equal(t, "b", got.Name)

		_, err = tx.Read(ctx, "users/u1/cart/a")
		assert.ErrorIs(t, err, apperrors.ErrNotFound)

		entries, err := tx.List(ctx, "users/u1/cart")
		if err != nil {
			return err
		}
		require.Len(t, entries, 1)
		assert.Equal(t, "users/u1/cart/b", entries[0].Path)

		return tx.Patch(ctx, "users/u1/cart/b", map[string]any{"count": 3})
	})
	require.NoError(t, err)

	e, err := s.Read(ctx, "users/u1/cart/b")
	require.NoError(t, err)
	got, err := store.Decode[doc](e)
	require.NoError(t, err)
	assert.Equal(t, doc{Name: "b", Count: 3}, got)
}

func testUpdateRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Write(ctx, "users/u1/points", doc{Count: 10}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Read(ctx, "users/u1/points")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func testConcurrentIncrements(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/points", doc{Count: 0}))

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
				e, err := tx.Read(ctx, "users/u1/points")
				if err != nil {
					return err
				}
				d, err := store.Decode[doc](e)
				if err != nil {
					return err
				}
				d.Count++
				return tx.Write(ctx, "users/u1/points", d)
			})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrConflict)
	}

	e, err := s.Read(ctx, "users/u1/points")
	require.NoError(t, err)
	d, err := store.Decode[doc](e)
	require.NoError(t, err)
	assert.Equal(t, succeeded, d.Count)
	assert.Positive(t, succeeded)
}

func testSubscribe(t *testing.T, s store.Store) {
	ctx := context.Background()
	var mu sync.Mutex
	var got []store.Change
	unsubscribe, err := s.Subscribe(ctx, "users/u1/cart", func(c store.Change) {
		mu.Lock()
		got = append(got, c)
		mu.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, s.Write(ctx, "users/u1/cart/p1", doc{Name: "case"}))
	require.NoError(t, s.Write(ctx, "users/u2/cart/p1", doc{Name: "other"}))
	require.NoError(t, s.Patch(ctx, "users/u1/cart/p1", map[string]any{"count": 2}))
	require.NoError(t, s.Delete(ctx, "users/u1/cart/p1"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, store.OpSet, got[0].Op)
	assert.Equal(t, "users/u1/cart/p1", got[0].Path)
	assert.Equal(t, store.OpPatch, got[1].Op)
	var patched doc
	require.NoError(t, json.Unmarshal(got[1].Value, &patched))
	assert.Equal(t, 2, patched.Count)
	assert.Equal(t, store.OpDelete, got[2].Op)
	mu.Unlock()

	unsubscribe()
	require.NoError(t, s.Write(ctx, "users/u1/cart/p2", doc{Name: "late"}))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Len(t, got, 3)
	mu.Unlock()
}
