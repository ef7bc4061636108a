package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return New() })
}

func TestSubscribe_EndsWithContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Subscribe(ctx, "users/u1", func(store.Change) {})
	require.NoError(t, err)
	assert.Equal(t, 1, s.hub.Len())

	cancel()
	assert.Eventually(t, func() bool { return s.hub.Len() == 0 }, time.Second, time.Millisecond)
}

func TestDelete_WriteThenDeleteInOneTxLeavesNothing(t *testing.T) {
	s := New()
	ctx := context.Background()
	var changes []store.Change
	_, err := s.Subscribe(ctx, "users", func(c store.Change) { changes = append(changes, c) })
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Write(ctx, "users/u1/cart/p1", map[string]int{"quantity": 1}); err != nil {
			return err
		}
		return tx.Delete(ctx, "users/u1/cart/p1")
	}))
	assert.Empty(t, changes)
	assert.Empty(t, s.data)
}

func TestReadReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Write(ctx, "users/u1/profile", map[string]string{"name": "Lan"}))

	e, err := s.Read(ctx, "users/u1/profile")
	require.NoError(t, err)
	e.Value[2] = 'X'

	again, err := s.Read(ctx, "users/u1/profile")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Lan"}`, string(again.Value))
}

func TestUpdate_PanicInTxReleasesLock(t *testing.T) {
	s := New()
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.Update(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.Write(ctx, "users/u1/profile", map[string]string{"name": "Lan"}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	done := make(chan error, 1)
	go func() { done <- s.Write(ctx, "users/u1/cart/p1", map[string]int{"quantity": 1}) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("store still locked after panicking transaction")
	}

	_, err := s.Read(ctx, "users/u1/profile")
	assert.True(t, store.IsNotFound(err))
}
