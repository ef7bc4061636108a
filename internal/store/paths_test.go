package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

func TestPathBuilders(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"cart line", func() (string, error) { return CartLinePath("u1", "p1") }, "users/u1/cart/p1"},
		{"cart", func() (string, error) { return CartPath("u1") }, "users/u1/cart"},
		{"order", func() (string, error) { return OrderPath("u1", "o1") }, "users/u1/orders/o1"},
		{"orders", func() (string, error) { return OrdersPath("u1") }, "users/u1/orders"},
		{"order index", func() (string, error) { return OrderIndexPath("o1") }, "orders/o1"},
		{"points", func() (string, error) { return PointsPath("u1") }, "users/u1/points"},
		{"profile", func() (string, error) { return ProfilePath("u1") }, "users/u1/profile"},
		{"review", func() (string, error) { return ReviewPath("p1", "o1", "u1") }, "products/p1/orders/o1/reviews/u1"},
		{"product reviews", func() (string, error) { return ProductReviewsPath("p1") }, "products/p1/orders"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPathBuilders_RejectBadSegments(t *testing.T) {
	for _, id := range []string{"", "u1/cart", "u*", "a?b", "x[1]", `a\b`} {
		_, err := CartLinePath(id, "p1")
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "id %q", id)
	}
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath("users/u1/cart"))
	for _, p := range []string{"", "/users", "users/", "users//x"} {
		assert.ErrorIs(t, ValidatePath(p), apperrors.ErrInvalidInput, p)
	}
}

func TestCoversAndAncestors(t *testing.T) {
	assert.True(t, Covers("users/u1", "users/u1"))
	assert.True(t, Covers("users/u1", "users/u1/cart/p1"))
	assert.False(t, Covers("users/u1", "users/u10/cart"))
	assert.Equal(t, []string{"users", "users/u1", "users/u1/cart"}, Ancestors("users/u1/cart/p1"))
	assert.Nil(t, Ancestors("orders"))
}

func TestMerge(t *testing.T) {
	merged, err := Merge(json.RawMessage(`{"a":1,"b":{"c":2}}`), map[string]any{"b": true, "d": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":true,"d":"x"}`, string(merged))

	_, err = Merge(json.RawMessage(`[1,2]`), map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestEncode(t *testing.T) {
	raw, err := Encode(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(raw))

	_, err = Encode(json.RawMessage(`{`))
	assert.Error(t, err)
}

func TestHub_FiltersByPathAndUnsubscribes(t *testing.T) {
	h := NewHub()
	var got []string
	unsubscribe := h.Subscribe(context.Background(), "users/u1/cart", func(c Change) { got = append(got, c.Path) })

	h.Publish(
		Change{Path: "users/u1/cart/p1", Op: OpSet},
		Change{Path: "users/u1/orders/o1", Op: OpSet},
		Change{Path: "users/u1/cart", Op: OpDelete},
	)
	assert.Equal(t, []string{"users/u1/cart/p1", "users/u1/cart"}, got)

	unsubscribe()
	assert.Zero(t, h.Len())
	h.Publish(Change{Path: "users/u1/cart/p2"})
	assert.Len(t, got, 2)
}
