// Package repository maps domain aggregates onto store paths. A Repository
// wraps either a Store or a transaction, so the same accessors serve plain
// reads and read-modify-write transactions.
package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/store"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// Repository provides typed access to the store.
type Repository struct {
	rw store.Tx
}

// New wraps rw. A store.Store satisfies store.Tx.
func New(rw store.Tx) *Repository {
	return &Repository{rw: rw}
}

func readAs[T any](ctx context.Context, r store.Reader, path string) (*T, error) {
	e, err := r.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	v, err := store.Decode[T](e)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func listAs[T any](ctx context.Context, r store.Reader, prefix string) ([]T, error) {
	entries, err := r.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make([]T, 0, len(entries))
	for i := range entries {
		v, err := store.Decode[T](&entries[i])
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// --- Cart ---

// CartLine returns one cart line.
func (r *Repository) CartLine(ctx context.Context, userID, lineID string) (*domain.CartLine, error) {
	path, err := store.CartLinePath(userID, lineID)
	if err != nil {
		return nil, err
	}
	line, err := readAs[domain.CartLine](ctx, r.rw, path)
	if store.IsNotFound(err) {
		return nil, apperrors.NotFound("cart line", lineID)
	}
	if err != nil {
		return nil, fmt.Errorf("read cart line: %w", err)
	}
	return line, nil
}

// CartLines returns the user's cart lines, oldest first.
func (r *Repository) CartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	path, err := store.CartPath(userID)
	if err != nil {
		return nil, err
	}
	lines, err := listAs[domain.CartLine](ctx, r.rw, path)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(lines, func(a, b domain.CartLine) int {
		if c := a.AddedAt.Compare(b.AddedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return lines, nil
}

// PutCartLine writes a cart line under its product id.
func (r *Repository) PutCartLine(ctx context.Context, userID string, line *domain.CartLine) error {
	path, err := store.CartLinePath(userID, line.ProductID)
	if err != nil {
		return err
	}
	if err := r.rw.Write(ctx, path, line); err != nil {
		return fmt.Errorf("write cart line: %w", err)
	}
	return nil
}

// PatchCartLine merges fields into an existing cart line.
func (r *Repository) PatchCartLine(ctx context.Context, userID, lineID string, fields map[string]any) error {
	path, err := store.CartLinePath(userID, lineID)
	if err != nil {
		return err
	}
	err = r.rw.Patch(ctx, path, fields)
	if store.IsNotFound(err) {
		return apperrors.NotFound("cart line", lineID)
	}
	if err != nil {
		return fmt.Errorf("patch cart line: %w", err)
	}
	return nil
}

// DeleteCartLine removes a cart line. Removing a missing line succeeds.
func (r *Repository) DeleteCartLine(ctx context.Context, userID, lineID string) error {
	path, err := store.CartLinePath(userID, lineID)
	if err != nil {
		return err
	}
	if err := r.rw.Delete(ctx, path); err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	return nil
}

// --- Loyalty ---

// Points returns the user's loyalty account. A missing account is empty.
func (r *Repository) Points(ctx context.Context, userID string) (*domain.LoyaltyAccount, error) {
	path, err := store.PointsPath(userID)
	if err != nil {
		return nil, err
	}
	acct, err := readAs[domain.LoyaltyAccount](ctx, r.rw, path)
	if store.IsNotFound(err) {
		return &domain.LoyaltyAccount{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read points: %w", err)
	}
	return acct, nil
}

// PutPoints writes the user's loyalty account.
func (r *Repository) PutPoints(ctx context.Context, userID string, acct *domain.LoyaltyAccount) error {
	path, err := store.PointsPath(userID)
	if err != nil {
		return err
	}
	if err := r.rw.Write(ctx, path, acct); err != nil {
		return fmt.Errorf("write points: %w", err)
	}
	return nil
}

// --- Profile ---

// Profile returns the user's profile, or nil when none was saved.
func (r *Repository) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	path, err := store.ProfilePath(userID)
	if err != nil {
		return nil, err
	}
	p, err := readAs[domain.Profile](ctx, r.rw, path)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return p, nil
}

// PutProfile writes the user's profile.
func (r *Repository) PutProfile(ctx context.Context, userID string, p *domain.Profile) error {
	path, err := store.ProfilePath(userID)
	if err != nil {
		return err
	}
	if err := r.rw.Write(ctx, path, p); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// --- Orders ---

func newestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

// Order returns one of the user's orders.
func (r *Repository) Order(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	path, err := store.OrderPath(userID, orderID)
	if err != nil {
		return nil, err
	}
	o, err := readAs[domain.Order](ctx, r.rw, path)
	if store.IsNotFound(err) {
		return nil, apperrors.NotFound("order", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("read order: %w", err)
	}
	return o, nil
}

// Orders returns the user's orders, newest first.
func (r *Repository) Orders(ctx context.Context, userID string) ([]domain.Order, error) {
	path, err := store.OrdersPath(userID)
	if err != nil {
		return nil, err
	}
	orders, err := listAs[domain.Order](ctx, r.rw, path)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(orders, newestFirst)
	return orders, nil
}

// PutOrder writes the order and its index entry.
func (r *Repository) PutOrder(ctx context.Context, o *domain.Order) error {
	path, err := store.OrderPath(o.UserID, o.ID)
	if err != nil {
		return err
	}
	indexPath, err := store.OrderIndexPath(o.ID)
	if err != nil {
		return err
	}
	if err := r.rw.Write(ctx, path, o); err != nil {
		return fmt.Errorf("write order: %w", err)
	}
	if err := r.rw.Write(ctx, indexPath, o.IndexEntry()); err != nil {
		return fmt.Errorf("write order index: %w", err)
	}
	return nil
}

// IndexEntry returns the admin index entry of an order.
func (r *Repository) IndexEntry(ctx context.Context, orderID string) (*domain.OrderIndexEntry, error) {
	path, err := store.OrderIndexPath(orderID)
	if err != nil {
		return nil, err
	}
	e, err := readAs[domain.OrderIndexEntry](ctx, r.rw, path)
	if store.IsNotFound(err) {
		return nil, apperrors.NotFound("order", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("read order index: %w", err)
	}
	return e, nil
}

// IndexEntries returns every index entry, newest first.
func (r *Repository) IndexEntries(ctx context.Context) ([]domain.OrderIndexEntry, error) {
	entries, err := listAs[domain.OrderIndexEntry](ctx, r.rw, store.OrderIndexRoot)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(entries, func(a, b domain.OrderIndexEntry) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.OrderID, a.OrderID)
	})
	return entries, nil
}

// OrderByID resolves an order through the index.
func (r *Repository) OrderByID(ctx context.Context, orderID string) (*domain.Order, error) {
	entry, err := r.IndexEntry(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return r.Order(ctx, entry.UserID, orderID)
}

// --- Reviews ---

// Review returns the review of a (product, order, user) tuple.
func (r *Repository) Review(ctx context.Context, productID, orderID, userID string) (*domain.Review, error) {
	path, err := store.ReviewPath(productID, orderID, userID)
	if err != nil {
		return nil, err
	}
	rev, err := readAs[domain.Review](ctx, r.rw, path)
	if store.IsNotFound(err) {
		return nil, apperrors.NotFound("review", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read review: %w", err)
	}
	return rev, nil
}

// ReviewExists reports whether the tuple was already reviewed.
func (r *Repository) ReviewExists(ctx context.Context, productID, orderID, userID string) (bool, error) {
	_, err := r.Review(ctx, productID, orderID, userID)
	if store.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// PutReview writes a review.
func (r *Repository) PutReview(ctx context.Context, rev *domain.Review) error {
	path, err := store.ReviewPath(rev.ProductID, rev.OrderID, rev.UserID)
	if err != nil {
		return err
	}
	if err := r.rw.Write(ctx, path, rev); err != nil {
		return fmt.Errorf("write review: %w", err)
	}
	return nil
}

// ProductReviews returns every review of a product, newest first.
func (r *Repository) ProductReviews(ctx context.Context, productID string) ([]domain.Review, error) {
	path, err := store.ProductReviewsPath(productID)
	if err != nil {
		return nil, err
	}
	reviews, err := listAs[domain.Review](ctx, r.rw, path)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(reviews, func(a, b domain.Review) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return reviews, nil
}
