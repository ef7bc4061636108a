package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/repository"
	"github.com/utafrali/mobileshop/internal/store"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
	"github.com/utafrali/mobileshop/pkg/validator"
)

// CartService manages users' carts.
type CartService struct {
	store  store.Store
	events *event.Producer
	logger *slog.Logger
	now    func() time.Time
}

// NewCartService creates a new cart service.
func NewCartService(st store.Store, events *event.Producer, logger *slog.Logger) *CartService {
	return &CartService{
		store:  st,
		events: events,
		logger: logger,
		now:    utcNow,
	}
}

// AddToCart adds one unit of a product. A product already in the cart has
// its quantity incremented; a new one gets an unselected line.
func (s *CartService) AddToCart(ctx context.Context, userID string, p domain.ProductSnapshot) (*domain.CartLine, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	if err := validator.Validate(p); err != nil {
		return nil, err
	}

	var line domain.CartLine
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		now := s.now()

		existing, err := repo.CartLine(ctx, userID, p.ProductID)
		switch {
		case err == nil:
			if err := existing.Increment(now); err != nil {
				return err
			}
			line = *existing
		case errors.Is(err, apperrors.ErrNotFound):
			lines, err := repo.CartLines(ctx, userID)
			if err != nil {
				return err
			}
			if len(lines) >= domain.MaxLinesPerCart {
				return apperrors.InvalidInput(fmt.Sprintf("cart cannot hold more than %d products", domain.MaxLinesPerCart))
			}
			line = domain.NewCartLine(p, now)
		default:
			return err
		}
		return repo.PutCartLine(ctx, userID, &line)
	})
	if err != nil {
		return nil, fmt.Errorf("add to cart: %w", err)
	}

	s.logger.InfoContext(ctx, "cart line added",
		slog.String("user_id", userID),
		slog.String("product_id", line.ProductID),
		slog.Int("quantity", line.Quantity),
	)
	s.publish(ctx, userID, &line, event.CartActionAdded)
	return &line, nil
}

// UpdateQuantity sets a line's quantity. A quantity below one leaves the
// line unchanged.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, lineID string, quantity int) (*domain.CartLine, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}

	var (
		line    domain.CartLine
		changed bool
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		existing, err := repo.CartLine(ctx, userID, lineID)
		if err != nil {
			return err
		}
		line, changed = *existing, false
		if quantity < 1 {
			return nil
		}
		if err := line.SetQuantity(quantity, s.now()); err != nil {
			return err
		}
		changed = true
		return repo.PutCartLine(ctx, userID, &line)
	})
	if err != nil {
		return nil, fmt.Errorf("update cart quantity: %w", err)
	}

	if changed {
		s.logger.InfoContext(ctx, "cart quantity updated",
			slog.String("user_id", userID),
			slog.String("product_id", lineID),
			slog.Int("quantity", line.Quantity),
		)
		s.publish(ctx, userID, &line, event.CartActionQuantity)
	}
	return &line, nil
}

// RemoveLine deletes a line. Removing a line that is not in the cart
// succeeds.
func (s *CartService) RemoveLine(ctx context.Context, userID, lineID string) error {
	if err := requireID("user_id", userID); err != nil {
		return err
	}
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		return repository.New(tx).DeleteCartLine(ctx, userID, lineID)
	})
	if err != nil {
		return fmt.Errorf("remove cart line: %w", err)
	}

	s.logger.InfoContext(ctx, "cart line removed",
		slog.String("user_id", userID),
		slog.String("product_id", lineID),
	)
	s.publish(ctx, userID, &domain.CartLine{ProductID: lineID}, event.CartActionRemoved)
	return nil
}

// ToggleSelection flips whether a line is included in checkout.
func (s *CartService) ToggleSelection(ctx context.Context, userID, lineID string) (*domain.CartLine, error) {
	return s.changeSelection(ctx, userID, lineID, func(current bool) bool { return !current })
}

// SetSelection includes or excludes a line from checkout.
func (s *CartService) SetSelection(ctx context.Context, userID, lineID string, selected bool) (*domain.CartLine, error) {
	return s.changeSelection(ctx, userID, lineID, func(bool) bool { return selected })
}

func (s *CartService) changeSelection(ctx context.Context, userID, lineID string, next func(bool) bool) (*domain.CartLine, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}

	var line domain.CartLine
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		existing, err := repo.CartLine(ctx, userID, lineID)
		if err != nil {
			return err
		}
		line = *existing
		line.Selected = next(line.Selected)
		line.UpdatedAt = s.now()
		return repo.PatchCartLine(ctx, userID, lineID, map[string]any{
			"selected":   line.Selected,
			"updated_at": line.UpdatedAt,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("change cart selection: %w", err)
	}

	s.logger.InfoContext(ctx, "cart selection changed",
		slog.String("user_id", userID),
		slog.String("product_id", lineID),
		slog.Bool("selected", line.Selected),
	)
	s.publish(ctx, userID, &line, event.CartActionSelected)
	return &line, nil
}

// GetCart returns the cart with its selected total.
func (s *CartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if err := requireID("user_id", userID); err != nil {
		return domain.Cart{}, err
	}
	lines, err := repository.New(s.store).CartLines(ctx, userID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("get cart: %w", err)
	}
	return domain.NewCart(lines), nil
}

// SelectedLines returns the lines currently selected for checkout.
func (s *CartService) SelectedLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return selectedOnly(cart.Lines), nil
}

func selectedOnly(lines []domain.CartLine) []domain.CartLine {
	out := make([]domain.CartLine, 0, len(lines))
	for _, l := range lines {
		if l.Selected {
			out = append(out, l)
		}
	}
	return out
}

func (s *CartService) publish(ctx context.Context, userID string, line *domain.CartLine, action string) {
	err := s.events.PublishCartUpdated(ctx, event.CartUpdatedData{
		UserID:    userID,
		ProductID: line.ProductID,
		Action:    action,
		Quantity:  line.Quantity,
		Selected:  line.Selected,
	})
	logPublishError(ctx, s.logger, event.TopicCartUpdated, err, slog.String("user_id", userID))
}
