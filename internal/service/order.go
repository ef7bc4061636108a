package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/repository"
	"github.com/utafrali/mobileshop/internal/store"
	apperrors "github.com/utafrali/mobileshop/pkg/errors"
	"github.com/utafrali/mobileshop/pkg/pagination"
)

// OrderOptions tunes order placement.
type OrderOptions struct {
	// ClearCartOnOrder deletes the ordered lines from the cart in the same
	// transaction that creates the order.
	ClearCartOnOrder bool
}

// OrderService implements order placement and the status lifecycle.
type OrderService struct {
	store  store.Store
	events *event.Producer
	logger *slog.Logger
	opts   OrderOptions
	now    func() time.Time
	newID  func() string
}

// NewOrderService creates a new order service.
func NewOrderService(st store.Store, events *event.Producer, logger *slog.Logger, opts OrderOptions) *OrderService {
	return &OrderService{
		store:  st,
		events: events,
		logger: logger,
		opts:   opts,
		now:    utcNow,
		newID:  uuid.NewString,
	}
}

// CreateOrderInput holds the parameters for placing an order.
type CreateOrderInput struct {
	UserID string
	// LineIDs picks cart lines explicitly. When empty the currently
	// selected lines are ordered.
	LineIDs         []string
	PaymentMethod   domain.PaymentMethod
	ShippingAddress string
	PointsToRedeem  int64
	UseAllPoints    bool
}

// OrderFilter narrows an order listing. Status and Group combine with AND.
type OrderFilter struct {
	Status domain.OrderStatus
	Group  domain.StatusGroup
	Page   pagination.Params
}

// CreateOrder places an order from cart lines, redeeming points in the same
// transaction.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if err := requireID("user_id", input.UserID); err != nil {
		return nil, err
	}
	if input.PaymentMethod == "" {
		input.PaymentMethod = domain.PaymentCOD
	}
	if !input.PaymentMethod.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}

	orderID := s.newID()
	var (
		order   *domain.Order
		balance int64
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		now := s.now()

		lines, err := s.checkoutLines(ctx, repo, input)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.ErrEmptySelection()
		}

		address := strings.TrimSpace(input.ShippingAddress)
		if address == "" {
			profile, err := repo.Profile(ctx, input.UserID)
			if err != nil {
				return err
			}
			if profile != nil {
				address = strings.TrimSpace(profile.Address)
			}
		}
		if address == "" {
			return apperrors.InvalidInput("shipping_address is required")
		}

		snapshot := domain.SnapshotLines(lines)
		acct, err := repo.Points(ctx, input.UserID)
		if err != nil {
			return err
		}
		redeem, err := domain.RedemptionFor(acct.Balance, domain.Total(snapshot), input.PointsToRedeem, input.UseAllPoints)
		if err != nil {
			return err
		}
		if redeem > 0 {
			if err := acct.Redeem(redeem, now); err != nil {
				return err
			}
			if err := repo.PutPoints(ctx, input.UserID, acct); err != nil {
				return err
			}
		}
		balance = acct.Balance

		order = domain.NewOrder(orderID, input.UserID, snapshot, redeem, input.PaymentMethod, address, now)
		if err := repo.PutOrder(ctx, order); err != nil {
			return err
		}

		if s.opts.ClearCartOnOrder {
			for _, l := range lines {
				if err := repo.DeleteCartLine(ctx, input.UserID, l.ProductID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	ordersCreated.Inc()
	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.Int("lines", len(order.Lines)),
		slog.Int64("raw_total", order.RawTotal),
		slog.Int64("points_redeemed", order.PointsRedeemed),
		slog.Int64("total_amount", order.TotalAmount),
	)

	err = s.events.PublishOrderCreated(ctx, order)
	logPublishError(ctx, s.logger, event.TopicOrderCreated, err, slog.String("order_id", order.ID))
	publishPointsChange(ctx, s.events, s.logger, domain.PointsChange{
		UserID:  order.UserID,
		Delta:   -order.PointsRedeemed,
		Balance: balance,
		Reason:  domain.PointsReasonCheckout,
	})

	return order, nil
}

func (s *OrderService) checkoutLines(ctx context.Context, repo *repository.Repository, input CreateOrderInput) ([]domain.CartLine, error) {
	if len(input.LineIDs) == 0 {
		lines, err := repo.CartLines(ctx, input.UserID)
		if err != nil {
			return nil, err
		}
		return selectedOnly(lines), nil
	}

	lines := make([]domain.CartLine, 0, len(input.LineIDs))
	seen := make(map[string]bool, len(input.LineIDs))
	for _, id := range input.LineIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		line, err := repo.CartLine(ctx, input.UserID, id)
		if err != nil {
			return nil, err
		}
		lines = append(lines, *line)
	}
	return lines, nil
}

// GetOrder returns one of the user's orders.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	order, err := repository.New(s.store).Order(ctx, userID, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// AdminGetOrder returns any order, resolved through the admin index.
func (s *OrderService) AdminGetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := repository.New(s.store).OrderByID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

func statusMatcher(filter OrderFilter, admin bool) (func(domain.OrderStatus) bool, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown status %q", filter.Status))
	}
	var group []domain.OrderStatus
	if filter.Group != "" {
		statuses, ok := domain.GroupStatuses(filter.Group, admin)
		if !ok {
			return nil, apperrors.InvalidInput(fmt.Sprintf("unknown group %q", filter.Group))
		}
		group = statuses
	}
	return func(st domain.OrderStatus) bool {
		if filter.Status != "" && st != filter.Status {
			return false
		}
		return group == nil || slices.Contains(group, st)
	}, nil
}

// ListOrders returns the user's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, userID string, filter OrderFilter) (pagination.Result[domain.Order], error) {
	if err := requireID("user_id", userID); err != nil {
		return pagination.Result[domain.Order]{}, err
	}
	match, err := statusMatcher(filter, false)
	if err != nil {
		return pagination.Result[domain.Order]{}, err
	}
	orders, err := repository.New(s.store).Orders(ctx, userID)
	if err != nil {
		return pagination.Result[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	orders = slices.DeleteFunc(orders, func(o domain.Order) bool { return !match(o.Status) })
	return pagination.Slice(orders, filter.Page), nil
}

// AdminListOrders returns index entries of every order, newest first.
func (s *OrderService) AdminListOrders(ctx context.Context, filter OrderFilter) (pagination.Result[domain.OrderIndexEntry], error) {
	match, err := statusMatcher(filter, true)
	if err != nil {
		return pagination.Result[domain.OrderIndexEntry]{}, err
	}
	entries, err := repository.New(s.store).IndexEntries(ctx)
	if err != nil {
		return pagination.Result[domain.OrderIndexEntry]{}, fmt.Errorf("list orders: %w", err)
	}
	entries = slices.DeleteFunc(entries, func(e domain.OrderIndexEntry) bool { return !match(e.Status) })
	return pagination.Slice(entries, filter.Page), nil
}

// UserGroups counts the user's orders per customer tab.
func (s *OrderService) UserGroups(ctx context.Context, userID string) ([]domain.GroupCount, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	orders, err := repository.New(s.store).Orders(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count order groups: %w", err)
	}
	statuses := make([]domain.OrderStatus, len(orders))
	for i, o := range orders {
		statuses[i] = o.Status
	}
	return domain.CountByGroup(statuses, false), nil
}

// AdminGroups counts every order per admin tab.
func (s *OrderService) AdminGroups(ctx context.Context) ([]domain.GroupCount, error) {
	entries, err := repository.New(s.store).IndexEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("count order groups: %w", err)
	}
	statuses := make([]domain.OrderStatus, len(entries))
	for i, e := range entries {
		statuses[i] = e.Status
	}
	return domain.CountByGroup(statuses, true), nil
}

// Cancel cancels one of the user's own orders. Only processing orders can
// be canceled by their owner. A non-zero expectedVersion must match the
// stored version.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID string, expectedVersion int64) (*domain.Order, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	load := func(ctx context.Context, repo *repository.Repository) (*domain.Order, error) {
		return repo.Order(ctx, userID, orderID)
	}
	return s.transition(ctx, load, expectedVersion, domain.ActorUser, func(o *domain.Order, now time.Time) error {
		return o.Cancel(domain.ActorUser, now)
	})
}

// AdminCancel cancels any order that has not reached a terminal status.
func (s *OrderService) AdminCancel(ctx context.Context, orderID string, expectedVersion int64) (*domain.Order, error) {
	return s.transition(ctx, adminLoad(orderID), expectedVersion, domain.ActorAdmin, func(o *domain.Order, now time.Time) error {
		return o.Cancel(domain.ActorAdmin, now)
	})
}

// AdvanceStatus moves an order strictly forward to status.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID string, status domain.OrderStatus, expectedVersion int64) (*domain.Order, error) {
	return s.transition(ctx, adminLoad(orderID), expectedVersion, domain.ActorAdmin, func(o *domain.Order, now time.Time) error {
		return o.Advance(status, domain.ActorAdmin, now)
	})
}

type orderLoader func(ctx context.Context, repo *repository.Repository) (*domain.Order, error)

func adminLoad(orderID string) orderLoader {
	return func(ctx context.Context, repo *repository.Repository) (*domain.Order, error) {
		return repo.OrderByID(ctx, orderID)
	}
}

func (s *OrderService) transition(ctx context.Context, load orderLoader, expectedVersion int64, actor domain.Actor, apply func(*domain.Order, time.Time) error) (*domain.Order, error) {
	if expectedVersion < 0 {
		return nil, apperrors.InvalidInput("version cannot be negative")
	}

	var (
		order *domain.Order
		from  domain.OrderStatus
	)
	err := s.store.Update(ctx, func(ctx context.Context, tx store.Tx) error {
		repo := repository.New(tx)
		var err error
		order, err = load(ctx, repo)
		if err != nil {
			return err
		}
		if err := order.CheckVersion(expectedVersion); err != nil {
			return err
		}
		from = order.Status
		if err := apply(order, s.now()); err != nil {
			return err
		}
		return repo.PutOrder(ctx, order)
	})
	if err != nil {
		return nil, fmt.Errorf("change order status: %w", err)
	}

	orderTransitions.WithLabelValues(string(from), string(order.Status)).Inc()
	s.logger.InfoContext(ctx, "order status changed",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("from", string(from)),
		slog.String("to", string(order.Status)),
		slog.String("actor", string(actor)),
		slog.Int64("version", order.Version),
	)

	err = s.events.PublishOrderStatusChanged(ctx, order, from, actor)
	logPublishError(ctx, s.logger, event.TopicOrderStatusChanged, err, slog.String("order_id", order.ID))
	if order.Status == domain.StatusCanceled {
		err = s.events.PublishOrderCanceled(ctx, order, from, actor)
		logPublishError(ctx, s.logger, event.TopicOrderCanceled, err, slog.String("order_id", order.ID))
	}
	return order, nil
}
