// Package seed populates a store with demo customers for local development:
// profiles, loyalty balances, carts and orders spread over every status.
// Running it twice adds a second set of orders and grows the carts.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/service"
)

// Catalog is the demo product list.
var Catalog = []domain.ProductSnapshot{
	{ProductID: "iphone-15-128", Name: "iPhone 15 128GB", Price: 19_990_000},
	{ProductID: "galaxy-s24-256", Name: "Samsung Galaxy S24 256GB", Price: 20_490_000},
	{ProductID: "redmi-note-13", Name: "Xiaomi Redmi Note 13", Price: 4_890_000},
	{ProductID: "oppo-reno-11", Name: "OPPO Reno11 F 5G", Price: 8_490_000},
	{ProductID: "airpods-pro-2", Name: "AirPods Pro 2", Price: 5_990_000},
	{ProductID: "anker-20w", Name: "Sạc Anker 20W USB-C", Price: 390_000},
}

var (
	targetStatuses = []domain.OrderStatus{
		domain.StatusProcessing,
		domain.StatusConfirmed,
		domain.StatusShipping,
		domain.StatusDelivered,
		domain.StatusCanceled,
	}
	paymentMethods = []domain.PaymentMethod{
		domain.PaymentCOD,
		domain.PaymentEWallet,
		domain.PaymentBankTransfer,
		domain.PaymentCreditCard,
	}
)

// StartingPoints is the loyalty balance every demo user receives.
const StartingPoints int64 = 5000

// Services are the operations the seeder drives.
type Services struct {
	Profiles *service.ProfileService
	Ledger   *service.LedgerService
	Cart     *service.CartService
	Orders   *service.OrderService
}

// Summary counts what a run created.
type Summary struct {
	Users     int
	CartLines int
	Orders    map[domain.OrderStatus]int
}

// Seeder writes demo data through the services so every invariant and event
// applies as it would for real traffic.
type Seeder struct {
	svc    Services
	logger *slog.Logger
}

// New creates a seeder.
func New(svc Services, logger *slog.Logger) *Seeder {
	return &Seeder{svc: svc, logger: logger}
}

// UserID returns the id of the i-th demo user.
func UserID(i int) string {
	return fmt.Sprintf("demo-user-%02d", i+1)
}

// Run seeds users demo customers. User i gets two products in the cart, the
// first one added twice, and one order of the first product driven to the
// i-th target status.
func (s *Seeder) Run(ctx context.Context, users int) (Summary, error) {
	sum := Summary{Orders: make(map[domain.OrderStatus]int)}
	for i := range users {
		userID := UserID(i)
		if err := s.seedUser(ctx, i, userID, &sum); err != nil {
			return sum, fmt.Errorf("seed %s: %w", userID, err)
		}
		sum.Users++
	}
	s.logger.InfoContext(ctx, "seed complete",
		slog.Int("users", sum.Users),
		slog.Int("cart_lines", sum.CartLines),
	)
	return sum, nil
}

func (s *Seeder) seedUser(ctx context.Context, i int, userID string, sum *Summary) error {
	name := fmt.Sprintf("Khách hàng %02d", i+1)
	email := fmt.Sprintf("%s@mobileshop.test", userID)
	address := fmt.Sprintf("%d Nguyễn Huệ, Quận 1, TP. Hồ Chí Minh", 10+i)
	if _, err := s.svc.Profiles.UpdateProfile(ctx, userID, domain.ProfilePatch{
		Name:    &name,
		Email:   &email,
		Address: &address,
	}); err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	if _, err := s.svc.Ledger.Credit(ctx, userID, StartingPoints, "seed"); err != nil {
		return fmt.Errorf("points: %w", err)
	}

	first := Catalog[i%len(Catalog)]
	second := Catalog[(i+1)%len(Catalog)]
	for _, p := range []domain.ProductSnapshot{first, first, second} {
		if _, err := s.svc.Cart.AddToCart(ctx, userID, p); err != nil {
			return fmt.Errorf("cart: %w", err)
		}
	}
	sum.CartLines += 2

	order, err := s.svc.Orders.CreateOrder(ctx, service.CreateOrderInput{
		UserID:        userID,
		LineIDs:       []string{first.ProductID},
		PaymentMethod: paymentMethods[i%len(paymentMethods)],
	})
	if err != nil {
		return fmt.Errorf("order: %w", err)
	}

	orderID := order.ID
	target := targetStatuses[i%len(targetStatuses)]
	switch target {
	case domain.StatusProcessing:
	case domain.StatusCanceled:
		_, err = s.svc.Orders.Cancel(ctx, userID, orderID, order.Version)
	default:
		_, err = s.svc.Orders.AdvanceStatus(ctx, orderID, target, order.Version)
	}
	if err != nil {
		return fmt.Errorf("order %s to %s: %w", orderID, target, err)
	}
	sum.Orders[target]++

	s.logger.DebugContext(ctx, "seeded user",
		slog.String("user_id", userID),
		slog.String("order_id", orderID),
		slog.String("status", string(target)),
	)
	return nil
}
