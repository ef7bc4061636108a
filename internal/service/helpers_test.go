package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/utafrali/mobileshop/internal/blob"
	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/store/memory"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
)

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
}

func (r *recordingPublisher) Publish(_ context.Context, topic string, e *pkgkafka.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) count(topic string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.topics {
		if t == topic {
			n++
		}
	}
	return n
}

// testClock returns a new instant, one second apart, on every call.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type testEnv struct {
	store    *memory.Store
	pub      *recordingPublisher
	blobs    *blob.MemoryStorage
	clock    *testClock
	cart     *CartService
	ledger   *LedgerService
	orders   *OrderService
	reviews  *ReviewService
	profiles *ProfileService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithOptions(t, OrderOptions{})
}

func newTestEnvWithOptions(t *testing.T, orderOpts OrderOptions) *testEnv {
	t.Helper()
	return buildTestEnv(orderOpts)
}

func buildTestEnv(orderOpts OrderOptions) *testEnv {
	logger := newTestLogger()
	st := memory.New()
	pub := &recordingPublisher{}
	producer := event.NewProducer(pub, logger)
	blobs := blob.NewMemoryStorage("https://cdn.test")
	clock := newTestClock()

	env := &testEnv{
		store:    st,
		pub:      pub,
		blobs:    blobs,
		clock:    clock,
		cart:     NewCartService(st, producer, logger),
		ledger:   NewLedgerService(st, producer, logger),
		orders:   NewOrderService(st, producer, logger, orderOpts),
		reviews:  NewReviewService(st, blobs, producer, logger, DefaultReviewOptions()),
		profiles: NewProfileService(st, logger),
	}
	env.cart.now = clock.now
	env.ledger.now = clock.now
	env.orders.now = clock.now
	env.reviews.now = clock.now
	return env
}

func phone(id string, price int64) domain.ProductSnapshot {
	return domain.ProductSnapshot{ProductID: id, Name: "Phone " + id, Image: "https://img.test/" + id + ".png", Price: price}
}

// addSelected puts quantity units of a product in the cart and selects the
// line.
func (e *testEnv) addSelected(t *testing.T, userID string, p domain.ProductSnapshot, quantity int) {
	t.Helper()
	ctx := context.Background()
	if _, err := e.cart.AddToCart(ctx, userID, p); err != nil {
		t.Fatalf("add to cart: %v", err)
	}
	if quantity > 1 {
		if _, err := e.cart.UpdateQuantity(ctx, userID, p.ProductID, quantity); err != nil {
			t.Fatalf("update quantity: %v", err)
		}
	}
	if _, err := e.cart.SetSelection(ctx, userID, p.ProductID, true); err != nil {
		t.Fatalf("select line: %v", err)
	}
}

// placeOrder creates an order of one selected product.
func (e *testEnv) placeOrder(t *testing.T, userID string, p domain.ProductSnapshot) *domain.Order {
	t.Helper()
	e.addSelected(t, userID, p, 1)
	o, err := e.orders.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          userID,
		LineIDs:         []string{p.ProductID},
		ShippingAddress: "12 Nguyen Hue, Q1",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

// deliver advances an order to delivered.
func (e *testEnv) deliver(t *testing.T, orderID string) *domain.Order {
	t.Helper()
	o, err := e.orders.AdvanceStatus(context.Background(), orderID, domain.StatusDelivered, 0)
	if err != nil {
		t.Fatalf("deliver order: %v", err)
	}
	return o
}
