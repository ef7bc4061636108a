// Package event publishes the shop's domain events to Kafka.
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/mobileshop/internal/domain"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
	"github.com/utafrali/mobileshop/pkg/logger"
)

// Kafka topics for domain events.
const (
	TopicCartUpdated        = "mobileshop.cart.updated"
	TopicOrderCreated       = "mobileshop.order.created"
	TopicOrderStatusChanged = "mobileshop.order.status_changed"
	TopicOrderCanceled      = "mobileshop.order.canceled"
	TopicReviewSubmitted    = "mobileshop.review.submitted"
	TopicPointsChanged      = "mobileshop.loyalty.points_changed"
)

// Aggregate types.
const (
	AggregateTypeCart    = "cart"
	AggregateTypeOrder   = "order"
	AggregateTypeReview  = "review"
	AggregateTypeLoyalty = "loyalty_account"
)

// Source identifies events published by this service.
const Source = "mobileshop"

// Cart actions.
const (
	CartActionAdded    = "added"
	CartActionQuantity = "quantity_changed"
	CartActionRemoved  = "removed"
	CartActionSelected = "selection_changed"
)

// CartUpdatedData is the payload of cart.updated.
type CartUpdatedData struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
	Action    string `json:"action"`
	Quantity  int    `json:"quantity"`
	Selected  bool   `json:"selected"`
}

// OrderLineData is an order line in event payloads.
type OrderLineData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// OrderCreatedData is the payload of order.created.
type OrderCreatedData struct {
	OrderID         string          `json:"order_id"`
	UserID          string          `json:"user_id"`
	Status          string          `json:"status"`
	Lines           []OrderLineData `json:"lines"`
	RawTotal        int64           `json:"raw_total"`
	PointsRedeemed  int64           `json:"points_redeemed"`
	TotalAmount     int64           `json:"total_amount"`
	PaymentMethod   string          `json:"payment_method"`
	ShippingAddress string          `json:"shipping_address"`
	CreatedAt       time.Time       `json:"created_at"`
}

// OrderStatusChangedData is the payload of order.status_changed and
// order.canceled.
type OrderStatusChangedData struct {
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	OldStatus   string `json:"old_status"`
	NewStatus   string `json:"new_status"`
	Actor       string `json:"actor"`
	Version     int64  `json:"version"`
	TotalAmount int64  `json:"total_amount"`
}

// ReviewSubmittedData is the payload of review.submitted.
type ReviewSubmittedData struct {
	ProductID     string `json:"product_id"`
	OrderID       string `json:"order_id"`
	UserID        string `json:"user_id"`
	Rating        int    `json:"rating"`
	PointsAwarded int64  `json:"points_awarded"`
}

// PointsChangedData is the payload of loyalty.points_changed.
type PointsChangedData struct {
	UserID  string `json:"user_id"`
	Delta   int64  `json:"delta"`
	Balance int64  `json:"balance"`
	Reason  string `json:"reason"`
}

// Producer publishes domain events.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a producer on top of a Kafka publisher.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, aggregateID, aggregateType string, data any) error {
	event, err := pkgkafka.NewEvent(topic, aggregateID, aggregateType, Source, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("aggregate_id", aggregateID),
		slog.String("event_id", event.EventID),
	)
	return nil
}

// PublishCartUpdated publishes a cart.updated event keyed by user.
func (p *Producer) PublishCartUpdated(ctx context.Context, data CartUpdatedData) error {
	return p.publish(ctx, TopicCartUpdated, data.UserID, AggregateTypeCart, data)
}

// PublishOrderCreated publishes an order.created event with the order snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	lines := make([]OrderLineData, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = OrderLineData{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			LineTotal: l.LineTotal,
		}
	}

	data := OrderCreatedData{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Status:          string(order.Status),
		Lines:           lines,
		RawTotal:        order.RawTotal,
		PointsRedeemed:  order.PointsRedeemed,
		TotalAmount:     order.TotalAmount,
		PaymentMethod:   string(order.PaymentMethod),
		ShippingAddress: order.ShippingAddress,
		CreatedAt:       order.CreatedAt,
	}
	return p.publish(ctx, TopicOrderCreated, order.ID, AggregateTypeOrder, data)
}

func statusChange(order *domain.Order, from domain.OrderStatus, actor domain.Actor) OrderStatusChangedData {
	return OrderStatusChangedData{
		OrderID:     order.ID,
		UserID:      order.UserID,
		OldStatus:   string(from),
		NewStatus:   string(order.Status),
		Actor:       string(actor),
		Version:     order.Version,
		TotalAmount: order.TotalAmount,
	}
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, from domain.OrderStatus, actor domain.Actor) error {
	return p.publish(ctx, TopicOrderStatusChanged, order.ID, AggregateTypeOrder, statusChange(order, from, actor))
}

// PublishOrderCanceled publishes an order.canceled event.
func (p *Producer) PublishOrderCanceled(ctx context.Context, order *domain.Order, from domain.OrderStatus, actor domain.Actor) error {
	return p.publish(ctx, TopicOrderCanceled, order.ID, AggregateTypeOrder, statusChange(order, from, actor))
}

// PublishReviewSubmitted publishes a review.submitted event.
func (p *Producer) PublishReviewSubmitted(ctx context.Context, review *domain.Review, pointsAwarded int64) error {
	data := ReviewSubmittedData{
		ProductID:     review.ProductID,
		OrderID:       review.OrderID,
		UserID:        review.UserID,
		Rating:        review.Rating,
		PointsAwarded: pointsAwarded,
	}
	return p.publish(ctx, TopicReviewSubmitted, review.ProductID+"/"+review.OrderID+"/"+review.UserID, AggregateTypeReview, data)
}

// PublishPointsChanged publishes a loyalty.points_changed event.
func (p *Producer) PublishPointsChanged(ctx context.Context, change domain.PointsChange) error {
	data := PointsChangedData{
		UserID:  change.UserID,
		Delta:   change.Delta,
		Balance: change.Balance,
		Reason:  change.Reason,
	}
	return p.publish(ctx, TopicPointsChanged, change.UserID, AggregateTypeLoyalty, data)
}
