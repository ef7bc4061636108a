// Package notification turns order events into customer e-mails.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/mailer"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
)

// DefaultConsumerGroup is the Kafka consumer group of the notifier.
const DefaultConsumerGroup = "mobileshop-notifications"

// Topics returns the topics the notifier consumes.
func Topics() []string {
	return []string{
		event.TopicOrderCreated,
		event.TopicOrderStatusChanged,
		event.TopicOrderCanceled,
	}
}

// ProfileReader loads a user's contact data.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// Handler renders and sends one e-mail per order event.
type Handler struct {
	profiles ProfileReader
	mailer   mailer.Mailer
	logger   *slog.Logger
}

// NewHandler creates a notification handler.
func NewHandler(profiles ProfileReader, m mailer.Mailer, logger *slog.Logger) *Handler {
	return &Handler{
		profiles: profiles,
		mailer:   m,
		logger:   logger,
	}
}

// Handle dispatches by event type. Unknown types are logged and dropped.
func (h *Handler) Handle(ctx context.Context, e *pkgkafka.Event) error {
	switch e.EventType {
	case event.TopicOrderCreated:
		return h.handleOrderCreated(ctx, e)
	case event.TopicOrderStatusChanged:
		return h.handleStatusChanged(ctx, e)
	case event.TopicOrderCanceled:
		return h.handleCanceled(ctx, e)
	default:
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", e.EventType),
			slog.String("event_id", e.EventID),
		)
		return nil
	}
}

func (h *Handler) handleOrderCreated(ctx context.Context, e *pkgkafka.Event) error {
	var data event.OrderCreatedData
	if err := e.UnmarshalData(&data); err != nil {
		h.logger.ErrorContext(ctx, "malformed order.created payload",
			slog.String("event_id", e.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return h.send(ctx, data.UserID, data.OrderID, orderCreatedMessage(data))
}

func (h *Handler) handleStatusChanged(ctx context.Context, e *pkgkafka.Event) error {
	var data event.OrderStatusChangedData
	if err := e.UnmarshalData(&data); err != nil {
		h.logger.ErrorContext(ctx, "malformed order.status_changed payload",
			slog.String("event_id", e.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	// Cancellations are mailed from the canceled topic.
	if domain.OrderStatus(data.NewStatus) == domain.StatusCanceled {
		return nil
	}
	return h.send(ctx, data.UserID, data.OrderID, statusChangedMessage(data))
}

func (h *Handler) handleCanceled(ctx context.Context, e *pkgkafka.Event) error {
	var data event.OrderStatusChangedData
	if err := e.UnmarshalData(&data); err != nil {
		h.logger.ErrorContext(ctx, "malformed order.canceled payload",
			slog.String("event_id", e.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return h.send(ctx, data.UserID, data.OrderID, canceledMessage(data))
}

func (h *Handler) send(ctx context.Context, userID, orderID string, msg mailer.Message) error {
	profile, err := h.profiles.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("load profile of %s: %w", userID, err)
	}
	if profile == nil || strings.TrimSpace(profile.Email) == "" {
		h.logger.DebugContext(ctx, "user has no e-mail, skipping notification",
			slog.String("user_id", userID),
			slog.String("order_id", orderID),
		)
		return nil
	}

	msg.To = profile.Email
	msg.ToName = profile.Name
	if err := h.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("send notification for order %s: %w", orderID, err)
	}

	h.logger.InfoContext(ctx, "order notification sent",
		slog.String("user_id", userID),
		slog.String("order_id", orderID),
		slog.String("subject", msg.Subject),
	)
	return nil
}

// ConsumerConfig configures the notification consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	// DeadLetter receives events that kept failing. Optional.
	DeadLetter pkgkafka.Publisher
}

// NewConsumer subscribes h to the order topics behind an idempotency guard.
func NewConsumer(cfg ConsumerConfig, h *Handler, seen pkgkafka.IdempotencyStore, logger *slog.Logger) *pkgkafka.Consumer {
	if cfg.GroupID == "" {
		cfg.GroupID = DefaultConsumerGroup
	}
	return pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:    cfg.Brokers,
		GroupID:    cfg.GroupID,
		Topics:     Topics(),
		DeadLetter: cfg.DeadLetter,
	}, pkgkafka.IdempotentHandler(seen, h.Handle, logger), logger)
}

func orderCreatedMessage(d event.OrderCreatedData) mailer.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Cảm ơn bạn đã đặt hàng. Đơn hàng %s đã được tiếp nhận.\n\n", d.OrderID)
	for _, l := range d.Lines {
		fmt.Fprintf(&b, "- %s x%d: %s\n", l.Name, l.Quantity, formatVND(l.LineTotal))
	}
	if d.PointsRedeemed > 0 {
		fmt.Fprintf(&b, "\nĐiểm đã dùng: %d\n", d.PointsRedeemed)
	}
	fmt.Fprintf(&b, "Tổng thanh toán: %s\n", formatVND(d.TotalAmount))
	fmt.Fprintf(&b, "Giao đến: %s\n", d.ShippingAddress)

	return mailer.Message{
		Subject: fmt.Sprintf("Đặt hàng thành công #%s", d.OrderID),
		Text:    b.String(),
	}
}

func statusChangedMessage(d event.OrderStatusChangedData) mailer.Message {
	label := domain.OrderStatus(d.NewStatus).Label()
	if label == "" {
		label = d.NewStatus
	}
	text := fmt.Sprintf("Đơn hàng %s: %s.\nTổng thanh toán: %s\n", d.OrderID, label, formatVND(d.TotalAmount))
	if domain.OrderStatus(d.NewStatus) == domain.StatusDelivered {
		text += "\nHãy đánh giá sản phẩm để nhận điểm thưởng.\n"
	}
	return mailer.Message{
		Subject: fmt.Sprintf("Đơn hàng #%s: %s", d.OrderID, label),
		Text:    text,
	}
}

func canceledMessage(d event.OrderStatusChangedData) mailer.Message {
	by := "theo yêu cầu của bạn"
	if domain.Actor(d.Actor) != domain.ActorUser {
		by = "bởi cửa hàng"
	}
	return mailer.Message{
		Subject: fmt.Sprintf("Đơn hàng #%s đã bị hủy", d.OrderID),
		Text:    fmt.Sprintf("Đơn hàng %s đã được hủy %s.\n", d.OrderID, by),
	}
}

// formatVND renders an amount with dot thousand separators, e.g. 1.250.000 ₫.
func formatVND(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + " ₫"
}
