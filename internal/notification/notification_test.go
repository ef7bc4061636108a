package notification

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/mailer"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg mailer.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type stubProfiles map[string]*domain.Profile

func (s stubProfiles) GetProfile(_ context.Context, userID string) (*domain.Profile, error) {
	if userID == "broken" {
		return nil, errors.New("store unavailable")
	}
	if p, ok := s[userID]; ok {
		return p, nil
	}
	return &domain.Profile{}, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(m mailer.Mailer) *Handler {
	profiles := stubProfiles{
		"u1": {Name: "Lan", Email: "lan@example.com"},
	}
	return NewHandler(profiles, m, newTestLogger())
}

func newTestEvent(t *testing.T, topic string, data any) *pkgkafka.Event {
	t.Helper()
	e, err := pkgkafka.NewEvent(topic, "o1", event.AggregateTypeOrder, event.Source, data)
	require.NoError(t, err)
	return e
}

func statusData(userID string, from, to domain.OrderStatus, actor domain.Actor) event.OrderStatusChangedData {
	return event.OrderStatusChangedData{
		OrderID:     "o1",
		UserID:      userID,
		OldStatus:   string(from),
		NewStatus:   string(to),
		Actor:       string(actor),
		Version:     2,
		TotalAmount: 1250000,
	}
}

func TestHandle_OrderCreated(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	data := event.OrderCreatedData{
		OrderID:         "o1",
		UserID:          "u1",
		Status:          string(domain.StatusProcessing),
		Lines:           []event.OrderLineData{{ProductID: "p1", Name: "Phone", UnitPrice: 625000, Quantity: 2, LineTotal: 1250000}},
		RawTotal:        1250000,
		PointsRedeemed:  50,
		TotalAmount:     1249950,
		ShippingAddress: "12 Nguyen Hue",
		CreatedAt:       time.Now().UTC(),
	}

	m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
		return msg.To == "lan@example.com" &&
			msg.ToName == "Lan" &&
			msg.Subject == "Đặt hàng thành công #o1" &&
			containsAll(msg.Text, "Phone x2: 1.250.000 ₫", "1.249.950 ₫", "Điểm đã dùng: 50")
	})).Return(nil).Once()

	require.NoError(t, h.Handle(context.Background(), newTestEvent(t, event.TopicOrderCreated, data)))
	m.AssertExpectations(t)
}

func TestHandle_StatusChangedUsesLabel(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	m.On("Send", mock.Anything, mock.MatchedBy(func(msg mailer.Message) bool {
		return msg.Subject == "Đơn hàng #o1: Đang giao hàng"
	})).Return(nil).Once()

	e := newTestEvent(t, event.TopicOrderStatusChanged, statusData("u1", domain.StatusPreparing, domain.StatusShipping, domain.ActorAdmin))
	require.NoError(t, h.Handle(context.Background(), e))
	m.AssertExpectations(t)
}

func TestHandle_DeliveredInvitesReview(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	var sent mailer.Message
	m.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(mailer.Message)
	}).Return(nil).Once()

	e := newTestEvent(t, event.TopicOrderStatusChanged, statusData("u1", domain.StatusShipping, domain.StatusDelivered, domain.ActorAdmin))
	require.NoError(t, h.Handle(context.Background(), e))
	assert.Contains(t, sent.Text, "đánh giá")
}

func TestHandle_StatusChangedToCanceledIsSkipped(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	e := newTestEvent(t, event.TopicOrderStatusChanged, statusData("u1", domain.StatusProcessing, domain.StatusCanceled, domain.ActorUser))
	require.NoError(t, h.Handle(context.Background(), e))
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandle_Canceled(t *testing.T) {
	tests := []struct {
		name  string
		actor domain.Actor
		want  string
	}{
		{name: "by customer", actor: domain.ActorUser, want: "theo yêu cầu của bạn"},
		{name: "by shop", actor: domain.ActorAdmin, want: "bởi cửa hàng"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(mockMailer)
			h := newTestHandler(m)

			var sent mailer.Message
			m.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
				sent = args.Get(1).(mailer.Message)
			}).Return(nil).Once()

			e := newTestEvent(t, event.TopicOrderCanceled, statusData("u1", domain.StatusProcessing, domain.StatusCanceled, tt.actor))
			require.NoError(t, h.Handle(context.Background(), e))
			assert.Equal(t, "Đơn hàng #o1 đã bị hủy", sent.Subject)
			assert.Contains(t, sent.Text, tt.want)
		})
	}
}

func TestHandle_UserWithoutEmailIsSkipped(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	e := newTestEvent(t, event.TopicOrderCanceled, statusData("nobody", domain.StatusProcessing, domain.StatusCanceled, domain.ActorUser))
	require.NoError(t, h.Handle(context.Background(), e))
	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestHandle_ProfileErrorIsReturned(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	e := newTestEvent(t, event.TopicOrderCanceled, statusData("broken", domain.StatusProcessing, domain.StatusCanceled, domain.ActorUser))
	err := h.Handle(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")
}

func TestHandle_MailerErrorIsReturned(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)
	m.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	e := newTestEvent(t, event.TopicOrderCanceled, statusData("u1", domain.StatusProcessing, domain.StatusCanceled, domain.ActorUser))
	err := h.Handle(context.Background(), e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
}

func TestHandle_MalformedAndUnknownEventsAreDropped(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)

	malformed := newTestEvent(t, event.TopicOrderCreated, nil)
	malformed.Data = []byte(`{"order_id": 42}`)
	require.NoError(t, h.Handle(context.Background(), malformed))

	unknown := newTestEvent(t, event.TopicReviewSubmitted, map[string]string{"x": "y"})
	require.NoError(t, h.Handle(context.Background(), unknown))

	m.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestIdempotentDeliverySendsOnce(t *testing.T) {
	m := new(mockMailer)
	h := newTestHandler(m)
	m.On("Send", mock.Anything, mock.Anything).Return(nil).Once()

	handle := pkgkafka.IdempotentHandler(pkgkafka.NewMemoryIdempotencyStore(time.Hour), h.Handle, newTestLogger())
	e := newTestEvent(t, event.TopicOrderCanceled, statusData("u1", domain.StatusProcessing, domain.StatusCanceled, domain.ActorUser))

	require.NoError(t, handle(context.Background(), e))
	require.NoError(t, handle(context.Background(), e))
	m.AssertNumberOfCalls(t, "Send", 1)
}

func TestTopics(t *testing.T) {
	assert.ElementsMatch(t, []string{
		event.TopicOrderCreated,
		event.TopicOrderStatusChanged,
		event.TopicOrderCanceled,
	}, Topics())
}

func TestFormatVND(t *testing.T) {
	tests := map[int64]string{
		0:        "0 ₫",
		999:      "999 ₫",
		1000:     "1.000 ₫",
		1250000:  "1.250.000 ₫",
		-25000:   "-25.000 ₫",
		12345678: "12.345.678 ₫",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatVND(in))
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
