package seed

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/internal/store/memory"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
)

func newTestServices(t *testing.T) Services {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	t.Cleanup(func() { _ = st.Close() })
	events := event.NewProducer(pkgkafka.NopPublisher{}, logger)

	return Services{
		Profiles: service.NewProfileService(st, logger),
		Ledger:   service.NewLedgerService(st, events, logger),
		Cart:     service.NewCartService(st, events, logger),
		Orders:   service.NewOrderService(st, events, logger, service.OrderOptions{}),
	}
}

func TestRun(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	sum, err := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(ctx, 5)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Users)
	assert.Equal(t, 10, sum.CartLines)
	for _, status := range targetStatuses {
		assert.Equal(t, 1, sum.Orders[status], status)
	}

	groups, err := svc.Orders.AdminGroups(ctx)
	require.NoError(t, err)
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	assert.Equal(t, 5, total)
}

func TestRun_UserState(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := New(svc, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(ctx, 1)
	require.NoError(t, err)

	userID := UserID(0)
	assert.Equal(t, "demo-user-01", userID)

	acct, err := svc.Ledger.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, StartingPoints, acct.Balance)

	cart, err := svc.Cart.GetCart(ctx, userID)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)

	var merged *domain.CartLine
	for i := range cart.Lines {
		if cart.Lines[i].ProductID == Catalog[0].ProductID {
			merged = &cart.Lines[i]
		}
	}
	require.NotNil(t, merged)
	assert.Equal(t, 2, merged.Quantity)
	assert.Equal(t, 2*Catalog[0].Price, merged.LineTotal)

	profile, err := svc.Profiles.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "demo-user-01@mobileshop.test", profile.Email)
}
