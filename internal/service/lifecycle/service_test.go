package lifecycle_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type publishedEvent struct {
	topic string
	event any
}

type stubPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (s *stubPublisher) Publish(_ context.Context, topic, _ string, event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, publishedEvent{topic: topic, event: event})
	return nil
}

func (s *stubPublisher) all() []publishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishedEvent(nil), s.events...)
}

func seedOrder(t *testing.T, orders domain.OrderRepository, status domain.OrderStatus) domain.Order {
	t.Helper()
	ctx := context.Background()

	price, err := domain.NewMoney(decimal.RequireFromString("15.00"), "EUR")
	require.NoError(t, err)

	order, err := domain.NewOrder("order-1", "checkout-1", "payer-1", []domain.OrderItem{
		{ID: "item-1", ProductID: "prod-1", ProductName: "widget", Price: price, Qty: 1},
	}, domain.Address{})
	require.NoError(t, err)
	require.NoError(t, orders.Create(ctx, order))

	if status != domain.OrderStatusPending {
		stored, err := orders.Get(ctx, order.ID)
		require.NoError(t, err)
		stored.SetStatus(status)
		require.NoError(t, orders.Save(ctx, stored))
	}

	stored, err := orders.Get(ctx, order.ID)
	require.NoError(t, err)
	return stored
}

func TestService_Cancel(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	publisher := &stubPublisher{}

	order := seedOrder(t, orders, domain.OrderStatusPending)
	svc := lifecycle.NewService(orders, timeline, publisher, nil, nil)

	cancelled, err := svc.Cancel(ctx, order.ID, "customer request")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, "customer request", cancelled.CancelReason)

	stored, err := orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, stored.Status)
	require.NotNil(t, stored.CancelledAt)

	events := publisher.all()
	require.Len(t, events, 1)
	event, ok := events[0].event.(kafka.OrderCancelledEvent)
	require.True(t, ok)
	require.Equal(t, "customer request", event.Reason)
}

// Отмена после отгрузки отклоняется: ни записи, ни события.
func TestService_CancelNotCancellable(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	publisher := &stubPublisher{}

	order := seedOrder(t, orders, domain.OrderStatusShipped)
	svc := lifecycle.NewService(orders, nil, publisher, nil, nil)

	_, err := svc.Cancel(ctx, order.ID, "late cancel")
	require.ErrorIs(t, err, domain.ErrOrderNotCancellable)

	stored, err := orders.Get(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, stored.Status)
	require.Empty(t, publisher.all())
}

func TestService_Advance(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	publisher := &stubPublisher{}

	order := seedOrder(t, orders, domain.OrderStatusPaymentReceived)
	svc := lifecycle.NewService(orders, nil, publisher, nil, nil)

	advanced, err := svc.Advance(ctx, order.ID, domain.OrderStatusProcessing)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, advanced.Status)

	// Терминальные статусы этим методом недостижимы.
	_, err = svc.Advance(ctx, order.ID, domain.OrderStatusCancelled)
	require.ErrorIs(t, err, domain.ErrUnknownOrderStatus)
}

func TestService_Complete(t *testing.T) {
	ctx := context.Background()
	orders := memory.NewOrderRepository()
	timeline := memory.NewTimelineRepository()
	publisher := &stubPublisher{}

	order := seedOrder(t, orders, domain.OrderStatusShipped)
	svc := lifecycle.NewService(orders, timeline, publisher, nil, nil)

	completed, err := svc.Complete(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, completed.Status)
	require.NotNil(t, completed.CompletedAt)

	events := publisher.all()
	require.Len(t, events, 2)
	_, ok := events[0].event.(kafka.OrderStatusChangedEvent)
	require.True(t, ok)
	_, ok = events[1].event.(kafka.OrderCompletedEvent)
	require.True(t, ok)
}

func TestService_CancelMissingOrder(t *testing.T) {
	svc := lifecycle.NewService(memory.NewOrderRepository(), nil, &stubPublisher{}, nil, nil)

	_, err := svc.Cancel(context.Background(), "missing", "reason")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}
