package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type publishedEvent struct {
	topic string
	key   string
	event any
}

// stubPublisher собирает публикации в память; err имитирует сбой брокера.
type stubPublisher struct {
	mu     sync.Mutex
	err    error
	events []publishedEvent
}

func (s *stubPublisher) Publish(_ context.Context, topic, key string, event any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}

func (s *stubPublisher) all() []publishedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishedEvent(nil), s.events...)
}

func command(amount string) payment.Command {
	return payment.Command{
		OrderID:  "order-1",
		PayerID:  "payer-1",
		Amount:   decimal.RequireFromString(amount),
		Currency: "TRY",
	}
}

func TestHandler_SuccessfulCharge(t *testing.T) {
	ctx := context.Background()
	payments := memory.NewPaymentRepository()
	gateway := payment.NewMockGateway()
	publisher := &stubPublisher{}

	handler := payment.NewHandler(payments, gateway, publisher, nil, nil)

	result, err := handler.Process(ctx, command("99.90"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSucceeded, result.Status)
	require.NotEmpty(t, result.TransactionID)
	require.Equal(t, 1, gateway.Calls())

	stored, err := payments.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSucceeded, stored.Status)

	events := publisher.all()
	require.Len(t, events, 1)
	require.Equal(t, kafka.TopicPaymentEvents, events[0].topic)
	succeeded, ok := events[0].event.(kafka.PaymentSucceededEvent)
	require.True(t, ok)
	require.Equal(t, "order-1", succeeded.OrderID)
	require.Equal(t, "TRY", succeeded.Currency)
}

func TestHandler_DeclinedCharge(t *testing.T) {
	ctx := context.Background()
	payments := memory.NewPaymentRepository()
	gateway := payment.NewMockGateway()
	gateway.FailureReason = "insufficient funds"
	publisher := &stubPublisher{}

	handler := payment.NewHandler(payments, gateway, publisher, nil, nil)

	result, err := handler.Process(ctx, command("10.00"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, result.Status)
	require.Equal(t, "insufficient funds", result.FailureReason)

	events := publisher.all()
	require.Len(t, events, 1)
	failed, ok := events[0].event.(kafka.PaymentFailedEvent)
	require.True(t, ok)
	require.Equal(t, "insufficient funds", failed.Reason)
}

// Повторная доставка команды не приводит ко второму списанию: guard находит
// существующий платёж и возвращает его без обращения к провайдеру.
func TestHandler_DuplicateCommandSkipsGateway(t *testing.T) {
	ctx := context.Background()
	payments := memory.NewPaymentRepository()
	gateway := payment.NewMockGateway()
	publisher := &stubPublisher{}

	handler := payment.NewHandler(payments, gateway, publisher, nil, nil)

	first, err := handler.Process(ctx, command("50.00"))
	require.NoError(t, err)
	require.Equal(t, 1, gateway.Calls())

	second, err := handler.Process(ctx, command("50.00"))
	require.NoError(t, err)

	require.Equal(t, 1, gateway.Calls(), "gateway must not be charged twice")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.TransactionID, second.TransactionID)

	// Событие публикуется только первой обработкой.
	require.Len(t, publisher.all(), 1)
}

// Вставка платежа поднимает его версию в хранилище до 1; обработчик
// продолжает работу с актуальной версией, и settle сохраняет платёж
// без конфликта версий.
func TestHandler_VersionCurrentAfterInsert(t *testing.T) {
	ctx := context.Background()
	payments := memory.NewPaymentRepository()
	handler := payment.NewHandler(payments, payment.NewMockGateway(), &stubPublisher{}, nil, nil)

	settled, err := handler.Process(ctx, command("12.00"))
	require.NoError(t, err)

	stored, err := payments.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSucceeded, stored.Status)

	// Версия в хранилище: 1 после вставки, 2 после settle.
	require.Equal(t, int64(2), stored.Version)
	require.Equal(t, stored.Version, settled.Version)
}

func TestHandler_ValidationErrors(t *testing.T) {
	ctx := context.Background()
	payments := memory.NewPaymentRepository()
	gateway := payment.NewMockGateway()
	publisher := &stubPublisher{}

	handler := payment.NewHandler(payments, gateway, publisher, nil, nil)

	cmd := command("-1.00")
	_, err := handler.Process(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrMoneyNegative)
	require.True(t, domain.IsValidation(err))

	cmd = command("10.00")
	cmd.PayerID = ""
	_, err = handler.Process(ctx, cmd)
	require.ErrorIs(t, err, domain.ErrPayerRequired)

	// Ни платежей, ни обращений к провайдеру, ни событий.
	require.Equal(t, 0, gateway.Calls())
	require.Empty(t, publisher.all())
	_, err = payments.GetByOrderID(ctx, "order-1")
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

// Транспортный сбой провайдера оставляет платёж в processing; повторная
// доставка возвращает его через guard, не выполняя второго списания.
func TestHandler_GatewayTransportError(t *testing.T) {
	ctx := context.Background()
	payments := memory.NewPaymentRepository()
	gateway := payment.NewMockGateway()
	gateway.Err = errors.New("connection reset")
	publisher := &stubPublisher{}

	handler := payment.NewHandler(payments, gateway, publisher, nil, nil)

	_, err := handler.Process(ctx, command("30.00"))
	require.Error(t, err)
	require.False(t, domain.IsValidation(err))
	require.Equal(t, 1, gateway.Calls())

	stored, err := payments.GetByOrderID(ctx, "order-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusProcessing, stored.Status)

	// Вторая доставка: провайдер снова не вызывается.
	gateway.Err = nil
	redelivered, err := handler.Process(ctx, command("30.00"))
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusProcessing, redelivered.Status)
	require.Equal(t, 1, gateway.Calls())
}
