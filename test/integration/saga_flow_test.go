package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/checkout"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/outcome"
	"github.com/vladislavdragonenkov/fulfillment/internal/service/payment"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

type publishedEvent struct {
	topic string
	key   string
	event any
}

// capturingPublisher собирает публикации в память вместо брокера; тест сам
// перекладывает события между этапами саги, имитируя доставку.
type capturingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *capturingPublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, key: key, event: event})
	return nil
}

func (p *capturingPublisher) byTopic(topic string) []any {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []any
	for _, published := range p.events {
		if published.topic == topic {
			out = append(out, published.event)
		}
	}
	return out
}

// SagaFlowTestSuite прогоняет сагу целиком на in-memory хранилище:
// чекаут → заказ → платёж → исход платежа → статус заказа.
type SagaFlowTestSuite struct {
	suite.Suite
	orders    domain.OrderRepository
	payments  domain.PaymentRepository
	timeline  domain.TimelineRepository
	gateway   *payment.MockGateway
	publisher *capturingPublisher

	checkout  *checkout.Consumer
	handler   *payment.Handler
	outcome   *outcome.Consumer
	lifecycle *lifecycle.Service
}

func (suite *SagaFlowTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	logger := baseLogger.WithField("component", "integration-test")

	suite.orders = memory.NewOrderRepository()
	suite.payments = memory.NewPaymentRepository()
	suite.timeline = memory.NewTimelineRepository()
	suite.gateway = payment.NewMockGateway()
	suite.publisher = &capturingPublisher{}

	inbox := memory.NewInboxRepository()

	suite.checkout = checkout.NewConsumer(suite.orders, suite.timeline, suite.publisher, logger, nil)
	suite.handler = payment.NewHandler(suite.payments, suite.gateway, suite.publisher, logger, nil)
	suite.outcome = outcome.NewConsumer(suite.orders, inbox, suite.timeline, suite.publisher, logger, nil)
	suite.lifecycle = lifecycle.NewService(suite.orders, suite.timeline, suite.publisher, logger, nil)
}

func (suite *SagaFlowTestSuite) checkoutEvent() kafka.CheckoutCompletedEvent {
	return kafka.CheckoutCompletedEvent{
		EventID:    "checkout-event-1",
		CheckoutID: "checkout-1",
		PayerID:    "payer-1",
		PayerName:  "Ayşe",
		Currency:   "TRY",
		TotalPrice: decimal.RequireFromString("125.00"),
		Items: []kafka.CheckoutItem{
			{ProductID: "prod-laptop", ProductName: "laptop stand", Price: decimal.RequireFromString("100.00"), Quantity: 1},
			{ProductID: "prod-cable", ProductName: "usb cable", Price: decimal.RequireFromString("12.50"), Quantity: 2},
		},
		ShippingAddress: kafka.ShippingAddress{City: "Izmir", Country: "TR"},
	}
}

// createOrder проводит событие чекаута через consumer и возвращает заказ.
func (suite *SagaFlowTestSuite) createOrder() domain.Order {
	require.Equal(suite.T(), kafka.Ack, suite.checkout.Handle(context.Background(), suite.checkoutEvent()))

	order, err := suite.orders.FindByCheckoutID(context.Background(), "checkout-1")
	require.NoError(suite.T(), err)
	return order
}

// payOrder выполняет команду оплаты и доставляет её исход в outcome consumer.
func (suite *SagaFlowTestSuite) payOrder(order domain.Order) domain.Payment {
	ctx := context.Background()

	settled, err := suite.handler.Process(ctx, payment.Command{
		OrderID:  order.ID,
		PayerID:  order.PayerID,
		Amount:   order.Total.Amount,
		Currency: order.Total.Currency,
	})
	require.NoError(suite.T(), err)

	for _, event := range suite.publisher.byTopic(kafka.TopicPaymentEvents) {
		switch outcomeEvent := event.(type) {
		case kafka.PaymentSucceededEvent:
			require.Equal(suite.T(), kafka.Ack, suite.outcome.HandleSucceeded(ctx, outcomeEvent))
		case kafka.PaymentFailedEvent:
			require.Equal(suite.T(), kafka.Ack, suite.outcome.HandleFailed(ctx, outcomeEvent))
		}
	}
	return settled
}

func (suite *SagaFlowTestSuite) TestSuccessfulFulfillmentFlow() {
	ctx := context.Background()

	// 1. Чекаут создаёт заказ в pending; сумма пересчитана из позиций.
	order := suite.createOrder()
	require.Equal(suite.T(), domain.OrderStatusPending, order.Status)
	require.Equal(suite.T(), "125", order.Total.Amount.String()) // 100 + 2*12.50
	require.Equal(suite.T(), "TRY", order.Total.Currency)

	created := suite.publisher.byTopic(kafka.TopicOrderEvents)
	require.Len(suite.T(), created, 1)
	require.IsType(suite.T(), kafka.OrderCreatedEvent{}, created[0])

	// 2. Оплата проходит, исход доставлен — заказ в payment_received.
	settled := suite.payOrder(order)
	require.Equal(suite.T(), domain.PaymentStatusSucceeded, settled.Status)
	require.NotEmpty(suite.T(), settled.TransactionID)

	paid, err := suite.orders.Get(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPaymentReceived, paid.Status)

	// 3. Склад и доставка: processing → shipped → delivered.
	_, err = suite.lifecycle.Advance(ctx, order.ID, domain.OrderStatusProcessing)
	require.NoError(suite.T(), err)
	_, err = suite.lifecycle.Advance(ctx, order.ID, domain.OrderStatusShipped)
	require.NoError(suite.T(), err)

	delivered, err := suite.lifecycle.Complete(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusDelivered, delivered.Status)
	require.NotNil(suite.T(), delivered.CompletedAt)

	// Вся история переходов осела в timeline.
	history, err := suite.timeline.List(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.GreaterOrEqual(suite.T(), len(history), 5)
}

func (suite *SagaFlowTestSuite) TestFailedPaymentFlow() {
	ctx := context.Background()
	suite.gateway.FailureReason = "insufficient funds"

	order := suite.createOrder()
	settled := suite.payOrder(order)
	require.Equal(suite.T(), domain.PaymentStatusFailed, settled.Status)
	require.Equal(suite.T(), "insufficient funds", settled.FailureReason)

	failed, err := suite.orders.Get(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusFailed, failed.Status)

	// Проваленный заказ нельзя ни отменить, ни двигать дальше.
	_, err = suite.lifecycle.Cancel(ctx, order.ID, "too late")
	require.ErrorIs(suite.T(), err, domain.ErrOrderNotCancellable)
}

// Повторная доставка каждого сообщения саги не порождает дублей:
// один заказ, одно списание, один переход статуса.
func (suite *SagaFlowTestSuite) TestRedeliveryIsIdempotent() {
	ctx := context.Background()

	order := suite.createOrder()
	require.Equal(suite.T(), kafka.Ack, suite.checkout.Handle(ctx, suite.checkoutEvent()))

	found, err := suite.orders.ListByPayer(ctx, "payer-1", 0)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), found, 1)

	first := suite.payOrder(order)
	require.Equal(suite.T(), 1, suite.gateway.Calls())

	// Повтор команды: guard возвращает существующий платёж без списания.
	second, err := suite.handler.Process(ctx, payment.Command{
		OrderID:  order.ID,
		PayerID:  order.PayerID,
		Amount:   order.Total.Amount,
		Currency: order.Total.Currency,
	})
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), first.ID, second.ID)
	require.Equal(suite.T(), 1, suite.gateway.Calls())

	// Повтор исхода: inbox дедуплицирует, статус не переиздаётся.
	outcomes := suite.publisher.byTopic(kafka.TopicPaymentEvents)
	require.Len(suite.T(), outcomes, 1)
	succeeded := outcomes[0].(kafka.PaymentSucceededEvent)
	require.Equal(suite.T(), kafka.Ack, suite.outcome.HandleSucceeded(ctx, succeeded))

	updated, err := suite.orders.Get(ctx, order.ID)
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusPaymentReceived, updated.Status)

	var statusChanges int
	for _, event := range suite.publisher.byTopic(kafka.TopicOrderEvents) {
		if _, ok := event.(kafka.OrderStatusChangedEvent); ok {
			statusChanges++
		}
	}
	require.Equal(suite.T(), 1, statusChanges)
}

func (suite *SagaFlowTestSuite) TestCancelBeforePayment() {
	ctx := context.Background()

	order := suite.createOrder()

	cancelled, err := suite.lifecycle.Cancel(ctx, order.ID, "changed my mind")
	require.NoError(suite.T(), err)
	require.Equal(suite.T(), domain.OrderStatusCancelled, cancelled.Status)
	require.NotNil(suite.T(), cancelled.CancelledAt)

	var sawCancelled bool
	for _, event := range suite.publisher.byTopic(kafka.TopicOrderEvents) {
		if cancelledEvent, ok := event.(kafka.OrderCancelledEvent); ok {
			sawCancelled = true
			require.Equal(suite.T(), "changed my mind", cancelledEvent.Reason)
		}
	}
	require.True(suite.T(), sawCancelled)
}

func TestSagaFlowTestSuite(t *testing.T) {
	suite.Run(t, new(SagaFlowTestSuite))
}
