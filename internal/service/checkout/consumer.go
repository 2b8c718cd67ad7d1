package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Consumer превращает событие завершённого чекаута в сохранённый заказ
// и публикует OrderCreated. Создание заказа ключуется checkout_id:
// повторная доставка того же чекаута находит существующий заказ и
// переиздаёт OrderCreated вместо создания дубликата.
type Consumer struct {
	orders    domain.OrderRepository
	timeline  domain.TimelineRepository
	publisher domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.SagaMetrics
}

// NewConsumer создаёт consumer чекаутов.
func NewConsumer(
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	publisher domain.EventPublisher,
	logger *log.Entry,
	sagaMetrics *metrics.SagaMetrics,
) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "checkout-consumer")
	}
	return &Consumer{
		orders:    orders,
		timeline:  timeline,
		publisher: publisher,
		logger:    logger,
		metrics:   sagaMetrics,
	}
}

// HandleMessage — транспортный адаптер: парсит сообщение и делегирует Handle.
func (c *Consumer) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) kafka.Result {
	event, err := kafka.ParseCheckoutCompleted(message)
	if err != nil {
		c.logger.WithError(err).Warn("malformed checkout event")
		return c.record(kafka.Reject)
	}
	return c.record(c.Handle(ctx, event))
}

// Handle создаёт заказ из события чекаута.
func (c *Consumer) Handle(ctx context.Context, event kafka.CheckoutCompletedEvent) kafka.Result {
	order, err := c.buildOrder(event)
	if err != nil {
		c.logger.WithError(err).WithField("checkout_id", event.CheckoutID).Warn("invalid checkout event")
		return kafka.Reject
	}

	// Сумма события носит справочный характер; доверяем только пересчёту.
	if !event.TotalPrice.IsZero() && !order.Total.Amount.Equal(event.TotalPrice) {
		c.logger.WithFields(log.Fields{
			"checkout_id":  event.CheckoutID,
			"event_total":  event.TotalPrice.String(),
			"actual_total": order.Total.Amount.String(),
		}).Warn("checkout total mismatch, using recomputed total")
	}

	created := true
	if err := c.orders.Create(ctx, order); err != nil {
		if !errors.Is(err, domain.ErrCheckoutAlreadyProcessed) {
			c.logger.WithError(err).WithField("checkout_id", event.CheckoutID).Warn("failed to persist order")
			return kafka.Retry
		}

		// Повторная доставка: заказ уже есть, переиздаём OrderCreated.
		existing, lookupErr := c.orders.FindByCheckoutID(ctx, event.CheckoutID)
		if lookupErr != nil {
			c.logger.WithError(lookupErr).WithField("checkout_id", event.CheckoutID).Warn("failed to load existing order")
			return kafka.Retry
		}
		order = existing
		created = false
		if c.metrics != nil {
			c.metrics.RecordDuplicateCheckout()
		}
	}

	if err := c.publisher.Publish(ctx, kafka.TopicOrderEvents, order.ID, kafka.NewOrderCreated(order)); err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to publish order created")
		return kafka.Retry
	}

	if created {
		c.appendTimeline(ctx, order)
		if c.metrics != nil {
			c.metrics.RecordOrderCreated()
		}
		c.logger.WithFields(log.Fields{
			"order_id":    order.ID,
			"checkout_id": order.CheckoutID,
			"payer_id":    order.PayerID,
			"total":       order.Total.String(),
		}).Info("order created from checkout")
	}

	return kafka.Ack
}

// buildOrder собирает заказ из события, пересчитывая сумму из позиций.
func (c *Consumer) buildOrder(event kafka.CheckoutCompletedEvent) (domain.Order, error) {
	items := make([]domain.OrderItem, 0, len(event.Items))
	for _, line := range event.Items {
		price, err := domain.NewMoney(line.Price, event.Currency)
		if err != nil {
			return domain.Order{}, err
		}
		if line.Quantity <= 0 {
			return domain.Order{}, domain.ErrItemQtyInvalid
		}
		items = append(items, domain.OrderItem{
			ID:          uuid.NewString(),
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Price:       price,
			Qty:         line.Quantity,
		})
	}

	shipping := domain.Address{
		Street:  event.ShippingAddress.Street,
		City:    event.ShippingAddress.City,
		State:   event.ShippingAddress.State,
		Zip:     event.ShippingAddress.Zip,
		Country: event.ShippingAddress.Country,
	}

	order, err := domain.NewOrder(uuid.NewString(), event.CheckoutID, event.PayerID, items, shipping)
	if err != nil {
		return domain.Order{}, err
	}
	order.Notes = event.Notes
	return order, nil
}

func (c *Consumer) appendTimeline(ctx context.Context, order domain.Order) {
	if c.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     string(kafka.EventTypeOrderCreated),
		Status:   order.Status,
		Occurred: time.Now().UTC(),
	}
	if err := c.timeline.Append(ctx, event); err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	}
}

func (c *Consumer) record(result kafka.Result) kafka.Result {
	if c.metrics != nil {
		c.metrics.RecordConsumerResult("checkout", result.String())
	}
	return result
}
