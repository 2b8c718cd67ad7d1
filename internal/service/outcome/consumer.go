package outcome

import (
	"context"
	"errors"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

const (
	// Попытки перечитать заказ при конфликте версий в рамках одной доставки.
	maxConflictRetries = 3

	// Срок хранения отметки об обработанном событии.
	processedEventTTL = 24 * time.Hour
)

// Consumer применяет исходы платежей к заказу: успех переводит заказ в
// payment_received, отказ — в failed. Заказ может ещё не существовать из-за
// переупорядочивания при at-least-once доставке, поэтому отсутствие заказа —
// это Retry, а не Reject: ограниченный повтор даёт consumer-у чекаутов время
// дописать заказ, и лишь затем событие уходит в DLQ.
type Consumer struct {
	orders    domain.OrderRepository
	inbox     domain.InboxRepository
	timeline  domain.TimelineRepository
	publisher domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.SagaMetrics
}

// NewConsumer создаёт consumer исходов платежей.
func NewConsumer(
	orders domain.OrderRepository,
	inbox domain.InboxRepository,
	timeline domain.TimelineRepository,
	publisher domain.EventPublisher,
	logger *log.Entry,
	sagaMetrics *metrics.SagaMetrics,
) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "outcome-consumer")
	}
	return &Consumer{
		orders:    orders,
		inbox:     inbox,
		timeline:  timeline,
		publisher: publisher,
		logger:    logger,
		metrics:   sagaMetrics,
	}
}

// HandleMessage — транспортный адаптер: различает событие по типу и делегирует.
func (c *Consumer) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) kafka.Result {
	if event, err := kafka.ParsePaymentSucceeded(message); err == nil {
		return c.record(c.HandleSucceeded(ctx, event))
	}
	if event, err := kafka.ParsePaymentFailed(message); err == nil {
		return c.record(c.HandleFailed(ctx, event))
	}
	c.logger.WithField("topic", message.Topic).Warn("malformed payment outcome event")
	return c.record(kafka.Reject)
}

// HandleSucceeded переводит заказ в payment_received после успешного платежа.
func (c *Consumer) HandleSucceeded(ctx context.Context, event kafka.PaymentSucceededEvent) kafka.Result {
	return c.apply(ctx, event.EventID, event.OrderID, domain.OrderStatusPaymentReceived, "", string(kafka.EventTypePaymentSucceeded))
}

// HandleFailed переводит заказ в failed после отклонённого платежа.
func (c *Consumer) HandleFailed(ctx context.Context, event kafka.PaymentFailedEvent) kafka.Result {
	return c.apply(ctx, event.EventID, event.OrderID, domain.OrderStatusFailed, event.Reason, string(kafka.EventTypePaymentFailed))
}

// apply применяет исход платежа к заказу с дедупликацией по event_id и
// перечитыванием при конфликте версий.
func (c *Consumer) apply(ctx context.Context, eventID, orderID string, status domain.OrderStatus, reason, eventType string) kafka.Result {
	if eventID == "" {
		c.logger.WithField("order_id", orderID).Warn("payment outcome without event id")
		return kafka.Reject
	}

	seen, err := c.inbox.Seen(ctx, eventID)
	if err != nil {
		c.logger.WithError(err).WithField("event_id", eventID).Warn("inbox lookup failed")
		return kafka.Retry
	}
	if seen {
		c.logger.WithFields(log.Fields{
			"event_id": eventID,
			"order_id": orderID,
		}).Info("payment outcome already applied, skipping")
		return kafka.Ack
	}

	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		order, err := c.orders.Get(ctx, orderID)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				// Заказ ещё не дописан consumer-ом чекаутов.
				c.logger.WithFields(log.Fields{
					"order_id": orderID,
					"event_id": eventID,
				}).Warn("order not found for payment outcome, retrying")
				return kafka.Retry
			}
			c.logger.WithError(err).WithField("order_id", orderID).Warn("failed to load order")
			return kafka.Retry
		}

		if order.Status == status {
			// Исход уже применён параллельной доставкой: фиксируем и выходим.
			return c.finish(ctx, eventID, order, reason, eventType, false)
		}

		order.SetStatus(status)

		if err := c.orders.Save(ctx, order); err != nil {
			if domain.IsVersionConflict(err) {
				c.logger.WithFields(log.Fields{
					"order_id": orderID,
					"attempt":  attempt + 1,
				}).Debug("order version conflict, reloading")
				continue
			}
			c.logger.WithError(err).WithField("order_id", orderID).Warn("failed to persist order status")
			return kafka.Retry
		}

		return c.finish(ctx, eventID, order, reason, eventType, true)
	}

	c.logger.WithField("order_id", orderID).Warn("order version conflicts exhausted, retrying delivery")
	return kafka.Retry
}

// finish публикует смену статуса, пишет timeline и отмечает событие обработанным.
func (c *Consumer) finish(ctx context.Context, eventID string, order domain.Order, reason, eventType string, transitioned bool) kafka.Result {
	if transitioned {
		if err := c.publisher.Publish(ctx, kafka.TopicOrderEvents, order.ID, kafka.NewOrderStatusChanged(order.ID, order.Status)); err != nil {
			c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to publish status change")
			return kafka.Retry
		}
		c.appendTimeline(ctx, order, reason, eventType)
		if c.metrics != nil {
			c.metrics.RecordStatusTransition(string(order.Status))
		}
		c.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"status":   order.Status,
		}).Info("payment outcome applied")
	}

	if err := c.inbox.MarkProcessed(ctx, eventID, time.Now().UTC().Add(processedEventTTL)); err != nil {
		// Переход уже зафиксирован; повторная доставка упрётся в сверку статуса.
		c.logger.WithError(err).WithField("event_id", eventID).Warn("failed to mark event processed")
	}
	return kafka.Ack
}

func (c *Consumer) appendTimeline(ctx context.Context, order domain.Order, reason, eventType string) {
	if c.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		OrderID:  order.ID,
		Type:     eventType,
		Status:   order.Status,
		Reason:   reason,
		Occurred: time.Now().UTC(),
	}
	if err := c.timeline.Append(ctx, event); err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("append timeline event failed")
	}
}

func (c *Consumer) record(result kafka.Result) kafka.Result {
	if c.metrics != nil {
		c.metrics.RecordConsumerResult("outcome", result.String())
	}
	return result
}
