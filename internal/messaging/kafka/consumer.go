package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries = 3
	defaultRetryDelay = 5 * time.Second
)

// Consumer представляет Kafka consumer group с ограниченным повтором и DLQ.
//
// Решение обработчика (Ack | Retry | Reject) интерпретируется так:
//   - Ack: offset фиксируется;
//   - Retry: сообщение сразу публикуется в тот же topic с инкрементом
//     x-retry-count и сроком x-not-before = now + retryDelay; после
//     maxRetries попыток уходит в DLQ;
//   - Reject: сообщение сразу уходит в DLQ.
//
// Задержка повтора выдерживается при потреблении: повторное сообщение уходит
// в конец лога, partition продолжает обрабатывать остальные сообщения, и лишь
// дойдя до повтора consumer дожидается остатка срока (обычно уже истёкшего).
// Порядок между повторами и так не гарантирован at-least-once доставкой.
type Consumer struct {
	consumer   sarama.ConsumerGroup
	producer   *Producer
	topics     []string
	handler    EventHandler
	logger     *log.Entry
	wg         sync.WaitGroup
	maxRetries int
	retryDelay time.Duration
}

// ConsumerOptions задаёт параметры retry-политики consumer-а.
type ConsumerOptions struct {
	MaxRetries int
	RetryDelay time.Duration
}

// NewConsumer создает consumer group для topics с обработчиком handler.
// Producer обязателен: через него выполняются повторные публикации и DLQ.
func NewConsumer(brokers []string, groupID string, topics []string, handler EventHandler, producer *Producer, opts ConsumerOptions) (*Consumer, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka consumer requires a producer for retry and dlq publishing")
	}

	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &Consumer{
		consumer:   group,
		producer:   producer,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer").WithField("group", groupID),
		maxRetries: maxRetries,
		retryDelay: retryDelay,
	}, nil
}

// Start запускает consumer.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume вызывается в цикле: при rebalance он завершается.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте consumer session.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении consumer session.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения из partition.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				return nil
			}

			c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}).Debug("received message")

			if err := c.dispatch(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(log.Fields{
					"topic":     message.Topic,
					"partition": message.Partition,
					"offset":    message.Offset,
				}).Error("message dispatch failed")
				// Сообщение не фиксируем: после restart оно будет доставлено снова.
				continue
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// dispatch применяет решение обработчика к сообщению.
func (c *Consumer) dispatch(ctx context.Context, message *sarama.ConsumerMessage) error {
	if err := c.awaitDue(ctx, message); err != nil {
		return err
	}

	result := c.handler(ctx, message)

	switch result {
	case Ack:
		return nil

	case Retry:
		retryCount := RetryCount(message)
		if retryCount >= c.maxRetries {
			c.logger.WithFields(log.Fields{
				"topic":       message.Topic,
				"retry_count": retryCount,
				"max_retries": c.maxRetries,
			}).Warn("retries exhausted, sending message to dlq")
			return c.sendToDLQ(message, fmt.Sprintf("retries exhausted after %d attempts", retryCount))
		}
		return c.redeliver(message, retryCount)

	case Reject:
		c.logger.WithFields(log.Fields{
			"topic":  message.Topic,
			"offset": message.Offset,
		}).Warn("message rejected, sending to dlq")
		return c.sendToDLQ(message, "rejected by handler")

	default:
		return fmt.Errorf("unsupported handler result: %s", result)
	}
}

// awaitDue выдерживает срок x-not-before повторного сообщения. Ожидание
// ограничено retryDelay и наступает только если сообщение дошло до partition
// раньше срока; сам цикл публикации задержек не вносит.
func (c *Consumer) awaitDue(ctx context.Context, message *sarama.ConsumerMessage) error {
	wait := time.Until(NotBefore(message))
	if wait <= 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// redeliver немедленно публикует сообщение обратно в его topic с инкрементом
// счётчика попыток и сроком следующей обработки.
func (c *Consumer) redeliver(message *sarama.ConsumerMessage, retryCount int) error {
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(retryCount + 1))},
		{Key: []byte(HeaderNotBefore), Value: []byte(time.Now().UTC().Add(c.retryDelay).Format(time.RFC3339))},
	}

	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retryCount + 1,
		"max_retries": c.maxRetries,
	}).Warn("message processing failed, redelivering")

	return c.producer.publishRaw(message.Topic, string(message.Key), message.Value, headers)
}

// RetryCount извлекает счётчик попыток из headers сообщения.
func RetryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header == nil {
			continue
		}
		if string(header.Key) == HeaderRetryCount {
			if count, err := strconv.Atoi(string(header.Value)); err == nil {
				return count
			}
		}
	}
	return 0
}

// NotBefore извлекает срок повторной обработки из headers сообщения.
// Для первичных доставок и нечитаемых значений возвращается нулевое время:
// такое сообщение обрабатывается сразу.
func NotBefore(message *sarama.ConsumerMessage) time.Time {
	for _, header := range message.Headers {
		if header == nil {
			continue
		}
		if string(header.Key) == HeaderNotBefore {
			if due, err := time.Parse(time.RFC3339, string(header.Value)); err == nil {
				return due
			}
		}
	}
	return time.Time{}
}

// sendToDLQ отправляет сообщение в Dead Letter Queue с контекстом сбоя.
func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, reason string) error {
	payload, err := json.Marshal(map[string]any{
		"original_topic":     message.Topic,
		"original_partition": message.Partition,
		"original_offset":    message.Offset,
		"original_key":       string(message.Key),
		"original_value":     string(message.Value),
		"error_message":      reason,
		"failed_at":          time.Now().UTC().Format(time.RFC3339),
		"retry_count":        RetryCount(message),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	if err := c.producer.publishRaw(TopicDeadLetterQueue, string(message.Key), payload, nil); err != nil {
		return fmt.Errorf("failed to send to dlq: %w", err)
	}

	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": RetryCount(message),
	}).Info("message sent to dlq")
	return nil
}
