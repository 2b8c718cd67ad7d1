package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
)

// Result — явное решение обработчика по сообщению. Транспортный уровень
// превращает его в commit, повторную доставку или dead-letter; управление
// потоком через панические/пробрасываемые ошибки не используется.
type Result int

const (
	// Ack — сообщение обработано, offset можно зафиксировать.
	Ack Result = iota
	// Retry — временный сбой: доставить повторно с фиксированной задержкой,
	// пока не исчерпан лимит попыток; затем в DLQ.
	Retry
	// Reject — сообщение невалидно и повтор бессмыслен: сразу в DLQ.
	Reject
)

func (r Result) String() string {
	switch r {
	case Ack:
		return "ack"
	case Retry:
		return "retry"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// EventHandler обрабатывает сообщение и возвращает решение по нему.
type EventHandler func(ctx context.Context, message *sarama.ConsumerMessage) Result

// ParseCheckoutCompleted парсит CheckoutCompletedEvent из сообщения.
func ParseCheckoutCompleted(message *sarama.ConsumerMessage) (CheckoutCompletedEvent, error) {
	var event CheckoutCompletedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return CheckoutCompletedEvent{}, fmt.Errorf("unmarshal checkout completed event: %w", err)
	}
	return event, nil
}

// ParseProcessPayment парсит ProcessPaymentCommand из сообщения.
func ParseProcessPayment(message *sarama.ConsumerMessage) (ProcessPaymentCommand, error) {
	var cmd ProcessPaymentCommand
	if err := json.Unmarshal(message.Value, &cmd); err != nil {
		return ProcessPaymentCommand{}, fmt.Errorf("unmarshal process payment command: %w", err)
	}
	return cmd, nil
}

// PeekEventType извлекает event_type сообщения, не разбирая payload целиком.
// Используется для маршрутизации на topic-ах с несколькими типами событий.
func PeekEventType(message *sarama.ConsumerMessage) (EventType, error) {
	var envelope struct {
		EventType EventType `json:"event_type"`
	}
	if err := json.Unmarshal(message.Value, &envelope); err != nil {
		return "", fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return envelope.EventType, nil
}

// ParsePaymentSucceeded парсит PaymentSucceededEvent из сообщения.
func ParsePaymentSucceeded(message *sarama.ConsumerMessage) (PaymentSucceededEvent, error) {
	var event PaymentSucceededEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return PaymentSucceededEvent{}, fmt.Errorf("unmarshal payment succeeded event: %w", err)
	}
	if event.EventType != EventTypePaymentSucceeded {
		return PaymentSucceededEvent{}, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	return event, nil
}

// ParsePaymentFailed парсит PaymentFailedEvent из сообщения.
func ParsePaymentFailed(message *sarama.ConsumerMessage) (PaymentFailedEvent, error) {
	var event PaymentFailedEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return PaymentFailedEvent{}, fmt.Errorf("unmarshal payment failed event: %w", err)
	}
	if event.EventType != EventTypePaymentFailed {
		return PaymentFailedEvent{}, fmt.Errorf("unexpected event type %q", event.EventType)
	}
	return event, nil
}
