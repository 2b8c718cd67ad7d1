package domain

import (
	"context"
	"time"
)

// ChargeResult — ответ платёжного провайдера на попытку списания.
// Провайдер либо подтверждает платёж с идентификатором транзакции,
// либо отклоняет его с причиной; транспортные сбои возвращаются ошибкой.
type ChargeResult struct {
	Succeeded     bool
	TransactionID string
	FailureReason string
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// Charge инициирует списание средств по заказу. Ошибка означает
	// транспортный сбой, а не отказ провайдера: отказ приходит в ChargeResult.
	Charge(ctx context.Context, orderID string, amount Money, payerID string) (ChargeResult, error)
}

// EventPublisher публикует события саги в брокер.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

// TimelineRepository хранит историю смен статуса заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// InboxRepository хранит идентификаторы уже обработанных событий.
// Доставка at-least-once означает, что consumer обязан переживать дубликаты;
// inbox — долговечная замена какому-либо in-process множеству.
type InboxRepository interface {
	// MarkProcessed фиксирует событие как обработанное.
	// Возвращает ErrEventAlreadyProcessed при повторе.
	MarkProcessed(ctx context.Context, eventID string, ttlAt time.Time) error
	// Seen сообщает, было ли событие уже обработано.
	Seen(ctx context.Context, eventID string) (bool, error)
	// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}
