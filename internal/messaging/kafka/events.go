package kafka

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// EventType определяет тип события на шине.
type EventType string

const (
	// Входящее событие витрины о завершённом чекауте.
	EventTypeCheckoutCompleted EventType = "checkout.completed"

	// Order события.
	EventTypeOrderCreated       EventType = "order.created"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderCompleted     EventType = "order.completed"
	EventTypeOrderCancelled     EventType = "order.cancelled"

	// Payment события.
	EventTypePaymentRequested EventType = "payment.requested"
	EventTypePaymentSucceeded EventType = "payment.succeeded"
	EventTypePaymentFailed    EventType = "payment.failed"
)

// Topics саги. Каждый topic — отдельная durable-очередь с доставкой at-least-once.
const (
	TopicCheckoutCompleted = "storefront.checkout.completed"
	TopicOrderEvents       = "storefront.order.events"
	TopicPaymentRequests   = "storefront.payment.requests"
	TopicPaymentEvents     = "storefront.payment.events"
	TopicDeadLetterQueue   = "storefront.fulfillment.dlq"
)

// Kafka headers для retry логики.
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderNotBefore     = "x-not-before"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// ShippingAddress — адрес доставки в wire-формате.
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// CheckoutItem — позиция корзины в событии чекаута.
type CheckoutItem struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int32           `json:"quantity"`
}

// CheckoutCompletedEvent публикуется витриной после оформления корзины.
// checkout_id — ключ идемпотентности создания заказа; total_price носит
// справочный характер и пересчитывается consumer-ом из позиций.
type CheckoutCompletedEvent struct {
	EventID         string          `json:"event_id"`
	CheckoutID      string          `json:"checkout_id"`
	PayerID         string          `json:"payer_id"`
	PayerName       string          `json:"payer_name"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Currency        string          `json:"currency"`
	Items           []CheckoutItem  `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Notes           string          `json:"notes,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// OrderCreatedEvent публикуется после сохранения нового заказа.
type OrderCreatedEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	PayerID   string    `json:"payer_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStatusChangedEvent публикуется при каждой смене статуса заказа.
type OrderStatusChangedEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	NewStatus string    `json:"new_status"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCompletedEvent публикуется командным слоем при доставке заказа.
type OrderCompletedEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCancelledEvent публикуется при отмене заказа.
type OrderCancelledEvent struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	OrderID   string    `json:"order_id"`
	PayerID   string    `json:"payer_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessPaymentCommand — запрос на списание средств по заказу.
type ProcessPaymentCommand struct {
	EventID     string          `json:"event_id"`
	OrderID     string          `json:"order_id"`
	PayerID     string          `json:"payer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Timestamp   time.Time       `json:"timestamp"`
}

// PaymentSucceededEvent публикуется после подтверждённого списания.
type PaymentSucceededEvent struct {
	EventID       string          `json:"event_id"`
	EventType     EventType       `json:"event_type"`
	OrderID       string          `json:"order_id"`
	PayerID       string          `json:"payer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	TransactionID string          `json:"transaction_id"`
	CompletedAt   time.Time       `json:"completed_at"`
}

// PaymentFailedEvent публикуется после отказа провайдера.
type PaymentFailedEvent struct {
	EventID   string          `json:"event_id"`
	EventType EventType       `json:"event_type"`
	OrderID   string          `json:"order_id"`
	PayerID   string          `json:"payer_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Reason    string          `json:"reason"`
	FailedAt  time.Time       `json:"failed_at"`
}

// NewOrderCreated создаёт событие о новом заказе.
func NewOrderCreated(order domain.Order) OrderCreatedEvent {
	return OrderCreatedEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeOrderCreated,
		OrderID:   order.ID,
		PayerID:   order.PayerID,
		Timestamp: time.Now().UTC(),
	}
}

// NewOrderStatusChanged создаёт событие о смене статуса заказа.
func NewOrderStatusChanged(orderID string, status domain.OrderStatus) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeOrderStatusChanged,
		OrderID:   orderID,
		NewStatus: string(status),
		Timestamp: time.Now().UTC(),
	}
}

// NewOrderCompleted создаёт событие о доставленном заказе.
func NewOrderCompleted(orderID string) OrderCompletedEvent {
	return OrderCompletedEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeOrderCompleted,
		OrderID:   orderID,
		Timestamp: time.Now().UTC(),
	}
}

// NewOrderCancelled создаёт событие об отмене заказа.
func NewOrderCancelled(order domain.Order) OrderCancelledEvent {
	return OrderCancelledEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeOrderCancelled,
		OrderID:   order.ID,
		PayerID:   order.PayerID,
		Reason:    order.CancelReason,
		Timestamp: time.Now().UTC(),
	}
}

// NewPaymentSucceeded создаёт событие об успешном платеже.
func NewPaymentSucceeded(payment domain.Payment) PaymentSucceededEvent {
	completedAt := payment.UpdatedAt
	if payment.ProcessedAt != nil {
		completedAt = *payment.ProcessedAt
	}
	return PaymentSucceededEvent{
		EventID:       uuid.NewString(),
		EventType:     EventTypePaymentSucceeded,
		OrderID:       payment.OrderID,
		PayerID:       payment.PayerID,
		Amount:        payment.Amount.Amount,
		Currency:      payment.Amount.Currency,
		TransactionID: payment.TransactionID,
		CompletedAt:   completedAt,
	}
}

// NewPaymentFailed создаёт событие об отклонённом платеже.
func NewPaymentFailed(payment domain.Payment) PaymentFailedEvent {
	failedAt := payment.UpdatedAt
	if payment.ProcessedAt != nil {
		failedAt = *payment.ProcessedAt
	}
	return PaymentFailedEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypePaymentFailed,
		OrderID:   payment.OrderID,
		PayerID:   payment.PayerID,
		Amount:    payment.Amount.Amount,
		Currency:  payment.Amount.Currency,
		Reason:    payment.FailureReason,
		FailedAt:  failedAt,
	}
}
