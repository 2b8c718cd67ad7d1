package domain

import (
	"strings"
	"time"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан из чекаута, оплата ещё не получена.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaymentReceived — оплата подтверждена платёжным провайдером.
	OrderStatusPaymentReceived OrderStatus = "payment_received"
	// OrderStatusProcessing — заказ собирается на складе.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — заказ доставлен; терминальный успешный статус.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён; терминальный статус.
	OrderStatusCancelled OrderStatus = "cancelled"
	// OrderStatusFailed — оплата не прошла; терминальный статус.
	OrderStatusFailed OrderStatus = "failed"
)

// ParseOrderStatus разбирает статус из строки один раз на границе транспорта.
// Сопоставление регистронезависимое; внутри системы статус больше не перепарсивается.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch OrderStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case OrderStatusPending:
		return OrderStatusPending, nil
	case OrderStatusPaymentReceived:
		return OrderStatusPaymentReceived, nil
	case OrderStatusProcessing:
		return OrderStatusProcessing, nil
	case OrderStatusShipped:
		return OrderStatusShipped, nil
	case OrderStatusDelivered:
		return OrderStatusDelivered, nil
	case OrderStatusCancelled:
		return OrderStatusCancelled, nil
	case OrderStatusFailed:
		return OrderStatusFailed, nil
	default:
		return "", ErrUnknownOrderStatus
	}
}

// Address — адрес доставки заказа.
type Address struct {
	Street  string
	City    string
	State   string
	Zip     string
	Country string
}

// OrderItem представляет одну позицию заказа. Позиция принадлежит заказу
// и не имеет независимого жизненного цикла.
type OrderItem struct {
	ID          string
	ProductID   string
	ProductName string
	Price       Money
	Qty         int32
}

// Subtotal возвращает производную стоимость позиции: цена * количество.
func (i OrderItem) Subtotal() Money {
	return i.Price.MulInt(int64(i.Qty))
}

// Order агрегирует состояние заказа и его позиции. Заказ никогда не удаляется:
// отмена — это статус, а не удаление записи.
type Order struct {
	ID            string
	CheckoutID    string
	PayerID       string
	Items         []OrderItem
	Shipping      Address
	Status        OrderStatus
	Total         Money
	Notes         string
	PaymentID     string
	PaymentMethod string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
	CancelledAt   *time.Time
	CancelReason  string
}

// NewOrder создаёт заказ в статусе pending, пересчитывая сумму из позиций.
// Сумма из входящего события никогда не используется напрямую.
func NewOrder(id, checkoutID, payerID string, items []OrderItem, shipping Address) (Order, error) {
	order := Order{
		ID:         id,
		CheckoutID: strings.TrimSpace(checkoutID),
		PayerID:    strings.TrimSpace(payerID),
		Items:      items,
		Shipping:   shipping,
		Status:     OrderStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	order.UpdatedAt = order.CreatedAt

	if err := order.RecalculateTotal(); err != nil {
		return Order{}, err
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		return Order{}, errs[0]
	}
	return order, nil
}

// RecalculateTotal пересчитывает сумму заказа как сумму субтоталов позиций.
func (o *Order) RecalculateTotal() error {
	if len(o.Items) == 0 {
		return ErrItemsRequired
	}

	total := o.Items[0].Subtotal()
	for _, item := range o.Items[1:] {
		sum, err := total.Add(item.Subtotal())
		if err != nil {
			return err
		}
		total = sum
	}
	o.Total = total
	return nil
}

// SetStatus переводит заказ в новый статус и обновляет служебные отметки времени.
// Сам переход не ограничен (кроме отмены через Cancel): консистентность порядка
// переходов обеспечивается потоком событий саги, а не этим методом.
func (o *Order) SetStatus(next OrderStatus) {
	now := time.Now().UTC()
	o.Status = next
	o.UpdatedAt = now

	switch next {
	case OrderStatusDelivered:
		o.CompletedAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	}
}

// CanBeCancelled сообщает, допускает ли текущий статус отмену заказа.
func (o *Order) CanBeCancelled() bool {
	switch o.Status {
	case OrderStatusPending, OrderStatusPaymentReceived, OrderStatusProcessing:
		return true
	default:
		return false
	}
}

// Cancel переводит заказ в статус cancelled с указанием причины.
// Для нетерминальных статусов после отгрузки и терминальных статусов — отказ без мутаций.
func (o *Order) Cancel(reason string) error {
	if !o.CanBeCancelled() {
		return ErrOrderNotCancellable
	}
	o.SetStatus(OrderStatusCancelled)
	o.CancelReason = reason
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.CheckoutID == "" {
		errs = append(errs, ErrCheckoutIDRequired)
	}
	if o.PayerID == "" {
		errs = append(errs, ErrPayerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
		return errs
	}

	// Сверяем сумму заказа с суммой позиций: qty * price.
	calc := o.Items[0].Subtotal()
	for i, item := range o.Items {
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if i == 0 {
			continue
		}
		sum, err := calc.Add(item.Subtotal())
		if err != nil {
			errs = append(errs, err)
			return errs
		}
		calc = sum
	}
	if !calc.Equal(o.Total) {
		errs = append(errs, ErrAmountMismatch)
	}

	return errs
}
