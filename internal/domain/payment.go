package domain

import (
	"strings"
	"time"
)

// PaymentStatus описывает состояние платежа.
type PaymentStatus string

const (
	// PaymentStatusPending — платёж создан, обращение к провайдеру ещё не выполнено.
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusProcessing — запрос к платёжному провайдеру выполняется.
	PaymentStatusProcessing PaymentStatus = "processing"
	// PaymentStatusSucceeded — провайдер подтвердил списание.
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	// PaymentStatusFailed — провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusRefunded — средства возвращены после успешного платежа.
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// ParsePaymentStatus разбирает статус платежа из строки на границе транспорта.
func ParsePaymentStatus(raw string) (PaymentStatus, error) {
	switch PaymentStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case PaymentStatusPending:
		return PaymentStatusPending, nil
	case PaymentStatusProcessing:
		return PaymentStatusProcessing, nil
	case PaymentStatusSucceeded:
		return PaymentStatusSucceeded, nil
	case PaymentStatusFailed:
		return PaymentStatusFailed, nil
	case PaymentStatusRefunded:
		return PaymentStatusRefunded, nil
	default:
		return "", ErrUnknownPaymentStatus
	}
}

// Payment описывает единственную попытку оплаты заказа.
// На каждый order_id допускается не более одного платежа — уникальность
// закреплена ограничением в хранилище, а не глобальным состоянием процесса.
type Payment struct {
	ID            string
	OrderID       string
	PayerID       string
	Amount        Money
	Status        PaymentStatus
	TransactionID string
	FailureReason string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ProcessedAt   *time.Time
}

// NewPayment создаёт платёж в статусе pending, отклоняя пустые идентификаторы.
func NewPayment(id, orderID, payerID string, amount Money) (Payment, error) {
	orderID = strings.TrimSpace(orderID)
	payerID = strings.TrimSpace(payerID)

	if orderID == "" {
		return Payment{}, ErrOrderIDRequired
	}
	if payerID == "" {
		return Payment{}, ErrPayerRequired
	}

	now := time.Now().UTC()
	return Payment{
		ID:        id,
		OrderID:   orderID,
		PayerID:   payerID,
		Amount:    amount,
		Status:    PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MarkProcessing переводит платёж pending → processing.
// Переходы вне линейной последовательности — ошибка программирования,
// поэтому метод громко возвращает ErrPaymentInvalidTransition.
func (p *Payment) MarkProcessing() error {
	if p.Status != PaymentStatusPending {
		return ErrPaymentInvalidTransition
	}
	p.Status = PaymentStatusProcessing
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkSucceeded переводит платёж processing → succeeded и фиксирует транзакцию провайдера.
func (p *Payment) MarkSucceeded(transactionID string) error {
	if p.Status != PaymentStatusProcessing {
		return ErrPaymentInvalidTransition
	}
	now := time.Now().UTC()
	p.Status = PaymentStatusSucceeded
	p.TransactionID = transactionID
	p.ProcessedAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkFailed переводит платёж processing → failed с причиной отказа.
func (p *Payment) MarkFailed(reason string) error {
	if p.Status != PaymentStatusProcessing {
		return ErrPaymentInvalidTransition
	}
	now := time.Now().UTC()
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.ProcessedAt = &now
	p.UpdatedAt = now
	return nil
}

// MarkRefunded переводит платёж succeeded → refunded; единственный обратимый переход.
func (p *Payment) MarkRefunded() error {
	if p.Status != PaymentStatusSucceeded {
		return ErrPaymentInvalidTransition
	}
	p.Status = PaymentStatusRefunded
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// IsTerminal сообщает, достиг ли платёж конечного состояния.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}
