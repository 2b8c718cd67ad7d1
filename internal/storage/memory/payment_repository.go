package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// PaymentRepository — потокобезопасное хранилище платежей в памяти.
// Уникальность по order_id воспроизводит ограничение Postgres схемы.
type PaymentRepository struct {
	mu       sync.RWMutex
	payments map[string]domain.Payment
	byOrder  map[string]string
}

var _ domain.PaymentRepository = (*PaymentRepository)(nil)

// NewPaymentRepository создаёт пустое in-memory хранилище платежей.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[string]domain.Payment),
		byOrder:  make(map[string]string),
	}
}

// Add сохраняет новый платёж с версией 1.
func (r *PaymentRepository) Add(ctx context.Context, payment domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byOrder[payment.OrderID]; exists {
		return domain.ErrPaymentExists
	}

	payment.Version = 1
	r.payments[payment.ID] = clonePayment(payment)
	r.byOrder[payment.OrderID] = payment.ID
	return nil
}

// Get возвращает платёж по идентификатору.
func (r *PaymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Payment{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(payment), nil
}

// GetByOrderID возвращает платёж по идентификатору заказа.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	if err := ctx.Err(); err != nil {
		return domain.Payment{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return clonePayment(r.payments[id]), nil
}

// ListByPayer возвращает платежи покупателя, новые первыми.
func (r *PaymentRepository) ListByPayer(ctx context.Context, payerID string) ([]domain.Payment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Payment
	for _, payment := range r.payments {
		if payment.PayerID == payerID {
			result = append(result, clonePayment(payment))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// Save сохраняет платёж, сверяя версию вызывающего с хранимой.
func (r *PaymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.payments[payment.ID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if stored.Version != payment.Version {
		return domain.ErrPaymentVersionConflict
	}

	payment.Version++
	r.payments[payment.ID] = clonePayment(payment)
	return nil
}

func clonePayment(payment domain.Payment) domain.Payment {
	clone := payment
	if payment.ProcessedAt != nil {
		processedAt := *payment.ProcessedAt
		clone.ProcessedAt = &processedAt
	}
	return clone
}
