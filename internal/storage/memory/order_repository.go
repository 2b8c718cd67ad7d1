package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// OrderRepository — потокобезопасное хранилище заказов в памяти.
// Используется в разработке и тестах; семантика совпадает с Postgres
// реализацией: uniqueness по checkout_id и optimistic locking по версии.
type OrderRepository struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCheckout map[string]string
}

var _ domain.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository создаёт пустое in-memory хранилище заказов.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:     make(map[string]domain.Order),
		byCheckout: make(map[string]string),
	}
}

// Create сохраняет новый заказ с версией 1.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCheckout[order.CheckoutID]; exists {
		return domain.ErrCheckoutAlreadyProcessed
	}

	order.Version = 1
	r.orders[order.ID] = cloneOrder(order)
	r.byCheckout[order.CheckoutID] = order.ID
	return nil
}

// Get возвращает заказ по идентификатору.
func (r *OrderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetWithItems возвращает заказ вместе с позициями.
// В памяти позиции всегда хранятся вместе с заказом.
func (r *OrderRepository) GetWithItems(ctx context.Context, id string) (domain.Order, error) {
	return r.Get(ctx, id)
}

// FindByCheckoutID возвращает заказ, созданный из указанного чекаута.
func (r *OrderRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCheckout[checkoutID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(r.orders[id]), nil
}

// ListByPayer возвращает заказы покупателя, новые первыми.
func (r *OrderRepository) ListByPayer(ctx context.Context, payerID string, limit int) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Order
	for _, order := range r.orders {
		if order.PayerID == payerID {
			result = append(result, cloneOrder(order))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save сохраняет заказ, сверяя версию вызывающего с хранимой.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if stored.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}

	order.Version++
	r.orders[order.ID] = cloneOrder(order)
	return nil
}

// cloneOrder копирует заказ вместе со слайсом позиций, чтобы мутации
// вызывающего не затрагивали хранимое состояние.
func cloneOrder(order domain.Order) domain.Order {
	clone := order
	if order.Items != nil {
		clone.Items = make([]domain.OrderItem, len(order.Items))
		copy(clone.Items, order.Items)
	}
	if order.CompletedAt != nil {
		completedAt := *order.CompletedAt
		clone.CompletedAt = &completedAt
	}
	if order.CancelledAt != nil {
		cancelledAt := *order.CancelledAt
		clone.CancelledAt = &cancelledAt
	}
	return clone
}
