package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// TimelineRepository хранит историю статусов заказов в памяти.
type TimelineRepository struct {
	mu     sync.RWMutex
	events map[string][]domain.TimelineEvent
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)

// NewTimelineRepository создаёт пустое in-memory хранилище timeline.
func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{
		events: make(map[string][]domain.TimelineEvent),
	}
}

// Append добавляет событие в историю заказа.
func (r *TimelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[event.OrderID] = append(r.events[event.OrderID], event)
	return nil
}

// List возвращает историю заказа в порядке добавления.
func (r *TimelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.events[orderID]
	result := make([]domain.TimelineEvent, len(stored))
	copy(result, stored)
	return result, nil
}
