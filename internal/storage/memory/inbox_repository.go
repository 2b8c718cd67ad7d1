package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// InboxRepository хранит идентификаторы обработанных событий в памяти.
type InboxRepository struct {
	mu        sync.Mutex
	processed map[string]time.Time
}

var _ domain.InboxRepository = (*InboxRepository)(nil)

// NewInboxRepository создаёт пустой in-memory inbox.
func NewInboxRepository() *InboxRepository {
	return &InboxRepository{
		processed: make(map[string]time.Time),
	}
}

// MarkProcessed фиксирует событие как обработанное до момента ttlAt.
func (r *InboxRepository) MarkProcessed(ctx context.Context, eventID string, ttlAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if eventID == "" {
		return domain.ErrEventIDRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.processed[eventID]; exists {
		return domain.ErrEventAlreadyProcessed
	}
	r.processed[eventID] = ttlAt
	return nil
}

// Seen сообщает, было ли событие уже обработано.
func (r *InboxRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.processed[eventID]
	return exists, nil
}

// DeleteExpired удаляет записи с истёкшим TTL, не более limit за вызов.
func (r *InboxRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	deleted := 0
	for eventID, ttlAt := range r.processed {
		if limit > 0 && deleted >= limit {
			break
		}
		if ttlAt.Before(before) {
			delete(r.processed, eventID)
			deleted++
		}
	}
	return deleted, nil
}
