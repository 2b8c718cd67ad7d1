package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type inboxRepository struct {
	db *sql.DB
}

// NewInboxRepository создаёт PostgreSQL-реализацию InboxRepository.
func NewInboxRepository(store *Store) domain.InboxRepository {
	return &inboxRepository{db: store.DB()}
}

func (r *inboxRepository) MarkProcessed(ctx context.Context, eventID string, ttlAt time.Time) error {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return domain.ErrEventIDRequired
	}
	if ttlAt.IsZero() {
		ttlAt = time.Now().UTC().Add(24 * time.Hour)
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO processed_events (event_id, ttl_at, processed_at)
		VALUES ($1,$2,NOW())
	`, eventID, ttlAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrEventAlreadyProcessed
		}
		return fmt.Errorf("mark event processed: %w", err)
	}
	return nil
}

func (r *inboxRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return false, domain.ErrEventIDRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var found string
	err := r.db.QueryRowContext(ctx, `
		SELECT event_id FROM processed_events WHERE event_id = $1
	`, eventID).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check event processed: %w", err)
}

func (r *inboxRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM processed_events
			WHERE event_id IN (
				SELECT event_id
				FROM processed_events
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		res, err = r.db.ExecContext(ctx, `
			DELETE FROM processed_events
			WHERE ttl_at <= $1
		`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired processed events: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("processed events rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.InboxRepository = (*inboxRepository)(nil)
