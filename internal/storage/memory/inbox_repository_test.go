package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func TestInboxRepository_MarkAndSeen(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInboxRepository()
	ttl := time.Now().UTC().Add(time.Hour)

	seen, err := repo.Seen(ctx, "event-1")
	if err != nil {
		t.Fatalf("seen failed: %v", err)
	}
	if seen {
		t.Fatal("expected event-1 to be unseen")
	}

	if err := repo.MarkProcessed(ctx, "event-1", ttl); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	seen, err = repo.Seen(ctx, "event-1")
	if err != nil {
		t.Fatalf("seen failed: %v", err)
	}
	if !seen {
		t.Fatal("expected event-1 to be seen")
	}

	if err := repo.MarkProcessed(ctx, "event-1", ttl); !errors.Is(err, domain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	if err := repo.MarkProcessed(ctx, "", ttl); !errors.Is(err, domain.ErrEventIDRequired) {
		t.Fatalf("expected ErrEventIDRequired, got %v", err)
	}
}

func TestInboxRepository_DeleteExpired(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInboxRepository()
	now := time.Now().UTC()

	if err := repo.MarkProcessed(ctx, "expired-1", now.Add(-time.Hour)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkProcessed(ctx, "expired-2", now.Add(-time.Minute)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkProcessed(ctx, "fresh", now.Add(time.Hour)); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	deleted, err := repo.DeleteExpired(ctx, now, 0)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	seen, err := repo.Seen(ctx, "fresh")
	if err != nil {
		t.Fatalf("seen failed: %v", err)
	}
	if !seen {
		t.Fatal("expected fresh record to survive cleanup")
	}
}

func TestInboxRepository_DeleteExpiredLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewInboxRepository()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.MarkProcessed(ctx, id, now.Add(-time.Hour)); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
	}

	deleted, err := repo.DeleteExpired(ctx, now, 2)
	if err != nil {
		t.Fatalf("delete expired failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted with limit, got %d", deleted)
	}
}
