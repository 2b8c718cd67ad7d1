package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/storage/memory"
)

func newOrder(t *testing.T, id, checkoutID string) domain.Order {
	t.Helper()

	price, err := domain.NewMoney(decimal.RequireFromString("10.00"), "USD")
	if err != nil {
		t.Fatalf("new money: %v", err)
	}
	order, err := domain.NewOrder(id, checkoutID, "payer-1", []domain.OrderItem{
		{ID: "item-1", ProductID: "prod-1", ProductName: "widget", Price: price, Qty: 2},
	}, domain.Address{City: "Ankara", Country: "TR"})
	if err != nil {
		t.Fatalf("new order: %v", err)
	}
	return order
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder(t, "order-1", "checkout-1")

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID {
		t.Fatalf("expected id %s, got %s", order.ID, stored.ID)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
}

func TestOrderRepository_DuplicateCheckout(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	if err := repo.Create(ctx, newOrder(t, "order-1", "checkout-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Второй заказ из того же чекаута отклоняется независимо от id.
	err := repo.Create(ctx, newOrder(t, "order-2", "checkout-1"))
	if !errors.Is(err, domain.ErrCheckoutAlreadyProcessed) {
		t.Fatalf("expected ErrCheckoutAlreadyProcessed, got %v", err)
	}

	found, err := repo.FindByCheckoutID(ctx, "checkout-1")
	if err != nil {
		t.Fatalf("find by checkout failed: %v", err)
	}
	if found.ID != "order-1" {
		t.Fatalf("expected original order, got %s", found.ID)
	}
}

func TestOrderRepository_SaveVersionConflict(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	if err := repo.Create(ctx, newOrder(t, "order-1", "checkout-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	second, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}

	first.SetStatus(domain.OrderStatusPaymentReceived)
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	// Второй писатель работает с устаревшей версией.
	second.SetStatus(domain.OrderStatusFailed)
	if err := repo.Save(ctx, second); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	stored, err := repo.Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != domain.OrderStatusPaymentReceived {
		t.Fatalf("expected payment_received, got %s", stored.Status)
	}
}

func TestOrderRepository_ListByPayer(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()

	if err := repo.Create(ctx, newOrder(t, "order-1", "checkout-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := repo.Create(ctx, newOrder(t, "order-2", "checkout-2")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := repo.ListByPayer(ctx, "payer-1", 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 1 {
		t.Fatalf("expected 1 order with limit, got %d", len(orders))
	}

	orders, err = repo.ListByPayer(ctx, "payer-1", 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}
}

func TestOrderRepository_GetMissing(t *testing.T) {
	repo := memory.NewOrderRepository()

	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
