package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ с версией 1 независимо от версии в
	// аргументе; копия вызывающего после вставки устаревает, перед Save
	// заказ нужно перечитать. Возвращает ErrCheckoutAlreadyProcessed,
	// если заказ с таким checkout_id уже существует, — это защита от
	// повторной доставки одного и того же события чекаута.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ без позиций или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// GetWithItems возвращает заказ вместе с позициями или ErrOrderNotFound.
	GetWithItems(ctx context.Context, id string) (Order, error)
	// FindByCheckoutID возвращает заказ, созданный из указанного чекаута.
	FindByCheckoutID(ctx context.Context, checkoutID string) (Order, error)
	// ListByPayer возвращает заказы покупателя, новые первыми; limit>0 ограничивает выборку.
	ListByPayer(ctx context.Context, payerID string, limit int) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
}

// PaymentRepository описывает требования к хранилищу платежей.
type PaymentRepository interface {
	// Add сохраняет новый платёж с версией 1 независимо от версии в
	// аргументе; копия вызывающего после вставки устаревает, и перед Save
	// её версию нужно привести к 1. Возвращает ErrPaymentExists, если
	// платёж для этого order_id уже есть: уникальность (order_id) — опора
	// идемпотентности обработчика оплат.
	Add(ctx context.Context, payment Payment) error
	// Get возвращает платёж по идентификатору или ErrPaymentNotFound.
	Get(ctx context.Context, id string) (Payment, error)
	// GetByOrderID возвращает платёж заказа или ErrPaymentNotFound.
	GetByOrderID(ctx context.Context, orderID string) (Payment, error)
	// ListByPayer возвращает платежи покупателя, новые первыми.
	ListByPayer(ctx context.Context, payerID string) ([]Payment, error)
	// Save применяет обновления к платежу с учётом optimistic locking.
	Save(ctx context.Context, payment Payment) error
}
