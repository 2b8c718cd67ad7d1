package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB()}
}

const orderColumns = `
	id, checkout_id, payer_id, status, total_amount, currency, notes,
	payment_id, payment_method, cancel_reason,
	street, city, state, zip, country,
	version, created_at, updated_at, completed_at, cancelled_at
`

func (r *orderRepository) Create(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	`,
		order.ID, order.CheckoutID, order.PayerID, string(order.Status),
		order.Total.Amount, order.Total.Currency, order.Notes,
		nullString(order.PaymentID), nullString(order.PaymentMethod), order.CancelReason,
		order.Shipping.Street, order.Shipping.City, order.Shipping.State,
		order.Shipping.Zip, order.Shipping.Country,
		1, order.CreatedAt, order.UpdatedAt, order.CompletedAt, order.CancelledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Уникальность checkout_id: повторная доставка чекаута.
			return domain.ErrCheckoutAlreadyProcessed
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range order.Items {
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, price, currency, qty)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			item.ID, order.ID, item.ProductID, item.ProductName,
			item.Price.Amount, item.Price.Currency, item.Qty,
		); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.selectOrder(ctx, `WHERE id = $1`, id)
}

func (r *orderRepository) GetWithItems(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := r.selectOrder(ctx, `WHERE id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}

	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Items = items
	return order, nil
}

func (r *orderRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.selectOrder(ctx, `WHERE checkout_id = $1`, checkoutID)
}

func (r *orderRepository) ListByPayer(ctx context.Context, payerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE payer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", payerID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, payerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) (err error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    total_amount = $2,
		    currency = $3,
		    notes = $4,
		    payment_id = $5,
		    payment_method = $6,
		    cancel_reason = $7,
		    version = version + 1,
		    updated_at = $8,
		    completed_at = $9,
		    cancelled_at = $10
		WHERE id = $11
		  AND version = $12
	`,
		string(order.Status), order.Total.Amount, order.Total.Currency,
		order.Notes, nullString(order.PaymentID), nullString(order.PaymentMethod),
		order.CancelReason, order.UpdatedAt, order.CompletedAt, order.CancelledAt,
		order.ID, order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExistsTx(ctx, tx, `SELECT id FROM orders WHERE id = $1`, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save order: %w", err)
	}
	return nil
}

func (r *orderRepository) selectOrder(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders `+where, arg)
	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}
	return order, nil
}

func scanOrder(scan func(...any) error) (domain.Order, error) {
	var (
		order         domain.Order
		status        string
		totalAmount   decimal.Decimal
		currency      string
		paymentID     sql.NullString
		paymentMethod sql.NullString
	)

	if err := scan(
		&order.ID, &order.CheckoutID, &order.PayerID, &status,
		&totalAmount, &currency, &order.Notes,
		&paymentID, &paymentMethod, &order.CancelReason,
		&order.Shipping.Street, &order.Shipping.City, &order.Shipping.State,
		&order.Shipping.Zip, &order.Shipping.Country,
		&order.Version, &order.CreatedAt, &order.UpdatedAt,
		&order.CompletedAt, &order.CancelledAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	parsed, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order %s: %w", order.ID, err)
	}
	order.Status = parsed
	order.Total = domain.Money{Amount: totalAmount, Currency: currency}
	order.PaymentID = paymentID.String
	order.PaymentMethod = paymentMethod.String
	return order, nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, price, currency, qty
		FROM order_items
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item     domain.OrderItem
			price    decimal.Decimal
			currency string
		)
		if err := rows.Scan(&item.ID, &item.ProductID, &item.ProductName, &price, &currency, &item.Qty); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		item.Price = domain.Money{Amount: price, Currency: currency}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func rowExistsTx(ctx context.Context, tx *sql.Tx, query string, arg any) (bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, query, arg).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check row exists: %w", err)
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
