package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type paymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository создаёт PostgreSQL-реализацию PaymentRepository.
func NewPaymentRepository(store *Store) domain.PaymentRepository {
	return &paymentRepository{db: store.DB()}
}

const paymentColumns = `
	id, order_id, payer_id, amount, currency, status,
	transaction_id, failure_reason, version, created_at, updated_at, processed_at
`

func (r *paymentRepository) Add(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		payment.ID, payment.OrderID, payment.PayerID,
		payment.Amount.Amount, payment.Amount.Currency, string(payment.Status),
		nullString(payment.TransactionID), payment.FailureReason,
		1, payment.CreatedAt, payment.UpdatedAt, payment.ProcessedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// UNIQUE (order_id): второй платёж по заказу невозможен.
			return domain.ErrPaymentExists
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.selectPayment(ctx, `WHERE id = $1`, id)
}

func (r *paymentRepository) GetByOrderID(ctx context.Context, orderID string) (domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.selectPayment(ctx, `WHERE order_id = $1`, orderID)
}

func (r *paymentRepository) ListByPayer(ctx context.Context, payerID string) ([]domain.Payment, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE payer_id = $1
		ORDER BY created_at DESC, id DESC
	`, payerID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]domain.Payment, 0)
	for rows.Next() {
		payment, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, nil
}

func (r *paymentRepository) Save(ctx context.Context, payment domain.Payment) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
		    transaction_id = $2,
		    failure_reason = $3,
		    version = version + 1,
		    updated_at = $4,
		    processed_at = $5
		WHERE id = $6
		  AND version = $7
	`,
		string(payment.Status), nullString(payment.TransactionID), payment.FailureReason,
		payment.UpdatedAt, payment.ProcessedAt,
		payment.ID, payment.Version,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		var id string
		err := r.db.QueryRowContext(ctx, `SELECT id FROM payments WHERE id = $1`, payment.ID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrPaymentNotFound
		}
		if err != nil {
			return fmt.Errorf("check payment exists: %w", err)
		}
		return domain.ErrPaymentVersionConflict
	}
	return nil
}

func (r *paymentRepository) selectPayment(ctx context.Context, where string, arg any) (domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments `+where, arg)
	payment, err := scanPayment(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, domain.ErrPaymentNotFound
		}
		return domain.Payment{}, err
	}
	return payment, nil
}

func scanPayment(scan func(...any) error) (domain.Payment, error) {
	var (
		payment       domain.Payment
		status        string
		amount        decimal.Decimal
		currency      string
		transactionID sql.NullString
	)

	if err := scan(
		&payment.ID, &payment.OrderID, &payment.PayerID,
		&amount, &currency, &status,
		&transactionID, &payment.FailureReason,
		&payment.Version, &payment.CreatedAt, &payment.UpdatedAt, &payment.ProcessedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Payment{}, err
		}
		return domain.Payment{}, fmt.Errorf("scan payment row: %w", err)
	}

	parsed, err := domain.ParsePaymentStatus(status)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("payment %s: %w", payment.ID, err)
	}
	payment.Status = parsed
	payment.Amount = domain.Money{Amount: amount, Currency: currency}
	payment.TransactionID = transactionID.String
	return payment, nil
}

var _ domain.PaymentRepository = (*paymentRepository)(nil)
