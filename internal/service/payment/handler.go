package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/fulfillment/internal/metrics"
)

// Command — запрос на списание средств по заказу.
type Command struct {
	OrderID  string
	PayerID  string
	Amount   decimal.Decimal
	Currency string
}

// Handler обрабатывает команды оплаты: на каждый заказ выполняется ровно
// одна попытка списания. Guard идемпотентности — существующий платёж по
// order_id: найден — возвращаем как есть, без обращения к провайдеру и без
// записей. Uniqueness (order_id) в хранилище закрывает гонку двух
// одновременных команд.
type Handler struct {
	payments  domain.PaymentRepository
	gateway   domain.PaymentGateway
	publisher domain.EventPublisher
	logger    *log.Entry
	metrics   *metrics.SagaMetrics
}

// NewHandler создаёт обработчик команд оплаты.
func NewHandler(
	payments domain.PaymentRepository,
	gateway domain.PaymentGateway,
	publisher domain.EventPublisher,
	logger *log.Entry,
	sagaMetrics *metrics.SagaMetrics,
) *Handler {
	if logger == nil {
		logger = log.WithField("component", "payment-handler")
	}
	return &Handler{
		payments:  payments,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		metrics:   sagaMetrics,
	}
}

// Process выполняет команду оплаты и возвращает платёж в его итоговом статусе.
//
// Ошибки валидации (отрицательная сумма, пустые идентификаторы) возвращаются
// до каких-либо записей и не подлежат повтору; транспортные сбои провайдера
// или хранилища возвращаются как есть и приводят к повторной доставке команды.
func (h *Handler) Process(ctx context.Context, cmd Command) (domain.Payment, error) {
	existing, err := h.payments.GetByOrderID(ctx, cmd.OrderID)
	if err == nil {
		// Платёж уже есть: ни обращения к провайдеру, ни новой записи.
		h.logger.WithFields(log.Fields{
			"order_id": cmd.OrderID,
			"status":   existing.Status,
		}).Info("payment already exists, skipping gateway call")
		if h.metrics != nil {
			h.metrics.RecordDuplicatePaymentHit()
		}
		return existing, nil
	}
	if !errors.Is(err, domain.ErrPaymentNotFound) {
		return domain.Payment{}, fmt.Errorf("lookup payment by order: %w", err)
	}

	// Валидация до первой записи: негодную команду нет смысла повторять.
	amount, err := domain.NewMoney(cmd.Amount, cmd.Currency)
	if err != nil {
		return domain.Payment{}, err
	}
	payment, err := domain.NewPayment(uuid.NewString(), cmd.OrderID, cmd.PayerID, amount)
	if err != nil {
		return domain.Payment{}, err
	}
	if err := payment.MarkProcessing(); err != nil {
		return domain.Payment{}, err
	}

	if err := h.payments.Add(ctx, payment); err != nil {
		if errors.Is(err, domain.ErrPaymentExists) {
			// Проиграли гонку параллельной команде: отдаём её результат.
			winner, lookupErr := h.payments.GetByOrderID(ctx, cmd.OrderID)
			if lookupErr != nil {
				return domain.Payment{}, fmt.Errorf("lookup winning payment: %w", lookupErr)
			}
			if h.metrics != nil {
				h.metrics.RecordDuplicatePaymentHit()
			}
			return winner, nil
		}
		return domain.Payment{}, fmt.Errorf("persist payment: %w", err)
	}
	// Вставка присваивает платежу версию 1; локальная копия должна её
	// догнать, иначе settle упрётся в конфликт версий.
	payment.Version = 1

	start := time.Now()
	result, err := h.gateway.Charge(ctx, payment.OrderID, payment.Amount, payment.PayerID)
	if h.metrics != nil {
		h.metrics.RecordGatewayDuration(time.Since(start))
	}
	if err != nil {
		// Транспортный сбой: платёж остаётся processing, команда будет
		// доставлена повторно и вернёт его через guard без второго списания.
		return domain.Payment{}, fmt.Errorf("gateway charge: %w", err)
	}

	if result.Succeeded {
		return h.settleSucceeded(ctx, payment, result.TransactionID)
	}
	return h.settleFailed(ctx, payment, result.FailureReason)
}

func (h *Handler) settleSucceeded(ctx context.Context, payment domain.Payment, transactionID string) (domain.Payment, error) {
	if err := payment.MarkSucceeded(transactionID); err != nil {
		return domain.Payment{}, err
	}
	if err := h.payments.Save(ctx, payment); err != nil {
		return domain.Payment{}, fmt.Errorf("persist succeeded payment: %w", err)
	}
	payment.Version++

	if err := h.publisher.Publish(ctx, kafka.TopicPaymentEvents, payment.OrderID, kafka.NewPaymentSucceeded(payment)); err != nil {
		return domain.Payment{}, fmt.Errorf("publish payment succeeded: %w", err)
	}

	if h.metrics != nil {
		h.metrics.RecordPaymentSucceeded()
	}
	h.logger.WithFields(log.Fields{
		"order_id":       payment.OrderID,
		"transaction_id": payment.TransactionID,
		"amount":         payment.Amount.String(),
	}).Info("payment succeeded")
	return payment, nil
}

func (h *Handler) settleFailed(ctx context.Context, payment domain.Payment, reason string) (domain.Payment, error) {
	if err := payment.MarkFailed(reason); err != nil {
		return domain.Payment{}, err
	}
	if err := h.payments.Save(ctx, payment); err != nil {
		return domain.Payment{}, fmt.Errorf("persist failed payment: %w", err)
	}
	payment.Version++

	if err := h.publisher.Publish(ctx, kafka.TopicPaymentEvents, payment.OrderID, kafka.NewPaymentFailed(payment)); err != nil {
		return domain.Payment{}, fmt.Errorf("publish payment failed: %w", err)
	}

	if h.metrics != nil {
		h.metrics.RecordPaymentFailed()
	}
	h.logger.WithFields(log.Fields{
		"order_id": payment.OrderID,
		"reason":   reason,
	}).Warn("payment declined")
	return payment, nil
}
