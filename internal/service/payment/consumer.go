package payment

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// HandleMessage — транспортный адаптер обработчика оплат: парсит команду
// из сообщения и отображает исход Process на решение по сообщению.
func (h *Handler) HandleMessage(ctx context.Context, message *sarama.ConsumerMessage) kafka.Result {
	cmd, err := kafka.ParseProcessPayment(message)
	if err != nil {
		h.logger.WithError(err).Warn("malformed payment command")
		return h.record(kafka.Reject)
	}

	if _, err := h.Process(ctx, Command{
		OrderID:  cmd.OrderID,
		PayerID:  cmd.PayerID,
		Amount:   cmd.TotalAmount,
		Currency: cmd.Currency,
	}); err != nil {
		if domain.IsValidation(err) {
			h.logger.WithError(err).WithField("order_id", cmd.OrderID).Warn("payment command rejected")
			return h.record(kafka.Reject)
		}
		h.logger.WithError(err).WithFields(log.Fields{
			"order_id": cmd.OrderID,
		}).Warn("payment command failed, will be redelivered")
		return h.record(kafka.Retry)
	}

	return h.record(kafka.Ack)
}

func (h *Handler) record(result kafka.Result) kafka.Result {
	if h.metrics != nil {
		h.metrics.RecordConsumerResult("payment", result.String())
	}
	return result
}
