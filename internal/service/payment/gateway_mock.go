package payment

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// MockGateway — платёжный провайдер для разработки и тестов.
// Исход настраивается полями; по умолчанию каждое списание успешно.
type MockGateway struct {
	mu sync.Mutex

	// FailureReason, если непустой, превращает каждое списание в отказ.
	FailureReason string

	// Err, если задана, возвращается как транспортный сбой провайдера.
	Err error

	calls int
}

var _ domain.PaymentGateway = (*MockGateway)(nil)

// NewMockGateway создаёт провайдера, подтверждающего все списания.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// Charge имитирует списание средств согласно настройкам.
func (g *MockGateway) Charge(ctx context.Context, orderID string, amount domain.Money, payerID string) (domain.ChargeResult, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.ChargeResult{}, err
	}
	if g.Err != nil {
		return domain.ChargeResult{}, g.Err
	}
	if g.FailureReason != "" {
		return domain.ChargeResult{Succeeded: false, FailureReason: g.FailureReason}, nil
	}
	return domain.ChargeResult{Succeeded: true, TransactionID: uuid.NewString()}, nil
}

// Calls возвращает количество обращений к провайдеру.
func (g *MockGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}
