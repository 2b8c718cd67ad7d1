package domain_test

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

func makePayment(t *testing.T, status domain.PaymentStatus) domain.Payment {
	t.Helper()

	payment, err := domain.NewPayment("payment-1", "order-1", "payer-1", mustMoney(t, "25.50", "USD"))
	if err != nil {
		t.Fatalf("new payment: %v", err)
	}
	payment.Status = status
	return payment
}

func TestNewPayment_Validation(t *testing.T) {
	amount := mustMoney(t, "1.00", "USD")

	if _, err := domain.NewPayment("p", "", "payer-1", amount); !errors.Is(err, domain.ErrOrderIDRequired) {
		t.Fatalf("expected ErrOrderIDRequired, got %v", err)
	}
	if _, err := domain.NewPayment("p", "order-1", "  ", amount); !errors.Is(err, domain.ErrPayerRequired) {
		t.Fatalf("expected ErrPayerRequired, got %v", err)
	}

	payment, err := domain.NewPayment("p", "order-1", "payer-1", amount)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment.Status != domain.PaymentStatusPending {
		t.Fatalf("expected pending, got %s", payment.Status)
	}
}

// Линейная последовательность pending → processing → {succeeded|failed};
// единственный переход из терминального статуса — succeeded → refunded.
func TestPayment_Transitions(t *testing.T) {
	statuses := []domain.PaymentStatus{
		domain.PaymentStatusPending,
		domain.PaymentStatusProcessing,
		domain.PaymentStatusSucceeded,
		domain.PaymentStatusFailed,
		domain.PaymentStatusRefunded,
	}

	allowed := map[domain.PaymentStatus]map[string]bool{
		domain.PaymentStatusPending:    {"processing": true},
		domain.PaymentStatusProcessing: {"succeeded": true, "failed": true},
		domain.PaymentStatusSucceeded:  {"refunded": true},
	}

	transitions := []struct {
		name  string
		apply func(p *domain.Payment) error
	}{
		{"processing", func(p *domain.Payment) error { return p.MarkProcessing() }},
		{"succeeded", func(p *domain.Payment) error { return p.MarkSucceeded("tx-1") }},
		{"failed", func(p *domain.Payment) error { return p.MarkFailed("declined") }},
		{"refunded", func(p *domain.Payment) error { return p.MarkRefunded() }},
	}

	for _, from := range statuses {
		for _, tr := range transitions {
			t.Run(string(from)+"_to_"+tr.name, func(t *testing.T) {
				payment := makePayment(t, from)
				err := tr.apply(&payment)

				if allowed[from][tr.name] {
					if err != nil {
						t.Fatalf("expected transition to succeed, got %v", err)
					}
					return
				}

				if !errors.Is(err, domain.ErrPaymentInvalidTransition) {
					t.Fatalf("expected ErrPaymentInvalidTransition, got %v", err)
				}
				if payment.Status != from {
					t.Fatalf("status mutated on invalid transition: %s", payment.Status)
				}
			})
		}
	}
}

func TestPayment_MarkSucceededSetsTransaction(t *testing.T) {
	payment := makePayment(t, domain.PaymentStatusProcessing)

	if err := payment.MarkSucceeded("tx-42"); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if payment.TransactionID != "tx-42" {
		t.Fatalf("expected tx-42, got %s", payment.TransactionID)
	}
	if payment.ProcessedAt == nil {
		t.Fatal("expected processed_at to be set")
	}
	if !payment.IsTerminal() {
		t.Fatal("expected succeeded payment to be terminal")
	}
}

func TestPayment_MarkFailedKeepsReason(t *testing.T) {
	payment := makePayment(t, domain.PaymentStatusProcessing)

	if err := payment.MarkFailed("insufficient funds"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if payment.FailureReason != "insufficient funds" {
		t.Fatalf("unexpected reason: %s", payment.FailureReason)
	}
	if !payment.IsTerminal() {
		t.Fatal("expected failed payment to be terminal")
	}
}

func TestParsePaymentStatus(t *testing.T) {
	status, err := domain.ParsePaymentStatus("SUCCEEDED")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if status != domain.PaymentStatusSucceeded {
		t.Fatalf("expected succeeded, got %s", status)
	}

	if _, err := domain.ParsePaymentStatus("charged"); !errors.Is(err, domain.ErrUnknownPaymentStatus) {
		t.Fatalf("expected ErrUnknownPaymentStatus, got %v", err)
	}
}
