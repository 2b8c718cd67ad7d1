package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
)

func TestRetryCount(t *testing.T) {
	message := &sarama.ConsumerMessage{}
	if got := RetryCount(message); got != 0 {
		t.Fatalf("expected 0 for message without headers, got %d", got)
	}

	message.Headers = []*sarama.RecordHeader{
		{Key: []byte("x-other"), Value: []byte("abc")},
		{Key: []byte(HeaderRetryCount), Value: []byte("2")},
	}
	if got := RetryCount(message); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}

	// Нечитаемый счётчик трактуется как первая попытка.
	message.Headers = []*sarama.RecordHeader{
		{Key: []byte(HeaderRetryCount), Value: []byte("oops")},
	}
	if got := RetryCount(message); got != 0 {
		t.Fatalf("expected 0 for malformed counter, got %d", got)
	}
}

func TestNotBefore(t *testing.T) {
	message := &sarama.ConsumerMessage{}
	if got := NotBefore(message); !got.IsZero() {
		t.Fatalf("expected zero time for message without headers, got %v", got)
	}

	due := time.Now().UTC().Add(5 * time.Second).Truncate(time.Second)
	message.Headers = []*sarama.RecordHeader{
		{Key: []byte(HeaderNotBefore), Value: []byte(due.Format(time.RFC3339))},
	}
	if got := NotBefore(message); !got.Equal(due) {
		t.Fatalf("expected %v, got %v", due, got)
	}

	// Нечитаемый срок не задерживает обработку.
	message.Headers = []*sarama.RecordHeader{
		{Key: []byte(HeaderNotBefore), Value: []byte("not-a-timestamp")},
	}
	if got := NotBefore(message); !got.IsZero() {
		t.Fatalf("expected zero time for malformed deadline, got %v", got)
	}
}

func TestParsePaymentOutcome_TypeChecked(t *testing.T) {
	failed, err := json.Marshal(PaymentFailedEvent{
		EventID:   "event-1",
		EventType: EventTypePaymentFailed,
		OrderID:   "order-1",
		Reason:    "declined",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	message := &sarama.ConsumerMessage{Value: failed}

	// Событие об отказе не должно разбираться как успех.
	if _, err := ParsePaymentSucceeded(message); err == nil {
		t.Fatal("expected type mismatch error")
	}

	event, err := ParsePaymentFailed(message)
	if err != nil {
		t.Fatalf("parse failed event: %v", err)
	}
	if event.Reason != "declined" {
		t.Fatalf("unexpected reason: %s", event.Reason)
	}
}

func TestPeekEventType(t *testing.T) {
	message := &sarama.ConsumerMessage{Value: []byte(`{"event_type":"payment.succeeded"}`)}

	eventType, err := PeekEventType(message)
	if err != nil {
		t.Fatalf("peek failed: %v", err)
	}
	if eventType != EventTypePaymentSucceeded {
		t.Fatalf("expected payment.succeeded, got %s", eventType)
	}

	if _, err := PeekEventType(&sarama.ConsumerMessage{Value: []byte("{")}); err == nil {
		t.Fatal("expected error for malformed envelope")
	}
}

func TestResultString(t *testing.T) {
	cases := map[Result]string{
		Ack:       "ack",
		Retry:     "retry",
		Reject:    "reject",
		Result(9): "result(9)",
	}
	for result, want := range cases {
		if got := result.String(); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
}
