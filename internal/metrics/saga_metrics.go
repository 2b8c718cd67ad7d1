package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics содержит метрики хореографической саги оформления заказа.
type SagaMetrics struct {
	// Счётчики по шагам саги
	ordersCreated        prometheus.Counter
	duplicateCheckouts   prometheus.Counter
	paymentsSucceeded    prometheus.Counter
	paymentsFailed       prometheus.Counter
	duplicatePaymentHits prometheus.Counter
	ordersCancelled      prometheus.Counter
	ordersCompleted      prometheus.Counter
	statusTransitions    *prometheus.CounterVec

	// Решения обработчиков по сообщениям
	consumerResults *prometheus.CounterVec

	// Гистограмма обращений к платёжному провайдеру
	gatewayDuration prometheus.Histogram
}

// NewSagaMetrics создаёт метрики саги в default registry.
func NewSagaMetrics() *SagaMetrics {
	return newSagaMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newSagaMetricsWithRegisterer(registerer prometheus.Registerer) *SagaMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &SagaMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_created_total",
			Help: "Total number of orders created from checkout events",
		}),
		duplicateCheckouts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_duplicate_checkouts_total",
			Help: "Total number of redelivered checkout events matched to an existing order",
		}),
		paymentsSucceeded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_payments_succeeded_total",
			Help: "Total number of payments confirmed by the gateway",
		}),
		paymentsFailed: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_payments_failed_total",
			Help: "Total number of payments declined by the gateway",
		}),
		duplicatePaymentHits: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_duplicate_payment_hits_total",
			Help: "Total number of payment commands short-circuited by the existing-payment guard",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersCompleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "fulfillment_orders_completed_total",
			Help: "Total number of orders delivered",
		}),
		statusTransitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_order_status_transitions_total",
			Help: "Total number of order status transitions grouped by target status",
		}, []string{"status"}),
		consumerResults: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "fulfillment_consumer_results_total",
			Help: "Total number of handler decisions grouped by consumer and result",
		}, []string{"consumer", "result"}),
		gatewayDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "fulfillment_gateway_charge_duration_seconds",
			Help:    "Duration of payment gateway charge calls in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *SagaMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordDuplicateCheckout увеличивает счётчик повторно доставленных чекаутов.
func (m *SagaMetrics) RecordDuplicateCheckout() {
	m.duplicateCheckouts.Inc()
}

// RecordPaymentSucceeded увеличивает счётчик успешных платежей.
func (m *SagaMetrics) RecordPaymentSucceeded() {
	m.paymentsSucceeded.Inc()
}

// RecordPaymentFailed увеличивает счётчик отклонённых платежей.
func (m *SagaMetrics) RecordPaymentFailed() {
	m.paymentsFailed.Inc()
}

// RecordDuplicatePaymentHit увеличивает счётчик срабатываний guard-а идемпотентности.
func (m *SagaMetrics) RecordDuplicatePaymentHit() {
	m.duplicatePaymentHits.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *SagaMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordOrderCompleted увеличивает счётчик доставленных заказов.
func (m *SagaMetrics) RecordOrderCompleted() {
	m.ordersCompleted.Inc()
}

// RecordStatusTransition учитывает переход заказа в новый статус.
func (m *SagaMetrics) RecordStatusTransition(status string) {
	m.statusTransitions.WithLabelValues(status).Inc()
}

// RecordConsumerResult учитывает решение обработчика по сообщению.
func (m *SagaMetrics) RecordConsumerResult(consumer, result string) {
	m.consumerResults.WithLabelValues(consumer, result).Inc()
}

// RecordGatewayDuration записывает длительность обращения к провайдеру.
func (m *SagaMetrics) RecordGatewayDuration(duration time.Duration) {
	m.gatewayDuration.Observe(duration.Seconds())
}
