package inbox

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

const (
	defaultCleanupInterval = 1 * time.Hour
	defaultBatchSize       = 1000
)

var (
	cleanupRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_inbox_cleanup_runs_total",
		Help: "Total number of processed-events cleanup runs",
	})
	cleanupDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_inbox_cleanup_deleted_total",
		Help: "Total number of expired processed-event records deleted",
	})
	cleanupErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fulfillment_inbox_cleanup_errors_total",
		Help: "Total number of failed processed-events cleanup runs",
	})
)

// CleanupWorker периодически удаляет просроченные отметки об обработанных
// событиях. Без него дедупликация consumer-ов растёт неограниченно: записи
// нужны лишь на горизонте повторных доставок.
type CleanupWorker struct {
	inbox     domain.InboxRepository
	interval  time.Duration
	batchSize int
	logger    *log.Entry
}

// Option настраивает CleanupWorker.
type Option func(*CleanupWorker)

// WithInterval задаёт период между запусками очистки.
func WithInterval(interval time.Duration) Option {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize задаёт максимум удаляемых записей за один запуск.
func WithBatchSize(size int) Option {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// NewCleanupWorker создаёт воркер очистки inbox-а.
func NewCleanupWorker(inbox domain.InboxRepository, opts ...Option) *CleanupWorker {
	worker := &CleanupWorker{
		inbox:     inbox,
		interval:  defaultCleanupInterval,
		batchSize: defaultBatchSize,
		logger:    log.WithField("component", "inbox-cleanup"),
	}
	for _, opt := range opts {
		opt(worker)
	}
	return worker
}

// Run запускает цикл очистки до отмены контекста.
func (w *CleanupWorker) Run(ctx context.Context) {
	w.logger.WithField("interval", w.interval).Info("inbox cleanup worker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("inbox cleanup worker stopped")
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

func (w *CleanupWorker) cleanup(ctx context.Context) {
	cleanupRuns.Inc()

	deleted, err := w.inbox.DeleteExpired(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		cleanupErrors.Inc()
		w.logger.WithError(err).Error("processed events cleanup failed")
		return
	}

	if deleted > 0 {
		cleanupDeleted.Add(float64(deleted))
		w.logger.WithField("deleted", deleted).Info("expired processed events removed")
	}
}
