package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Status — агрегированное состояние сервиса или компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckFunc проверяет один компонент; nil означает, что компонент здоров.
type CheckFunc func() error

type checkResult struct {
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

type response struct {
	Status        Status                 `json:"status"`
	Timestamp     time.Time              `json:"timestamp"`
	Checks        map[string]checkResult `json:"checks,omitempty"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
}

// Handler агрегирует проверки компонентов в один HTTP endpoint.
type Handler struct {
	mu        sync.RWMutex
	checks    map[string]CheckFunc
	version   string
	startTime time.Time
}

// NewHandler создаёт health handler с указанной версией сборки.
func NewHandler(version string) *Handler {
	return &Handler{
		checks:    make(map[string]CheckFunc),
		version:   version,
		startTime: time.Now(),
	}
}

// RegisterCheck регистрирует проверку компонента под именем name.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// ServeHTTP выполняет все проверки и возвращает их результат.
// Любая неуспешная проверка переводит ответ в 503.
func (h *Handler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	results, overall := h.runChecks()

	resp := response{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        results,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}

	statusCode := http.StatusOK
	if overall == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// ReadinessHandler — readiness probe: 200, пока все проверки проходят.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, _ *http.Request) {
	if _, overall := h.runChecks(); overall == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// LivenessHandler — liveness probe, всегда 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) runChecks() (map[string]checkResult, Status) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	for name, check := range h.checks {
		checks[name] = check
	}
	h.mu.RUnlock()

	results := make(map[string]checkResult, len(checks))
	overall := StatusHealthy

	for name, check := range checks {
		start := time.Now()
		err := check()
		result := checkResult{
			Status:     StatusHealthy,
			DurationMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			overall = StatusUnhealthy
		}
		results[name] = result
	}

	return results, overall
}
