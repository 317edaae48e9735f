package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Исходы, которые используются в лейблах метрик
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	ArbitrationDecided  = "decided"
	ArbitrationAgreed   = "agreed"
	ArbitrationFallback = "fallback"

	RowClassified = "classified"
	RowInvalid    = "invalid"
	RowNotFound   = "not_found"
	RowFailed     = "failed"
)

// Metrics метрики конвейера классификации.
// Каждый экземпляр владеет собственным реестром, поэтому в тестах можно
// создавать сколько угодно экземпляров. Все методы безопасны для nil.
type Metrics struct {
	registry *prometheus.Registry

	RegistryLookups  *prometheus.CounterVec
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	Arbitrations     *prometheus.CounterVec
	Rows             *prometheus.CounterVec
	Classifications  *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
}

// New создает метрики и регистрирует их в новом реестре
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RegistryLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grupos_registry_lookups_total",
			Help: "Registry service requests by service and outcome",
		}, []string{"service", "outcome"}),
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "grupos_identity_cache_hits_total",
			Help: "Identifier cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "grupos_identity_cache_misses_total",
			Help: "Identifier cache misses",
		}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grupos_ai_provider_calls_total",
			Help: "AI provider calls by provider, model and outcome",
		}, []string{"provider", "model", "outcome"}),
		ProviderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grupos_ai_provider_call_duration_seconds",
			Help:    "AI provider call latency",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider"}),
		Arbitrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grupos_arbitrations_total",
			Help: "Arbitration outcomes (decided, agreed, fallback)",
		}, []string{"outcome"}),
		Rows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grupos_batch_rows_total",
			Help: "Processed rows by outcome",
		}, []string{"outcome"}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "grupos_classifications_total",
			Help: "Group assignments by producing method",
		}, []string{"method"}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "grupos_batch_duration_seconds",
			Help:    "Wall time of a whole batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// Registry возвращает реестр метрик
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler возвращает HTTP обработчик для /metrics
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// ObserveRegistryLookup учитывает запрос к сервису реестра
func (m *Metrics) ObserveRegistryLookup(service string, ok bool) {
	if m == nil {
		return
	}
	m.RegistryLookups.WithLabelValues(service, outcome(ok)).Inc()
}

// CacheHit учитывает попадание в кэш
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

// CacheMiss учитывает промах кэша
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

// ObserveProviderCall учитывает вызов AI провайдера.
// start - момент начала вызова.
func (m *Metrics) ObserveProviderCall(provider, model string, ok bool, start time.Time) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, model, outcome(ok)).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}

// ObserveArbitration учитывает исход арбитража
func (m *Metrics) ObserveArbitration(result string) {
	if m == nil {
		return
	}
	m.Arbitrations.WithLabelValues(result).Inc()
}

// ObserveRow учитывает обработанную строку
func (m *Metrics) ObserveRow(result string) {
	if m == nil {
		return
	}
	m.Rows.WithLabelValues(result).Inc()
}

// ObserveClassification учитывает метод, давший классификацию
func (m *Metrics) ObserveClassification(method string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(method).Inc()
}

// ObserveBatch учитывает длительность пакета
func (m *Metrics) ObserveBatch(start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(time.Since(start).Seconds())
}
