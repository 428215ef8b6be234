package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SmartTrader/internal/domain/models"
)

const namespace = "smarttrader"

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	decisions     *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	fallbacks     *prometheus.CounterVec
	confidence    *prometheus.GaugeVec
	tradeEvents   *prometheus.CounterVec
	equity        *prometheus.GaugeVec
	balance       *prometheus.GaugeVec
	messagesSent  *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
	latency       *prometheus.HistogramVec
	lastCycle     *prometheus.GaugeVec
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total",
			Help: "Decision cycles by outcome",
		}, []string{"symbol", "outcome"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds",
			Help:    "Wall time of one decision cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"symbol"}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "decisions_total",
			Help: "Engine decisions by action",
		}, []string{"symbol", "action"}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_requests_total",
			Help: "Market data provider calls by result",
		}, []string{"provider", "kind", "result"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "provider_fallbacks_total",
			Help: "Gateway responses served by a non-primary provider",
		}, []string{"kind"}),
		confidence: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "data_confidence",
			Help: "Confidence of the last gateway response",
		}, []string{"kind"}),
		tradeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trade_events_total",
			Help: "Simulated trade events",
		}, []string{"symbol", "event", "reason"}),
		equity: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "account_equity",
			Help: "Marked-to-market account equity",
		}, []string{"symbol"}),
		balance: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "account_balance",
			Help: "Account cash balance",
		}, []string{"symbol"}),
		messagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Records delivered to sinks",
		}, []string{"backend", "kind"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "errors_total",
			Help: "Errors by kind",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_price",
			Help: "Last observed price",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		lastCycle: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_cycle_timestamp_seconds",
			Help: "Unix time of the last completed cycle",
		}, []string{"symbol"}),
	}
}

func (r *Recorder) RecordCycle(symbol, outcome string, seconds float64) {
	r.cycles.WithLabelValues(symbol, outcome).Inc()
	r.cycleDuration.WithLabelValues(symbol).Observe(seconds)
	r.lastCycle.WithLabelValues(symbol).Set(float64(time.Now().Unix()))
}

func (r *Recorder) RecordDecision(symbol string, action models.Action) {
	r.decisions.WithLabelValues(symbol, string(action)).Inc()
}

func (r *Recorder) RecordProviderResult(provider, kind string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	r.providerCalls.WithLabelValues(provider, kind, result).Inc()
}

// RecordFallback tracks the confidence of every gateway response and counts
// those that needed a fallback provider.
func (r *Recorder) RecordFallback(kind string, confidence float64) {
	r.confidence.WithLabelValues(kind).Set(confidence)
	if confidence < 1 {
		r.fallbacks.WithLabelValues(kind).Inc()
	}
}

func (r *Recorder) RecordTradeEvent(symbol string, eventType models.EventType, reason string) {
	r.tradeEvents.WithLabelValues(symbol, string(eventType), reason).Inc()
}

func (r *Recorder) RecordEquity(symbol string, equity, balance float64) {
	r.equity.WithLabelValues(symbol).Set(equity)
	r.balance.WithLabelValues(symbol).Set(balance)
}

// RecordMessageSent records a record delivered to a backend.
func (r *Recorder) RecordMessageSent(backend, kind string) {
	r.messagesSent.WithLabelValues(backend, kind).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
