package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
)

var (
	_ domrepo.Metrics = (*Recorder)(nil)
	_ domrepo.Metrics = Nop{}
)

func TestRecorderCounters(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordDecision("BTCTMN", models.ActionBuy)
	r.RecordDecision("BTCTMN", models.ActionBuy)
	r.RecordFallback("candles", 1.0)
	r.RecordFallback("candles", 0.8)
	r.RecordEquity("BTCTMN", 101, 99)
	r.RecordProviderResult("wallex", "candles", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("BTCTMN", "BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.fallbacks.WithLabelValues("candles")))
	assert.Equal(t, 0.8, testutil.ToFloat64(r.confidence.WithLabelValues("candles")))
	assert.Equal(t, 101.0, testutil.ToFloat64(r.equity.WithLabelValues("BTCTMN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerCalls.WithLabelValues("wallex", "candles", "error")))
}
