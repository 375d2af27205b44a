package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAllCollectors(t *testing.T) {
	m := NewMetrics("test_new_metrics")
	require.NotNil(t, m)
	assert.NotNil(t, m.HealingAttemptsTotal)
	assert.NotNil(t, m.HealingDuration)
	assert.NotNil(t, m.StrategyOutcomesTotal)
	assert.NotNil(t, m.StrategyConfidence)
	assert.NotNil(t, m.CacheHitsTotal)
	assert.NotNil(t, m.CacheMissesTotal)
	assert.NotNil(t, m.CacheSize)
	assert.NotNil(t, m.FlakinessScore)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMRequestDuration)
	assert.NotNil(t, m.LLMCircuitState)
	assert.NotNil(t, m.RetriesTotal)
}

func TestRecordHealing(t *testing.T) {
	m := NewMetrics("test_record_healing")

	m.RecordHealing("success", 50*time.Millisecond)
	m.RecordHealing("failure", 10*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HealingAttemptsTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HealingAttemptsTotal.WithLabelValues("failure")))
}

func TestRecordStrategyOutcome(t *testing.T) {
	m := NewMetrics("test_record_strategy_outcome")

	m.RecordStrategyOutcome("testIdRecovery", "healed", 0.9)
	m.RecordStrategyOutcome("testIdRecovery", "no_signal", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.StrategyOutcomesTotal.WithLabelValues("testIdRecovery", "healed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StrategyOutcomesTotal.WithLabelValues("testIdRecovery", "no_signal")))
}

func TestRecordCacheLookup(t *testing.T) {
	m := NewMetrics("test_record_cache_lookup")

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheMissesTotal))
}

func TestRecordLLMRequest(t *testing.T) {
	m := NewMetrics("test_record_llm_request")

	m.RecordLLMRequest("ok", 200*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("ok")))
}

func TestRecordRetry(t *testing.T) {
	m := NewMetrics("test_record_retry")

	m.RecordRetry("timeout")
	m.RecordRetry("timeout")
	m.RecordRetry("flakiness")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RetriesTotal.WithLabelValues("timeout")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RetriesTotal.WithLabelValues("flakiness")))
}

func TestMetrics_Handler_ServesPrometheusFormat(t *testing.T) {
	m := NewMetrics("test_handler")
	m.RecordRetry("timeout")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()

	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_handler_retries_total")
}

func TestGetMetrics_InitializesOnce(t *testing.T) {
	globalMetrics = nil
	m1 := GetMetrics()
	m2 := GetMetrics()
	assert.Same(t, m1, m2)
}
