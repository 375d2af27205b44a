package healer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectorheal/selectorheal/internal/config"
	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/drivertest"
)

func noSleep(ctx context.Context, d time.Duration) {}

func newTestHealer(cfg domain.Config, d *drivertest.Fake) *Healer {
	return New(cfg, d, nil, WithSleeper(noSleep))
}

func TestHeal_Disabled(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Enabled = false
	h := newTestHealer(cfg, &drivertest.Fake{})

	result := h.Heal(context.Background(), "#old", domain.HealOptions{})

	assert.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeDisabled, result.Error.Code)
}

func TestHeal_OriginalSelectorAlreadyPresent(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "button", Visible: true, Selectors: []string{"#submit"}},
	}}
	h := newTestHealer(domain.DefaultConfig(), d)

	result := h.Heal(context.Background(), "#submit", domain.HealOptions{})

	require.True(t, result.Success)
	assert.Equal(t, domain.Selector("#submit"), result.Selector)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, true, result.Metadata["noHealingNeeded"])

	stats := h.GetFlakinessStats()
	require.Empty(t, stats, "a self-resolving selector never fails, so it carries no flakiness score")

	var entry domain.FlakinessEntry
	var found bool
	for _, e := range h.store.FlakinessStats() {
		if e.Selector == "#submit" {
			entry, found = e, true
		}
	}
	require.True(t, found, "RecordHeal should have created a flakiness entry for the self-resolved selector")
	assert.Equal(t, 1, entry.HealCount)
	assert.Equal(t, 0, entry.FailureCount)
}

func TestHeal_TestIDRecoveryScenario(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "button", TestID: "submit-btn-old", Visible: true, Selectors: []string{`[data-cy="submit-btn-old"]`}},
	}}
	h := newTestHealer(domain.DefaultConfig(), d)

	result := h.Heal(context.Background(), `[data-testid="submit-btn-old"]`, domain.HealOptions{})

	require.True(t, result.Success)
	assert.Equal(t, domain.Selector(`[data-cy="submit-btn-old"]`), result.Selector)
	assert.Equal(t, "testIdRecovery", result.Strategy)
	assert.InDelta(t, 0.95, result.Confidence, 0.001)
}

func TestHeal_CacheHit_SkipsStrategiesAndReportsCached(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "button", TestID: "submit-btn-old", Visible: true, Selectors: []string{`[data-cy="submit-btn-old"]`}},
	}}
	h := newTestHealer(domain.DefaultConfig(), d)

	first := h.Heal(context.Background(), `[data-testid="submit-btn-old"]`, domain.HealOptions{})
	require.True(t, first.Success)

	second := h.Heal(context.Background(), `[data-testid="submit-btn-old"]`, domain.HealOptions{})
	require.True(t, second.Success)
	assert.Equal(t, second.Selector, first.Selector)
	assert.Equal(t, true, second.Metadata["cached"])
}

func TestHeal_CacheEntryEvictedWhenStale(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "button", TestID: "submit-btn-old", Visible: true, Selectors: []string{`[data-cy="submit-btn-old"]`}},
	}}
	h := newTestHealer(domain.DefaultConfig(), d)

	first := h.Heal(context.Background(), `[data-testid="submit-btn-old"]`, domain.HealOptions{})
	require.True(t, first.Success)
	assert.Equal(t, 1, h.store.Size())

	// The healed element disappears from the page entirely.
	d.Elements = nil

	second := h.Heal(context.Background(), `[data-testid="submit-btn-old"]`, domain.HealOptions{})
	assert.False(t, second.Success)
	assert.Equal(t, 0, h.store.Size())
}

func TestHeal_NoStrategiesConfigured(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Strategies = nil
	cfg.Enabled = true
	h := newTestHealer(cfg, &drivertest.Fake{})

	result := h.Heal(context.Background(), "#old", domain.HealOptions{})

	require.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeNoStrategies, result.Error.Code)
}

func TestHeal_EmptyPage_AllStrategiesFailWithoutPanic(t *testing.T) {
	h := newTestHealer(domain.DefaultConfig(), &drivertest.Fake{})

	result := h.Heal(context.Background(), "#old", domain.HealOptions{})

	assert.False(t, result.Success)
	assert.NotNil(t, result.Error)
}

func TestHeal_MaxAttemptsOne_IteratesStrategiesExactlyOnce(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.MaxAttempts = 1
	h := newTestHealer(cfg, &drivertest.Fake{})

	result := h.Heal(context.Background(), "#old", domain.HealOptions{})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.AttemptCount)
}

func TestClearCache(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "button", TestID: "submit-btn-old", Visible: true, Selectors: []string{`[data-cy="submit-btn-old"]`}},
	}}
	h := newTestHealer(domain.DefaultConfig(), d)

	h.Heal(context.Background(), `[data-testid="submit-btn-old"]`, domain.HealOptions{})
	require.Equal(t, 1, h.store.Size())

	h.ClearCache()
	assert.Equal(t, 0, h.store.Size())
}

func TestHealthCheck_DegradedWhenLLMBackendMissing(t *testing.T) {
	h := newTestHealer(domain.DefaultConfig(), &drivertest.Fake{})
	status := h.HealthCheck(context.Background())

	// LLM Analysis has no backend wired (nil), so it reports unavailable.
	assert.Equal(t, "degraded", status.Status)
	assert.True(t, status.Strategies["testIdRecovery"])
	assert.False(t, status.Strategies["llmAnalysis"])
}

func TestHealthCheck_OfflineWhenNoStrategyAvailable(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Strategies = []string{domain.StrategyLLMAnalysis}
	h := newTestHealer(cfg, &drivertest.Fake{})

	status := h.HealthCheck(context.Background())
	assert.Equal(t, "offline", status.Status)
}

func TestGetFlakinessStats_SortedDescendingByScore(t *testing.T) {
	h := newTestHealer(domain.DefaultConfig(), &drivertest.Fake{})

	h.store.RecordFailure("#a", time.Now())
	h.store.RecordFailure("#a", time.Now())
	h.store.RecordHeal("#a")

	h.store.RecordFailure("#b", time.Now())
	h.store.RecordFailure("#b", time.Now())
	h.store.RecordFailure("#b", time.Now())

	stats := h.GetFlakinessStats()
	require.Len(t, stats, 2)
	assert.Equal(t, domain.Selector("#b"), stats[0].Selector) // score 1.0 > #a's 2/3
}

func TestUpdateConfig_RebuildsStrategies(t *testing.T) {
	h := newTestHealer(domain.DefaultConfig(), &drivertest.Fake{})

	err := h.UpdateConfig(config.WithStrategies(domain.StrategyCSSHierarchy))
	require.NoError(t, err)
	assert.Len(t, h.strategies, 1)
	assert.Equal(t, "cssHierarchy", h.strategies[0].Name())
}

func TestUpdateConfig_RejectsInvalidMerge(t *testing.T) {
	h := newTestHealer(domain.DefaultConfig(), &drivertest.Fake{})

	err := h.UpdateConfig(config.WithMaxAttempts(0))
	require.Error(t, err)
	assert.Len(t, h.strategies, 4) // unchanged
}
