package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectorheal/selectorheal/internal/domain"
)

func noSleep(ctx context.Context, d time.Duration) {}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errorClass
	}{
		{"timeout", errors.New("waiting for selector exceeded"), classTimeout},
		{"network", errors.New("connect: ECONNREFUSED"), classNetwork},
		{"flakiness", errors.New("element is not visible"), classFlakiness},
		{"locator", errors.New("element not found for selector '#old'"), classLocator},
		{"other", errors.New("boom"), classOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.err))
		})
	}
}

func TestHandler_WithRetry_SucceedsWithoutRetry(t *testing.T) {
	h := New(Policy{MaxRetries: 2, OnTimeout: true}, noSleep)
	calls := 0
	err := h.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestHandler_WithRetry_RetriesRetryableClass(t *testing.T) {
	h := New(Policy{MaxRetries: 2, OnTimeout: true}, noSleep)
	calls := 0
	err := h.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("timeout waiting for element")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHandler_WithRetry_StopsOnNonRetryableClass(t *testing.T) {
	h := New(Policy{MaxRetries: 2, OnTimeout: true}, noSleep)
	calls := 0
	err := h.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestHandler_WithRetry_ExhaustsRetries(t *testing.T) {
	h := New(Policy{MaxRetries: 1, OnTimeout: true}, noSleep)
	calls := 0
	err := h.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestHandler_WithRetry_NetworkAlwaysRetries(t *testing.T) {
	h := New(Policy{MaxRetries: 1}, noSleep)
	calls := 0
	err := h.WithRetry(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestPolicy_BackoffFor_DoublesAndCaps(t *testing.T) {
	p := Policy{InitialBackoffMs: 1000, MaxBackoffMs: 10000}
	assert.Equal(t, 1*time.Second, p.backoffFor(0))
	assert.Equal(t, 2*time.Second, p.backoffFor(1))
	assert.Equal(t, 4*time.Second, p.backoffFor(2))
	assert.Equal(t, 8*time.Second, p.backoffFor(3))
	assert.Equal(t, 10*time.Second, p.backoffFor(4))
}

type fakeHealer struct {
	result domain.HealingResult
	calls  int
}

func (f *fakeHealer) Heal(ctx context.Context, original domain.Selector, opts domain.HealOptions) domain.HealingResult {
	f.calls++
	return f.result
}

func TestHandler_ExecuteWithHealing_HealsLocatorFailureAndReplays(t *testing.T) {
	h := New(Policy{MaxRetries: 2, OnTimeout: true}, noSleep)
	healer := &fakeHealer{result: domain.HealingResult{Success: true, Selector: "#healed"}}

	var seen []domain.Selector
	err := h.ExecuteWithHealing(context.Background(), healer, "#old", domain.HealOptions{}, func(ctx context.Context, sel domain.Selector) error {
		seen = append(seen, sel)
		if sel == "#old" {
			return errors.New("element not found for selector '#old'")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, healer.calls)
	assert.Equal(t, []domain.Selector{"#old", "#healed"}, seen)
}

func TestHandler_ExecuteWithHealing_HealingFailureFallsBackToRetryPolicy(t *testing.T) {
	h := New(Policy{MaxRetries: 1, OnTimeout: true}, noSleep)
	healer := &fakeHealer{result: domain.HealingResult{Success: false}}

	calls := 0
	err := h.ExecuteWithHealing(context.Background(), healer, "#old", domain.HealOptions{}, func(ctx context.Context, sel domain.Selector) error {
		calls++
		return errors.New("element not found for selector '#old'")
	})

	require.Error(t, err)
	assert.Equal(t, 1, healer.calls)
	assert.Equal(t, 1, calls)
}

func TestHandler_ExecuteWithHealing_NonLocatorErrorNeverCallsHealer(t *testing.T) {
	h := New(Policy{MaxRetries: 1, OnTimeout: true}, noSleep)
	healer := &fakeHealer{}

	err := h.ExecuteWithHealing(context.Background(), healer, "#old", domain.HealOptions{}, func(ctx context.Context, sel domain.Selector) error {
		return errors.New("timeout exceeded")
	})

	require.Error(t, err)
	assert.Equal(t, 0, healer.calls)
}
