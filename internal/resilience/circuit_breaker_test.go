package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// ollamaUnreachable stands in for the error the llmclient sees when the
// local Ollama process is down or still loading a model.
var ollamaUnreachable = errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := NewCircuitBreaker(DefaultOllamaCircuitBreakerConfig("llmclient"))

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_TripsAfterThreeConsecutiveOllamaFailures(t *testing.T) {
	cb := NewCircuitBreaker(DefaultOllamaCircuitBreakerConfig("llmclient"))

	generate := func() (interface{}, error) {
		return nil, ollamaUnreachable
	}

	for i := 0; i < 3; i++ {
		cb.Execute(generate)
	}

	if cb.State() != StateOpen {
		t.Errorf("state after 3 consecutive failures = %v, want Open", cb.State())
	}
}

func TestCircuitBreaker_ToleratesIntermittentSuccessBelowThreshold(t *testing.T) {
	cb := NewCircuitBreaker(DefaultOllamaCircuitBreakerConfig("llmclient"))

	cb.Execute(func() (interface{}, error) { return nil, ollamaUnreachable })
	cb.Execute(func() (interface{}, error) { return "healed selector", nil })
	cb.Execute(func() (interface{}, error) { return nil, ollamaUnreachable })

	if cb.State() != StateClosed {
		t.Errorf("state after interleaved success = %v, want Closed (consecutive count should have reset)", cb.State())
	}
}

func TestCircuitBreaker_RejectsHealRequestsWhileOpen(t *testing.T) {
	config := CircuitBreakerConfig{
		Name:        "llmclient",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}
	cb := NewCircuitBreaker(config)

	cb.Execute(func() (interface{}, error) {
		return nil, ollamaUnreachable
	})

	_, err := cb.Execute(func() (interface{}, error) {
		return "this call should never reach Ollama", nil
	})

	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreaker_ProbesOllamaAgainAfterTimeout(t *testing.T) {
	config := CircuitBreakerConfig{
		Name:        "llmclient",
		MaxRequests: 1,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}
	cb := NewCircuitBreaker(config)

	cb.Execute(func() (interface{}, error) {
		return nil, ollamaUnreachable
	})

	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want Open", cb.State())
	}

	time.Sleep(100 * time.Millisecond)

	if cb.State() != StateHalfOpen {
		t.Errorf("state after timeout = %v, want HalfOpen (time to re-probe Ollama)", cb.State())
	}
}

func TestCircuitBreaker_ClosesOnceOllamaRespondsAgain(t *testing.T) {
	config := CircuitBreakerConfig{
		Name:        "llmclient",
		MaxRequests: 1,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}
	cb := NewCircuitBreaker(config)

	cb.Execute(func() (interface{}, error) {
		return nil, ollamaUnreachable
	})

	time.Sleep(100 * time.Millisecond)

	result, err := cb.Execute(func() (interface{}, error) {
		return "healed selector", nil
	})

	if err != nil {
		t.Fatalf("probe request error = %v", err)
	}
	if result != "healed selector" {
		t.Errorf("result = %v, want healed selector", result)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after successful probe = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_ReOpensWhenProbeStillFails(t *testing.T) {
	config := CircuitBreakerConfig{
		Name:        "llmclient",
		MaxRequests: 1,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}
	cb := NewCircuitBreaker(config)

	cb.Execute(func() (interface{}, error) {
		return nil, ollamaUnreachable
	})

	time.Sleep(100 * time.Millisecond)

	cb.Execute(func() (interface{}, error) {
		return nil, ollamaUnreachable
	})

	if cb.State() != StateOpen {
		t.Errorf("state after failed probe = %v, want Open", cb.State())
	}
}

func TestCircuitBreaker_ExecuteWithContext_CancelledBeforeOllamaCall(t *testing.T) {
	cb := NewCircuitBreaker(DefaultOllamaCircuitBreakerConfig("llmclient"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.ExecuteWithContext(ctx, func(ctx context.Context) (interface{}, error) {
		return "should not reach Ollama", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCircuitBreaker_ConcurrentHealsAllSucceedWhenOllamaIsHealthy(t *testing.T) {
	config := DefaultOllamaCircuitBreakerConfig("llmclient")
	config.ReadyToTrip = func(counts Counts) bool {
		return counts.TotalFailures >= 50
	}
	cb := NewCircuitBreaker(config)

	var wg sync.WaitGroup
	successes := 0
	var mu sync.Mutex

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cb.Execute(func() (interface{}, error) {
				return "healed selector", nil
			})
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if successes != 100 {
		t.Errorf("successes = %d, want 100", successes)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_Counts(t *testing.T) {
	cb := NewCircuitBreaker(DefaultOllamaCircuitBreakerConfig("llmclient"))

	for i := 0; i < 5; i++ {
		cb.Execute(func() (interface{}, error) {
			return "healed selector", nil
		})
	}

	counts := cb.Counts()
	if counts.TotalSuccesses != 5 {
		t.Errorf("TotalSuccesses = %d, want 5", counts.TotalSuccesses)
	}
	if counts.Requests != 5 {
		t.Errorf("Requests = %d, want 5", counts.Requests)
	}

	for i := 0; i < 2; i++ {
		cb.Execute(func() (interface{}, error) {
			return nil, ollamaUnreachable
		})
	}

	counts = cb.Counts()
	if counts.TotalFailures != 2 {
		t.Errorf("TotalFailures = %d, want 2", counts.TotalFailures)
	}
	if counts.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures = %d, want 2", counts.ConsecutiveFailures)
	}
}

func TestCircuitBreaker_OnStateChangeFiresForEachTransition(t *testing.T) {
	var changes []struct {
		from, to CircuitBreakerState
	}

	config := CircuitBreakerConfig{
		Name:        "llmclient",
		MaxRequests: 1,
		Timeout:     50 * time.Millisecond,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		OnStateChange: func(name string, from, to CircuitBreakerState) {
			changes = append(changes, struct{ from, to CircuitBreakerState }{from, to})
		},
	}
	cb := NewCircuitBreaker(config)

	cb.Execute(func() (interface{}, error) {
		return nil, ollamaUnreachable
	})

	time.Sleep(100 * time.Millisecond)
	cb.State() // force the open -> half-open transition to evaluate

	cb.Execute(func() (interface{}, error) {
		return "healed selector", nil
	})

	if len(changes) < 2 {
		t.Fatalf("expected at least 2 state changes, got %d", len(changes))
	}

	if changes[0].from != StateClosed || changes[0].to != StateOpen {
		t.Errorf("first change = %v->%v, want Closed->Open", changes[0].from, changes[0].to)
	}
}

func TestCircuitBreakerState_String(t *testing.T) {
	tests := []struct {
		state CircuitBreakerState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half-open"},
		{CircuitBreakerState(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
