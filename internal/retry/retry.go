// Package retry implements the Retry Handler: a generic
// withRetry loop with exponential backoff and error-class-aware retry
// decisions, plus executeWithHealing, which delegates locator-class
// failures to a Healer before spending a retry.
package retry

import (
	"context"
	"strings"
	"time"

	"github.com/selectorheal/selectorheal/internal/domain"
)

// errorClass is the outcome of classifying an action's error by
// case-insensitive substring match on its message.
type errorClass int

const (
	classOther errorClass = iota
	classTimeout
	classNetwork
	classFlakiness
	classLocator
)

var timeoutSubstrings = []string{"timeout", "timed out", "waiting for selector", "waiting for element", "exceeded timeout"}
var networkSubstrings = []string{"net::err", "network error", "connection refused", "econnrefused", "socket hang up"}
var flakinessSubstrings = []string{"not visible", "not attached", "not stable", "intercepts pointer events", "not actionable"}
var locatorSubstrings = []string{"locator", "selector", "element not found", "no element matches", "could not find"}

func classify(err error) errorClass {
	if err == nil {
		return classOther
	}
	msg := strings.ToLower(err.Error())

	if containsAny(msg, timeoutSubstrings) {
		return classTimeout
	}
	if containsAny(msg, networkSubstrings) {
		return classNetwork
	}
	if containsAny(msg, flakinessSubstrings) {
		return classFlakiness
	}
	if containsAny(msg, locatorSubstrings) {
		return classLocator
	}
	return classOther
}

func containsAny(msg string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Policy controls which error classes are retried and the backoff shape.
type Policy struct {
	OnTimeout        bool
	OnFlakiness      bool
	MaxRetries       int
	InitialBackoffMs int
	MaxBackoffMs     int // default 10000 if zero
}

// PolicyFromConfig adapts a domain.RetryConfig into a Policy.
func PolicyFromConfig(cfg domain.RetryConfig) Policy {
	return Policy{
		OnTimeout:        cfg.OnTimeout,
		OnFlakiness:      cfg.OnFlakiness,
		MaxRetries:       cfg.MaxRetries,
		InitialBackoffMs: cfg.InitialBackoffMs,
	}
}

func (p Policy) retryable(class errorClass) bool {
	switch class {
	case classTimeout:
		return p.OnTimeout
	case classNetwork:
		return true
	case classFlakiness:
		return p.OnFlakiness
	default:
		return false
	}
}

func (p Policy) maxBackoff() time.Duration {
	if p.MaxBackoffMs <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.MaxBackoffMs) * time.Millisecond
}

func (p Policy) backoffFor(attempt int) time.Duration {
	initial := p.InitialBackoffMs
	if initial <= 0 {
		initial = 1000
	}
	backoff := time.Duration(initial) * time.Millisecond
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= p.maxBackoff() {
			return p.maxBackoff()
		}
	}
	return backoff
}

// Action is one attempt of caller work; it should return the action's own
// error verbatim (not wrapped) so classification sees the driver's message.
type Action func(ctx context.Context) error

// Sleeper abstracts the backoff wait so tests can skip real time.
type Sleeper func(ctx context.Context, d time.Duration)

// RealSleeper sleeps for d or until ctx is cancelled.
func RealSleeper(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Handler runs actions under a retry policy, optionally healing locator
// failures before retrying.
type Handler struct {
	policy  Policy
	sleeper Sleeper
}

// New constructs a Handler. A nil sleeper defaults to RealSleeper.
func New(policy Policy, sleeper Sleeper) *Handler {
	if sleeper == nil {
		sleeper = RealSleeper
	}
	return &Handler{policy: policy, sleeper: sleeper}
}

// WithRetry runs action, classifying and retrying on failure per policy,
// up to MaxRetries additional attempts with doubling backoff.
func (h *Handler) WithRetry(ctx context.Context, action Action) error {
	var lastErr error
	for attempt := 0; attempt <= h.policy.MaxRetries; attempt++ {
		lastErr = action(ctx)
		if lastErr == nil {
			return nil
		}

		class := classify(lastErr)
		if !h.policy.retryable(class) || attempt == h.policy.MaxRetries {
			return lastErr
		}

		h.sleeper(ctx, h.policy.backoffFor(attempt))
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

// Healer is the subset of Healer the Retry Handler needs: the ability to
// heal one broken selector and report a selector to replace it.
type Healer interface {
	Heal(ctx context.Context, original domain.Selector, opts domain.HealOptions) domain.HealingResult
}

// SelectorAction is caller work parameterized by the selector currently in
// use, so executeWithHealing can replay it with a healed selector.
type SelectorAction func(ctx context.Context, selector domain.Selector) error

// ExecuteWithHealing runs action against selector under the retry policy.
// On a locator-class failure it first asks healer to heal selector; if
// healing succeeds, action is replayed immediately against the healed
// selector without consuming a retry attempt. Non-locator failures fall
// back to the plain WithRetry behavior.
func (h *Handler) ExecuteWithHealing(ctx context.Context, healer Healer, selector domain.Selector, opts domain.HealOptions, action SelectorAction) error {
	current := selector
	var lastErr error

	for attempt := 0; attempt <= h.policy.MaxRetries; attempt++ {
		lastErr = action(ctx, current)
		if lastErr == nil {
			return nil
		}

		class := classify(lastErr)
		if class == classLocator && healer != nil {
			result := healer.Heal(ctx, current, opts)
			if result.Success {
				current = result.Selector
				replayErr := action(ctx, current)
				if replayErr == nil {
					return nil
				}
				lastErr = replayErr
				class = classify(lastErr)
			}
		}

		if !h.policy.retryable(class) || attempt == h.policy.MaxRetries {
			return lastErr
		}

		h.sleeper(ctx, h.policy.backoffFor(attempt))
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}
