// Package strategy holds the four healing strategies:
// TestID Recovery, Text Matching, CSS Hierarchy, and LLM Analysis. Each
// proposes candidate selectors from a different signal and validates them
// against the live page through the driver before returning success.
package strategy

import (
	"context"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
)

// Name identifies a strategy in configuration and dispatch.
const (
	NameTestIDRecovery = domain.StrategyTestIDRecovery
	NameTextMatch      = domain.StrategyTextMatch
	NameCSSHierarchy   = domain.StrategyCSSHierarchy
	NameLLMAnalysis    = domain.StrategyLLMAnalysis
)

// Strategy proposes and validates healed selectors for one broken
// selector. Implementations never raise for an unrecognized selector
// shape or an empty page; they return a well-formed failing HealingResult
// via domain.AppError instead.
type Strategy interface {
	// Name returns the strategy's dispatch-configuration tag.
	Name() string

	// Heal attempts to recover broken using d, returning a successful
	// HealingResult with a validated selector, or a failure result whose
	// Error explains why (NoSignal, NoCandidate, StrategyException, ...).
	Heal(ctx context.Context, d driver.Driver, broken domain.Selector, opts domain.HealOptions) domain.HealingResult

	// Available reports whether the strategy can currently run at all
	// (used by Healer.healthCheck). Only LLM Analysis can report false.
	Available(ctx context.Context) bool
}

// clampConfidence clamps c to [0, 1].
func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// validate probes candidates against d in order and returns the first one
// that resolves to at least one element, or ok=false if none do.
func validate(ctx context.Context, d driver.Driver, candidates []domain.Candidate) (domain.Candidate, bool) {
	for _, c := range candidates {
		count, err := d.Probe(ctx, string(c.Selector))
		if err != nil {
			continue // driver error during validation: treated as absent
		}
		if count >= 1 {
			return c, true
		}
	}
	return domain.Candidate{}, false
}

func failure(strategyName string, err *domain.AppError) domain.HealingResult {
	return domain.HealingResult{
		Success:  false,
		Strategy: strategyName,
		Error:    err,
	}
}

func success(strategyName string, original domain.Selector, c domain.Candidate) domain.HealingResult {
	return domain.HealingResult{
		Success:    true,
		Selector:   c.Selector,
		Original:   original,
		Strategy:   strategyName,
		Confidence: clampConfidence(c.Confidence),
		Metadata:   map[string]any{"reason": c.Reason},
	}
}
