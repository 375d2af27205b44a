// Package healer implements the Healer, the engine's dispatcher. It holds
// the per-instance cache and flakiness tracker, invokes strategies in
// configured order, and is the sole owner of a Driver for its lifetime —
// callers must not share one Healer across parallel test workers.
package healer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/selectorheal/selectorheal/internal/cache"
	"github.com/selectorheal/selectorheal/internal/config"
	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
	"github.com/selectorheal/selectorheal/internal/observability"
	"github.com/selectorheal/selectorheal/internal/strategy"
)

// Clock abstracts the current time for deterministic tests.
type Clock func() time.Time

// Sleeper abstracts the linear inter-attempt backoff for deterministic tests.
type Sleeper func(ctx context.Context, d time.Duration)

func realSleeper(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Healer dispatches heal() calls against one Driver. It is not safe for
// concurrent use: one instance belongs to one test worker for its
// lifetime.
type Healer struct {
	mu sync.Mutex

	driver     driver.Driver
	config     domain.Config
	llmBackend strategy.LLMBackend
	strategies []strategy.Strategy
	store      *cache.Store
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      Clock
	sleeper    Sleeper
}

// Option configures optional Healer dependencies at construction.
type Option func(*Healer)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Healer) { h.logger = logger }
}

// WithMetrics attaches a Metrics recorder.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Healer) { h.metrics = m }
}

// WithClock overrides the time source (tests only).
func WithClock(clock Clock) Option {
	return func(h *Healer) { h.clock = clock }
}

// WithSleeper overrides the inter-attempt backoff sleeper (tests only).
func WithSleeper(sleeper Sleeper) Option {
	return func(h *Healer) { h.sleeper = sleeper }
}

// New constructs a Healer bound to d, with cfg as its initial
// configuration. llmBackend may be nil, in which case LLM Analysis always
// reports unavailable.
func New(cfg domain.Config, d driver.Driver, llmBackend strategy.LLMBackend, opts ...Option) *Healer {
	h := &Healer{
		driver:     d,
		config:     cfg,
		llmBackend: llmBackend,
		store:      cache.New(),
		logger:     zap.NewNop(),
		clock:      time.Now,
		sleeper:    realSleeper,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.strategies = buildStrategies(cfg, llmBackend)
	return h
}

// buildStrategies instantiates the configured strategies in order,
// dropping unrecognized names and duplicates, preserving the first
// occurrence's position for any name listed more than once.
func buildStrategies(cfg domain.Config, llmBackend strategy.LLMBackend) []strategy.Strategy {
	seen := make(map[string]bool, len(cfg.Strategies))
	out := make([]strategy.Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		if seen[name] {
			continue
		}
		s := newStrategy(name, llmBackend)
		if s == nil {
			continue
		}
		seen[name] = true
		out = append(out, s)
	}
	return out
}

func newStrategy(name string, llmBackend strategy.LLMBackend) strategy.Strategy {
	switch name {
	case strategy.NameTestIDRecovery:
		return strategy.NewTestIDRecovery()
	case strategy.NameTextMatch:
		return strategy.NewTextMatch()
	case strategy.NameCSSHierarchy:
		return strategy.NewCSSHierarchy()
	case strategy.NameLLMAnalysis:
		return strategy.NewLLMAnalysis(llmBackend)
	default:
		return nil
	}
}

// Heal attempts to recover broken in six steps:
//
//  1. If healing is disabled, it fails with ErrDisabled.
//  2. On a cache hit it probes the cached healed selector: if present the
//     cached result is returned with metadata "cached"; if absent the entry
//     is evicted.
//  3. It probes broken itself; if present it returns success with
//     confidence 1.0 and metadata "noHealingNeeded". Caveat: this happens
//     even when the caller expected broken to be absent.
//  4. With no strategies configured, it records a failure and fails with
//     ErrNoStrategies.
//  5. It runs the configured strategies in order for up to MaxAttempts
//     rounds, sleeping 1s×round between rounds; the first success is
//     cached (when CacheHealing is on) and returned.
//  6. Otherwise it records a failure and returns the last failing result.
func (h *Healer) Heal(ctx context.Context, broken domain.Selector, opts domain.HealOptions) domain.HealingResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	start := h.clock()
	requestID := uuid.New().String()
	h.logger.Debug("heal requested", zap.String("request_id", requestID), zap.String("selector", string(broken)))

	if !h.config.Enabled {
		return h.finish(requestID, domain.HealingResult{
			Success:  false,
			Original: broken,
			Error:    domain.ErrDisabled(),
		}, start)
	}

	if h.config.CacheHealing {
		if entry, ok := h.store.Lookup(broken); ok {
			now := h.clock()
			count, err := h.driver.Probe(ctx, string(entry.Healed))
			if err == nil && count >= 1 {
				h.store.RecordHit(broken, now)
				if h.metrics != nil {
					h.metrics.RecordCacheLookup(true)
				}
				return h.finish(requestID, domain.HealingResult{
					Success:    true,
					Selector:   entry.Healed,
					Original:   broken,
					Strategy:   entry.Strategy,
					Confidence: entry.Confidence,
					Metadata:   map[string]any{"cached": true},
				}, start)
			}
			h.store.Evict(broken)
			if h.metrics != nil {
				h.metrics.RecordCacheLookup(false)
			}
		}
	}

	if string(broken) != "" {
		if count, err := h.driver.Probe(ctx, string(broken)); err == nil && count >= 1 {
			h.store.RecordHeal(broken)
			return h.finish(requestID, domain.HealingResult{
				Success:    true,
				Selector:   broken,
				Original:   broken,
				Confidence: 1.0,
				Metadata:   map[string]any{"noHealingNeeded": true},
			}, start)
		}
	}

	if len(h.strategies) == 0 {
		h.store.RecordFailure(broken, h.clock())
		return h.finish(requestID, domain.HealingResult{
			Success:  false,
			Original: broken,
			Error:    domain.ErrNoStrategies(),
		}, start)
	}

	maxAttempts := h.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last domain.HealingResult
	for attempt := 0; attempt < maxAttempts; attempt++ {
		for _, s := range h.strategies {
			result := h.runStrategy(ctx, s, broken, opts)
			result.AttemptCount = attempt + 1
			if result.Success {
				if h.config.CacheHealing {
					h.store.Put(broken, result, h.clock())
				}
				h.store.RecordHeal(broken)
				return h.finish(requestID, result, start)
			}
			last = result
		}
		if attempt < maxAttempts-1 {
			h.sleeper(ctx, time.Duration(1000*(attempt+1))*time.Millisecond)
		}
	}

	h.store.RecordFailure(broken, h.clock())
	if last.Original == "" && last.Error == nil {
		last = domain.HealingResult{
			Success:  false,
			Original: broken,
			Error:    domain.ErrNoCandidate("all"),
		}
	}
	last.Original = broken
	return h.finish(requestID, last, start)
}

// runStrategy invokes s, recovering a panic into a StrategyException
// result so dispatch can continue to the next strategy.
func (h *Healer) runStrategy(ctx context.Context, s strategy.Strategy, broken domain.Selector, opts domain.HealOptions) (result domain.HealingResult) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("strategy panicked", zap.String("strategy", s.Name()), zap.Any("recover", r))
			result = domain.HealingResult{
				Success:  false,
				Strategy: s.Name(),
				Original: broken,
				Error:    domain.ErrStrategyException(s.Name(), fmtPanic(r)),
			}
		}
	}()

	result = s.Heal(ctx, h.driver, broken, opts)
	outcome := "no_candidate"
	if result.Success {
		outcome = "healed"
	} else if result.Error != nil {
		switch result.Error.Code {
		case domain.ErrCodeNoSignal:
			outcome = "no_signal"
		case domain.ErrCodeStrategyException:
			outcome = "error"
			h.logger.Error("strategy failed", zap.String("strategy", s.Name()), zap.Error(result.Error))
		}
	}
	if h.metrics != nil {
		h.metrics.RecordStrategyOutcome(s.Name(), outcome, result.Confidence)
	}
	return result
}

func fmtPanic(r any) error {
	return &panicError{value: r}
}

type panicError struct{ value any }

func (e *panicError) Error() string { return "panic: " + toString(e.value) }

func toString(v any) string {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if s, ok := v.(string); ok {
		return s
	}
	return "non-string panic value"
}

func (h *Healer) finish(requestID string, result domain.HealingResult, start time.Time) domain.HealingResult {
	result.DurationMs = h.clock().Sub(start).Milliseconds()
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["requestId"] = requestID

	if h.metrics != nil {
		outcome := "failure"
		if result.Success {
			outcome = "success"
		}
		h.metrics.RecordHealing(outcome, h.clock().Sub(start))
		h.metrics.CacheSize.Set(float64(h.store.Size()))
	}

	h.logger.Debug("heal completed",
		zap.String("request_id", requestID),
		zap.Bool("success", result.Success),
		zap.Int64("duration_ms", result.DurationMs),
	)
	return result
}

// Status is the result of HealthCheck.
type Status struct {
	Status       string          `json:"status"` // healthy, degraded, offline
	Strategies   map[string]bool `json:"strategies"`
	CacheSize    int             `json:"cacheSize"`
	CacheHits    int             `json:"cacheHitCount"`
}

// HealthCheck reports per-strategy availability and cache state. Status is
// "healthy" if every strategy is available, "degraded" if some are, and
// "offline" if none are.
func (h *Healer) HealthCheck(ctx context.Context) Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	availability := make(map[string]bool, len(h.strategies))
	availableCount := 0
	for _, s := range h.strategies {
		ok := s.Available(ctx)
		availability[s.Name()] = ok
		if ok {
			availableCount++
		}
	}

	status := "offline"
	if availableCount == len(h.strategies) && len(h.strategies) > 0 {
		status = "healthy"
	} else if availableCount > 0 {
		status = "degraded"
	}

	return Status{
		Status:     status,
		Strategies: availability,
		CacheSize:  h.store.Size(),
		CacheHits:  h.store.TotalHits(),
	}
}

// GetFlakinessStats returns every tracked selector with a nonzero
// flakiness score, descending.
func (h *Healer) GetFlakinessStats() []domain.FlakinessEntry {
	stats := h.store.FlakinessStats()
	filtered := stats[:0]
	for _, e := range stats {
		if flakinessScore(e) > 0 {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return flakinessScore(filtered[i]) > flakinessScore(filtered[j])
	})
	return filtered
}

func flakinessScore(e domain.FlakinessEntry) float64 {
	total := e.FailureCount + e.HealCount
	if total == 0 {
		return 0
	}
	return float64(e.FailureCount) / float64(total)
}

// ClearCache empties the cache and flakiness tracker.
func (h *Healer) ClearCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.store.Clear()
}

// closer is satisfied by collaborators that hold a releasable resource
// (internal/llmclient.Client's idle HTTP connections). internal/browserdriver.Driver
// does not implement it; its browser process is released by the cleanup
// function Launch returns. Neither driver.Driver nor strategy.LLMBackend
// require it, so Close only releases what's actually present.
type closer interface {
	Close() error
}

// Close releases the LLM backend's and driver's underlying resources, if
// they support it. It does not stop either collaborator from being used
// afterward by a caller that still holds a reference to it; callers should
// treat the Healer itself as done once Close returns.
func (h *Healer) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	if c, ok := h.llmBackend.(closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c, ok := h.driver.(closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// UpdateConfig applies opts on top of the current configuration and, if
// the result validates, rebuilds the strategy list from it.
func (h *Healer) UpdateConfig(opts ...config.Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := h.config
	for _, opt := range opts {
		opt(&next)
	}
	if err := next.Validate(); err != nil {
		return err
	}
	h.config = next
	h.strategies = buildStrategies(next, h.llmBackend)
	return nil
}
