// Package handlers implements the admin server's HTTP surface over a
// *healer.Healer: health, flakiness inspection, cache control, and a
// direct heal endpoint for ad-hoc debugging.
package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/selectorheal/selectorheal/internal/config"
	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/healer"
	"github.com/selectorheal/selectorheal/pkg/httputil"
)

// HealingHandler exposes a Healer over HTTP.
type HealingHandler struct {
	healer *healer.Healer
	logger *zap.Logger
}

// NewHealingHandler constructs a HealingHandler.
func NewHealingHandler(h *healer.Healer, logger *zap.Logger) *HealingHandler {
	return &HealingHandler{healer: h, logger: logger}
}

// HealthCheck reports per-strategy availability and cache size.
func (h *HealingHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.healer.HealthCheck(r.Context())

	code := http.StatusOK
	if status.Status == "offline" {
		code = http.StatusServiceUnavailable
	}
	httputil.JSON(w, code, status)
}

// Flakiness returns the ranked flakiness list, paginated.
func (h *HealingHandler) Flakiness(w http.ResponseWriter, r *http.Request) {
	stats := h.healer.GetFlakinessStats()
	pagination := httputil.GetPagination(r, 20, 100)

	end := pagination.Offset + pagination.PerPage
	if end > len(stats) {
		end = len(stats)
	}
	start := pagination.Offset
	if start > len(stats) {
		start = len(stats)
	}

	httputil.JSONWithMeta(w, http.StatusOK, stats[start:end], &httputil.Meta{
		Page:       pagination.Page,
		PerPage:    pagination.PerPage,
		Total:      len(stats),
		TotalPages: httputil.CalculateTotalPages(len(stats), pagination.PerPage),
	})
}

// ClearCache empties the Healing Cache and Flakiness Tracker.
func (h *HealingHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.healer.ClearCache()
	h.logger.Info("cache cleared via admin endpoint")
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// healRequest is the body of POST /heal.
type healRequest struct {
	Selector     string `json:"selector"`
	ExpectedType string `json:"expectedType,omitempty"`
}

// Heal runs a one-off heal() call for ad-hoc debugging outside a test run.
func (h *HealingHandler) Heal(w http.ResponseWriter, r *http.Request) {
	var req healRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	if req.Selector == "" {
		httputil.ErrorFromDomain(w, domain.ErrConfigInvalid("selector is required"))
		return
	}

	result := h.healer.Heal(r.Context(), domain.Selector(req.Selector), domain.HealOptions{ExpectedType: req.ExpectedType})
	httputil.JSON(w, http.StatusOK, result)
}

// updateConfigRequest is the body of PATCH /config.
type updateConfigRequest struct {
	Enabled     *bool    `json:"enabled,omitempty"`
	Strategies  []string `json:"strategies,omitempty"`
	MaxAttempts *int     `json:"maxAttempts,omitempty"`
}

// UpdateConfig applies a partial configuration change to the Healer.
func (h *HealingHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}

	var opts []config.Option
	if req.Enabled != nil {
		opts = append(opts, config.WithEnabled(*req.Enabled))
	}
	if req.Strategies != nil {
		opts = append(opts, config.WithStrategies(req.Strategies...))
	}
	if req.MaxAttempts != nil {
		opts = append(opts, config.WithMaxAttempts(*req.MaxAttempts))
	}

	if err := h.healer.UpdateConfig(opts...); err != nil {
		httputil.ErrorFromDomain(w, err)
		return
	}
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
