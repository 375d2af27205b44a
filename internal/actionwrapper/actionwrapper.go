// Package actionwrapper gives test code a single, uniform entry point for
// interacting with a page element: click, fill, type, select, check,
// uncheck, screenshot, goto. Every selector-bearing call is routed through
// the Retry Handler's executeWithHealing so a broken selector is repaired
// inline instead of failing the caller's test; goto has no selector and
// goes through the plain withRetry loop.
package actionwrapper

import (
	"context"
	"time"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
	"github.com/selectorheal/selectorheal/internal/retry"
)

// Wrapper binds a Driver, a Healer, and a retry Handler into the engine's
// uniform interaction contract.
type Wrapper struct {
	driver  driver.Driver
	healer  retry.Healer
	handler *retry.Handler
}

// New constructs a Wrapper. handler controls the retry/backoff policy
// that governs every call.
func New(d driver.Driver, healer retry.Healer, handler *retry.Handler) *Wrapper {
	return &Wrapper{driver: d, healer: healer, handler: handler}
}

func (w *Wrapper) run(ctx context.Context, selector domain.Selector, expectedType string, action driver.Action, opts driver.InteractOptions) error {
	return w.handler.ExecuteWithHealing(ctx, w.healer, selector, domain.HealOptions{ExpectedType: expectedType},
		func(ctx context.Context, sel domain.Selector) error {
			return w.driver.Interact(ctx, string(sel), action, opts)
		})
}

// Click clicks the element matching selector.
func (w *Wrapper) Click(ctx context.Context, selector domain.Selector) error {
	return w.run(ctx, selector, "", driver.ActionClick, driver.InteractOptions{})
}

// Fill sets the element matching selector's value to value, replacing any
// existing content.
func (w *Wrapper) Fill(ctx context.Context, selector domain.Selector, value string) error {
	return w.run(ctx, selector, "input", driver.ActionFill, driver.InteractOptions{Value: value})
}

// Type sends value as individual keystrokes to the element matching
// selector, appending to existing content.
func (w *Wrapper) Type(ctx context.Context, selector domain.Selector, value string) error {
	return w.run(ctx, selector, "input", driver.ActionType, driver.InteractOptions{Value: value})
}

// Select chooses value from the element matching selector.
func (w *Wrapper) Select(ctx context.Context, selector domain.Selector, value string) error {
	return w.run(ctx, selector, "select", driver.ActionSelect, driver.InteractOptions{Value: value})
}

// Check sets the checkbox/radio matching selector to checked.
func (w *Wrapper) Check(ctx context.Context, selector domain.Selector) error {
	return w.run(ctx, selector, "input", driver.ActionCheck, driver.InteractOptions{})
}

// Uncheck clears the checkbox matching selector.
func (w *Wrapper) Uncheck(ctx context.Context, selector domain.Selector) error {
	return w.run(ctx, selector, "input", driver.ActionUncheck, driver.InteractOptions{})
}

// Screenshot captures the element matching selector to path.
func (w *Wrapper) Screenshot(ctx context.Context, selector domain.Selector, path string) error {
	return w.run(ctx, selector, "", driver.ActionScreenshot, driver.InteractOptions{Path: path})
}

// Goto navigates the page to url. It carries no selector, so healing never
// applies; timeout bounds the navigation itself.
func (w *Wrapper) Goto(ctx context.Context, url string, timeout time.Duration) error {
	return w.handler.WithRetry(ctx, func(ctx context.Context) error {
		return w.driver.Interact(ctx, "", driver.ActionGoto, driver.InteractOptions{Value: url, Timeout: timeout})
	})
}
