// Package browserdriver implements driver.Driver over a live
// playwright-go page, the engine's only supported real browser backend.
package browserdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/selectorheal/selectorheal/internal/driver"
)

// Driver adapts a playwright.Page to driver.Driver.
type Driver struct {
	page playwright.Page
}

// New wraps page as a driver.Driver.
func New(page playwright.Page) *Driver {
	return &Driver{page: page}
}

// Launch starts a headless (or headed) Chromium instance and opens one
// page, returning the Driver plus a cleanup function that stops
// Playwright and closes the browser. Callers should defer cleanup().
func Launch(headless bool) (*Driver, func() error, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	})
	if err != nil {
		pw.Stop()
		return nil, nil, fmt.Errorf("launching browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, nil, fmt.Errorf("opening page: %w", err)
	}

	cleanup := func() error {
		if err := browser.Close(); err != nil {
			pw.Stop()
			return err
		}
		return pw.Stop()
	}

	return New(page), cleanup, nil
}

// Probe returns the number of elements currently matching selector.
func (d *Driver) Probe(ctx context.Context, selector string) (int, error) {
	count, err := d.page.Locator(selector).Count()
	if err != nil {
		return 0, fmt.Errorf("counting %q: %w", selector, err)
	}
	return count, nil
}

var waitStateOptions = map[driver.WaitState]*playwright.WaitForSelectorState{
	driver.WaitStateAttached: waitState(playwright.WaitForSelectorStateAttached),
	driver.WaitStateVisible:  waitState(playwright.WaitForSelectorStateVisible),
	driver.WaitStateHidden:   waitState(playwright.WaitForSelectorStateHidden),
	driver.WaitStateDetached: waitState(playwright.WaitForSelectorStateDetached),
}

func waitState(s playwright.WaitForSelectorState) *playwright.WaitForSelectorState { return &s }

// Wait blocks until selector reaches state or timeout elapses.
func (d *Driver) Wait(ctx context.Context, selector string, state driver.WaitState, timeout time.Duration) error {
	opts := playwright.LocatorWaitForOptions{State: waitStateOptions[state]}
	if timeout > 0 {
		ms := float64(timeout.Milliseconds())
		opts.Timeout = &ms
	}
	if err := d.page.Locator(selector).WaitFor(opts); err != nil {
		return fmt.Errorf("waiting for %q to be %s: %w", selector, state, err)
	}
	return nil
}

// Introspect runs js inside the page and returns its JSON-serialized
// result. The extraction scripts this engine uses already call
// JSON.stringify internally, so Evaluate's return value is taken directly
// as a string.
func (d *Driver) Introspect(ctx context.Context, js string, args any) (string, error) {
	result, err := d.page.Evaluate(js, args)
	if err != nil {
		return "", fmt.Errorf("evaluating extraction script: %w", err)
	}
	s, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("extraction script returned non-string result")
	}
	return s, nil
}

// Interact performs action against selector.
func (d *Driver) Interact(ctx context.Context, selector string, action driver.Action, opts driver.InteractOptions) error {
	var locator playwright.Locator
	if selector != "" {
		locator = d.page.Locator(selector)
	}

	switch action {
	case driver.ActionClick:
		return locator.Click()
	case driver.ActionFill:
		return locator.Fill(opts.Value)
	case driver.ActionType:
		return locator.PressSequentially(opts.Value)
	case driver.ActionSelect:
		_, err := locator.SelectOption(playwright.SelectOptionValues{Values: &[]string{opts.Value}})
		return err
	case driver.ActionCheck:
		return locator.Check()
	case driver.ActionUncheck:
		return locator.Uncheck()
	case driver.ActionScreenshot:
		_, err := locator.Screenshot(playwright.LocatorScreenshotOptions{Path: playwright.String(opts.Path)})
		return err
	case driver.ActionGoto:
		gotoOpts := playwright.PageGotoOptions{}
		if opts.Timeout > 0 {
			ms := float64(opts.Timeout.Milliseconds())
			gotoOpts.Timeout = &ms
		}
		_, err := d.page.Goto(opts.Value, gotoOpts)
		return err
	default:
		return fmt.Errorf("unsupported action %q", action)
	}
}

// URL returns the current page URL.
func (d *Driver) URL(ctx context.Context) (string, error) {
	return d.page.URL(), nil
}

// Title returns the current page title.
func (d *Driver) Title(ctx context.Context) (string, error) {
	return d.page.Title()
}
