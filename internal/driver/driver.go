// Package driver defines the external browser-automation collaborator the
// healing engine depends on. The engine never talks to a browser directly;
// every DOM read or interaction goes through this interface so the core
// (internal/healer, internal/strategy, internal/retry) stays independently
// testable against a fake.
package driver

import (
	"context"
	"time"
)

// Action is one uniform interaction the Action Wrapper can route through
// the Healer.
type Action string

const (
	ActionClick      Action = "click"
	ActionFill       Action = "fill"
	ActionType       Action = "type"
	ActionSelect     Action = "select"
	ActionCheck      Action = "check"
	ActionUncheck    Action = "uncheck"
	ActionScreenshot Action = "screenshot"
	ActionGoto       Action = "goto"
)

// WaitState is the element state Wait polls for.
type WaitState string

const (
	WaitStateAttached WaitState = "attached"
	WaitStateVisible  WaitState = "visible"
	WaitStateHidden   WaitState = "hidden"
	WaitStateDetached WaitState = "detached"
)

// InteractOptions carries the per-call parameters for Interact; which
// fields matter depends on Action (Value for fill/type/select, Path for
// screenshot).
type InteractOptions struct {
	Value   string
	Path    string
	Timeout time.Duration
}

// Driver is the engine's sole window onto a live browser page.
type Driver interface {
	// Probe returns how many elements currently match selector. A count
	// of 0 means absent; the engine never distinguishes "zero" from "error"
	// beyond that — any probe error is treated as absent.
	Probe(ctx context.Context, selector string) (int, error)

	// Wait blocks until selector reaches state or timeout elapses.
	Wait(ctx context.Context, selector string, state WaitState, timeout time.Duration) error

	// Introspect runs js inside the page and returns its JSON-serialized
	// result. It is the only DOM read channel; strategies never query the
	// page any other way.
	Introspect(ctx context.Context, js string, args any) (string, error)

	// Interact performs action against selector.
	Interact(ctx context.Context, selector string, action Action, opts InteractOptions) error

	// URL returns the current page URL.
	URL(ctx context.Context) (string, error)

	// Title returns the current page title.
	Title(ctx context.Context) (string, error)
}
