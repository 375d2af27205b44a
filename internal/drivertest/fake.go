// Package drivertest provides an in-memory driver.Driver fake for unit
// tests across the engine, so no package needs a real browser to exercise
// its logic.
package drivertest

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
)

// Element is one fake page element, keyed into Fake.Elements.
type Element struct {
	Tag       string
	ID        string
	Classes   []string
	Text      string
	TestID    string
	Role      string
	AriaLabel string
	Type      string
	Name      string
	Visible   bool
	// Selectors lists every selector string that should resolve to this
	// element, so Probe/Wait can match without a real CSS engine.
	Selectors []string
}

// Fake is a scriptable driver.Driver over an in-memory page.
type Fake struct {
	Elements    []Element
	PageURL     string
	PageTitle   string
	ProbeErr    error
	InteractErr map[string]error // selector -> error to return from Interact
	Interactions []Interaction
}

// Interaction records one call to Interact, for assertions.
type Interaction struct {
	Selector string
	Action   driver.Action
	Opts     driver.InteractOptions
}

// Probe returns the number of elements whose Selectors list contains sel.
func (f *Fake) Probe(ctx context.Context, sel string) (int, error) {
	if f.ProbeErr != nil {
		return 0, f.ProbeErr
	}
	count := 0
	for _, el := range f.Elements {
		if matches(el, sel) {
			count++
		}
	}
	return count, nil
}

// Wait succeeds immediately if sel resolves, else returns a timeout error
// shaped like a real driver's.
func (f *Fake) Wait(ctx context.Context, sel string, state driver.WaitState, timeout time.Duration) error {
	count, err := f.Probe(ctx, sel)
	if err != nil {
		return err
	}
	if count == 0 {
		return &timeoutError{selector: sel}
	}
	return nil
}

// Introspect ignores js (the fake has no JS engine) and returns its
// Elements serialized in the shape the real extraction script produces.
func (f *Fake) Introspect(ctx context.Context, js string, args any) (string, error) {
	type row struct {
		Tag       string   `json:"tag"`
		ID        string   `json:"id,omitempty"`
		Classes   []string `json:"classes,omitempty"`
		Text      string   `json:"text,omitempty"`
		TestID    string   `json:"testId,omitempty"`
		Role      string   `json:"role,omitempty"`
		AriaLabel string   `json:"ariaLabel,omitempty"`
		Type      string   `json:"type,omitempty"`
		Name      string   `json:"name,omitempty"`
		Visible   bool     `json:"visible"`
	}
	rows := make([]row, 0, len(f.Elements))
	for _, el := range f.Elements {
		if !el.Visible {
			continue
		}
		rows = append(rows, row{
			Tag: el.Tag, ID: el.ID, Classes: el.Classes, Text: el.Text,
			TestID: el.TestID, Role: el.Role, AriaLabel: el.AriaLabel,
			Type: el.Type, Name: el.Name, Visible: el.Visible,
		})
	}
	data, err := json.Marshal(rows)
	return string(data), err
}

// Interact records the call and returns a scripted error if one was set
// for sel.
func (f *Fake) Interact(ctx context.Context, sel string, action driver.Action, opts driver.InteractOptions) error {
	f.Interactions = append(f.Interactions, Interaction{Selector: sel, Action: action, Opts: opts})
	if err, ok := f.InteractErr[sel]; ok {
		return err
	}
	return nil
}

func (f *Fake) URL(ctx context.Context) (string, error)   { return f.PageURL, nil }
func (f *Fake) Title(ctx context.Context) (string, error) { return f.PageTitle, nil }

// matches is a small syntactic matcher good enough for tests: an explicit
// Selectors list, plus the exact "#id" and ".class" forms. Attribute and
// tag selectors match only when listed in Selectors.
func matches(el Element, sel string) bool {
	for _, s := range el.Selectors {
		if s == sel {
			return true
		}
	}
	trimmed := strings.TrimSpace(sel)
	if trimmed == "" {
		return false
	}
	if el.ID != "" && sel == "#"+el.ID {
		return true
	}
	for _, c := range el.Classes {
		if sel == "."+c {
			return true
		}
	}
	return false
}

type timeoutError struct{ selector string }

func (e *timeoutError) Error() string {
	return "waiting for selector \"" + e.selector + "\" timed out"
}

// ToElementDescriptor converts a fake Element into the same shape the real
// Introspector would produce, for tests that bypass Introspect entirely.
func (el Element) ToElementDescriptor() domain.ElementDescriptor {
	attrs := map[string]string{}
	if el.TestID != "" {
		attrs["data-testid"] = el.TestID
	}
	if el.Role != "" {
		attrs["role"] = el.Role
	}
	if el.AriaLabel != "" {
		attrs["aria-label"] = el.AriaLabel
	}
	if el.Type != "" {
		attrs["type"] = el.Type
	}
	if el.Name != "" {
		attrs["name"] = el.Name
	}
	return domain.ElementDescriptor{
		Tag: el.Tag, ID: el.ID, Classes: el.Classes,
		Attributes: attrs, Text: el.Text, Visible: el.Visible,
	}
}
