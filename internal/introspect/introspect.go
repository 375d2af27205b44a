// Package introspect is the engine's only DOM read channel: it runs a
// single JavaScript extraction inside the live page per call and parses
// the result into domain.ElementDescriptor values. Strategies never read
// the page any other way.
package introspect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
)

const (
	// DefaultMaxElements is the generic introspection cap.
	DefaultMaxElements = 500
	// LLMMaxElements bounds the element slice handed to the LLM strategy.
	LLMMaxElements = 50

	defaultTextTruncate = 200
	llmTextTruncate     = 100
)

var excludedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// extractionScript is the in-page extraction program. It walks the DOM,
// skips non-visible subtrees and non-visual tags, and returns up to
// maxElements normalized element descriptors with text capped at
// textTruncate characters. The %d placeholders are filled by Run.
const extractionScript = `(() => {
  const maxElements = %d;
  const textTruncate = %d;
  const excluded = new Set(["SCRIPT","STYLE","NOSCRIPT","HEAD"]);
  const out = [];
  const walk = (el) => {
    if (out.length >= maxElements) return;
    if (excluded.has(el.tagName)) return;
    const style = window.getComputedStyle(el);
    const visible = style.display !== "none" && style.visibility !== "hidden" && style.opacity !== "0";
    if (visible) {
      out.push({
        tag: el.tagName.toLowerCase(),
        id: el.id || undefined,
        classes: Array.from(el.classList || []),
        text: (el.textContent || "").trim().slice(0, textTruncate),
        testId: el.getAttribute("data-testid") || el.getAttribute("data-test-id") ||
                el.getAttribute("data-cy") || el.getAttribute("data-test") ||
                el.getAttribute("testid") || undefined,
        role: el.getAttribute("role") || undefined,
        ariaLabel: el.getAttribute("aria-label") || undefined,
        type: el.getAttribute("type") || undefined,
        name: el.getAttribute("name") || undefined,
        visible: true,
      });
      for (const child of el.children) walk(child);
    }
  };
  walk(document.body);
  return JSON.stringify(out);
})()`

// Run executes the extraction script against d and returns up to
// maxElements visible Element Descriptors with text truncated to
// textTruncate characters.
func Run(ctx context.Context, d driver.Driver, maxElements, textTruncate int) ([]domain.ElementDescriptor, error) {
	if maxElements <= 0 {
		maxElements = DefaultMaxElements
	}
	if textTruncate <= 0 {
		textTruncate = defaultTextTruncate
	}

	js := fmt.Sprintf(extractionScript, maxElements, textTruncate)
	raw, err := d.Introspect(ctx, js, nil)
	if err != nil {
		return nil, domain.ErrDriverError("introspect", err)
	}

	var rows []elementRow
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, domain.ErrDriverError("introspect", fmt.Errorf("decoding extraction result: %w", err))
	}

	descriptors := make([]domain.ElementDescriptor, 0, len(rows))
	for _, row := range rows {
		if excludedTags[row.Tag] {
			continue
		}
		descriptors = append(descriptors, row.toDescriptor())
	}
	return descriptors, nil
}

// RunForLLM is Run with the LLM strategy's narrower element cap and text
// truncation.
func RunForLLM(ctx context.Context, d driver.Driver) ([]domain.ElementDescriptor, error) {
	return Run(ctx, d, LLMMaxElements, llmTextTruncate)
}

// elementRow mirrors the raw JSON shape produced by extractionScript.
type elementRow struct {
	Tag        string            `json:"tag"`
	ID         string            `json:"id"`
	Classes    []string          `json:"classes"`
	Text       string            `json:"text"`
	TestID     string            `json:"testId"`
	Role       string            `json:"role"`
	AriaLabel  string            `json:"ariaLabel"`
	Type       string            `json:"type"`
	Name       string            `json:"name"`
	Visible    bool              `json:"visible"`
	Attributes map[string]string `json:"attributes"`
}

func (r elementRow) toDescriptor() domain.ElementDescriptor {
	attrs := make(map[string]string, len(r.Attributes)+5)
	for k, v := range r.Attributes {
		attrs[k] = v
	}
	setIfNonEmpty(attrs, "data-testid", r.TestID)
	setIfNonEmpty(attrs, "role", r.Role)
	setIfNonEmpty(attrs, "aria-label", r.AriaLabel)
	setIfNonEmpty(attrs, "type", r.Type)
	setIfNonEmpty(attrs, "name", r.Name)

	return domain.ElementDescriptor{
		Tag:        r.Tag,
		ID:         r.ID,
		Classes:    r.Classes,
		Attributes: attrs,
		Text:       r.Text,
		Visible:    r.Visible,
	}
}

func setIfNonEmpty(m map[string]string, key, value string) {
	if value != "" {
		m[key] = value
	}
}
