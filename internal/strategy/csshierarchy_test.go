package strategy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/drivertest"
)

// TestCSSHierarchy_SimplifyToClassChain covers the element's wrapper losing
// its generated id: the higher-ranked strip-id candidate (" .btn-primary",
// with a leading space) is not an exact form the fake matches, so
// resolution falls through to the bare concatenated-class candidate.
func TestCSSHierarchy_SimplifyToClassChain(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "div", Classes: []string{"btn-primary"}, Visible: true},
	}}
	s := NewCSSHierarchy()

	result := s.Heal(context.Background(), d, `#checkout-1234 .btn-primary`, domain.HealOptions{})

	require.True(t, result.Success)
	assert.Equal(t, domain.Selector(".btn-primary"), result.Selector)
	assert.Equal(t, "cssHierarchy", result.Strategy)
}

// TestCSSHierarchy_SimplifyToLastTag covers the narrowest fallback rung
// (last-tag-alone) when every richer transform fails to validate.
func TestCSSHierarchy_SimplifyToLastTag(t *testing.T) {
	d := &drivertest.Fake{Elements: []drivertest.Element{
		{Tag: "button", Visible: true, Selectors: []string{"button"}},
	}}
	s := NewCSSHierarchy()

	result := s.Heal(context.Background(), d, `#wizard-step-3 > div.old-layout > button`, domain.HealOptions{})

	require.True(t, result.Success)
	assert.Equal(t, domain.Selector("button"), result.Selector)
}

func TestCSSHierarchy_NoSignal_WhenSelectorHasNoParseableParts(t *testing.T) {
	d := &drivertest.Fake{}
	s := NewCSSHierarchy()

	result := s.Heal(context.Background(), d, domain.Selector(""), domain.HealOptions{})

	require.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeNoSignal, result.Error.Code)
}

func TestCSSHierarchy_NoCandidate_WhenNoTransformValidates(t *testing.T) {
	d := &drivertest.Fake{}
	s := NewCSSHierarchy()

	result := s.Heal(context.Background(), d, `#gone .also-gone`, domain.HealOptions{})

	require.False(t, result.Success)
	assert.Equal(t, domain.ErrCodeNoCandidate, result.Error.Code)
}
