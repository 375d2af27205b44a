package strategy

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
	"github.com/selectorheal/selectorheal/internal/introspect"
	"github.com/selectorheal/selectorheal/internal/similarity"
)

// recognizedTestIDAttrs is the allow-listed set of stable-ID attributes,
// in the order candidates are emitted and validated.
var recognizedTestIDAttrs = []string{"data-testid", "data-test-id", "data-cy", "data-test", "testid"}

var testIDAttrPatterns = buildTestIDAttrPatterns()

func buildTestIDAttrPatterns() map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(recognizedTestIDAttrs))
	for _, attr := range recognizedTestIDAttrs {
		patterns[attr] = regexp.MustCompile(`\[` + regexp.QuoteMeta(attr) + `\s*=\s*["']([^"']*)["']\s*\]`)
	}
	return patterns
}

// TestIDRecovery proposes candidates by comparing a selector's test-ID
// literal against test-ID attributes present on the live page.
type TestIDRecovery struct{}

// NewTestIDRecovery constructs a TestIDRecovery strategy.
func NewTestIDRecovery() *TestIDRecovery { return &TestIDRecovery{} }

func (s *TestIDRecovery) Name() string { return NameTestIDRecovery }

func (s *TestIDRecovery) Available(ctx context.Context) bool { return true }

func (s *TestIDRecovery) Heal(ctx context.Context, d driver.Driver, broken domain.Selector, opts domain.HealOptions) domain.HealingResult {
	extracted, ok := extractTestID(string(broken))
	if !ok {
		return failure(s.Name(), domain.ErrNoSignal(s.Name(), "no recognized test-id attribute literal found"))
	}

	descriptors, err := introspect.Run(ctx, d, introspect.DefaultMaxElements, 0)
	if err != nil {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}

	var candidates []domain.Candidate
	for _, el := range descriptors {
		pageID, matchType, ok := bestTestIDOnElement(el)
		if !ok {
			continue
		}

		confidence, kind := scoreTestID(extracted, pageID)
		if confidence <= 0.5 {
			continue
		}
		if opts.ExpectedType != "" && strings.EqualFold(el.Tag, opts.ExpectedType) {
			confidence = clampConfidence(confidence + 0.10)
		}
		_ = matchType

		for _, attr := range recognizedTestIDAttrs {
			candidates = append(candidates, domain.Candidate{
				Selector:   domain.Selector(fmt.Sprintf(`[%s="%s"]`, attr, pageID)),
				Confidence: confidence,
				Strategy:   s.Name(),
				Reason:     kind,
			})
		}
	}

	if len(candidates) == 0 {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })

	winner, ok := validate(ctx, d, candidates)
	if !ok {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}
	return success(s.Name(), broken, winner)
}

// extractTestID pulls the literal test-id value out of a selector string
// using the first recognized attribute pattern that matches.
func extractTestID(selector string) (string, bool) {
	for _, attr := range recognizedTestIDAttrs {
		if m := testIDAttrPatterns[attr].FindStringSubmatch(selector); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// bestTestIDOnElement returns the first recognized test-id attribute value
// present on el's Attributes map.
func bestTestIDOnElement(el domain.ElementDescriptor) (string, string, bool) {
	for _, attr := range recognizedTestIDAttrs {
		if v, ok := el.Attributes[attr]; ok && v != "" {
			return v, attr, true
		}
	}
	return "", "", false
}

// scoreTestID implements the test-ID similarity scoring ladder.
func scoreTestID(extracted, pageID string) (float64, string) {
	if strings.EqualFold(extracted, pageID) {
		return 0.95, "exact"
	}
	if normalizedTestIDEqual(extracted, pageID) {
		return 0.90, "normalized"
	}
	if similarity.Contains(pageID, extracted) {
		return 0.80, "contains"
	}
	if similarity.Contains(extracted, pageID) {
		return 0.75, "contained-by"
	}
	return similarity.Ratio(extracted, pageID), "levenshtein"
}

func normalizedTestIDEqual(a, b string) bool {
	return similarity.NormalizedEqual(a, b)
}
