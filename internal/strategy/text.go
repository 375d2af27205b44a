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

// textSelectorPatterns recognize the selector shapes that carry a literal
// text query: text=…, :has-text(…), xpath contains(text()…),
// and framework getByText(…) helpers.
var textSelectorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`text\s*=\s*["']([^"']*)["']`),
	regexp.MustCompile(`:has-text\(\s*["']([^"']*)["']\s*\)`),
	regexp.MustCompile(`contains\(\s*text\(\)\s*,\s*["']([^"']*)["']\s*\)`),
	regexp.MustCompile(`getByText\(\s*["']([^"']*)["']`),
}

const maxTextCandidates = 10

// TextMatch proposes candidates by comparing a selector's literal text
// query against visible text on the live page.
type TextMatch struct{}

// NewTextMatch constructs a TextMatch strategy.
func NewTextMatch() *TextMatch { return &TextMatch{} }

func (s *TextMatch) Name() string { return NameTextMatch }

func (s *TextMatch) Available(ctx context.Context) bool { return true }

func (s *TextMatch) Heal(ctx context.Context, d driver.Driver, broken domain.Selector, opts domain.HealOptions) domain.HealingResult {
	extracted, ok := extractText(string(broken))
	if !ok {
		return failure(s.Name(), domain.ErrNoSignal(s.Name(), "selector does not carry a recognized text query"))
	}

	descriptors, err := introspect.Run(ctx, d, introspect.DefaultMaxElements, 0)
	if err != nil {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}

	var candidates []domain.Candidate
	for _, el := range descriptors {
		if !el.Visible || len(el.Text) == 0 || len(el.Text) > 999 {
			continue
		}

		confidence := textSimilarity(extracted, el.Text)
		if confidence < 0.80 {
			continue
		}
		if opts.ExpectedType != "" && strings.EqualFold(el.Tag, opts.ExpectedType) {
			confidence = clampConfidence(confidence + 0.05)
		}

		candidates = append(candidates, textCandidates(s.Name(), el, confidence)...)
	}

	if len(candidates) == 0 {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })
	if len(candidates) > maxTextCandidates {
		candidates = candidates[:maxTextCandidates]
	}

	winner, ok := validate(ctx, d, candidates)
	if !ok {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}
	return success(s.Name(), broken, winner)
}

func extractText(selector string) (string, bool) {
	for _, p := range textSelectorPatterns {
		if m := p.FindStringSubmatch(selector); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// textSimilarity implements the text-matching scoring ladder.
func textSimilarity(a, b string) float64 {
	trimmedA, trimmedB := strings.TrimSpace(a), strings.TrimSpace(b)

	if a == b {
		return 0.95
	}
	if strings.EqualFold(trimmedA, trimmedB) {
		return 0.92
	}

	lowerA, lowerB := strings.ToLower(trimmedA), strings.ToLower(trimmedB)
	if strings.Contains(lowerA, lowerB) || strings.Contains(lowerB, lowerA) {
		shorter, longer := len(lowerA), len(lowerB)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		if longer == 0 {
			return 0.85
		}
		return 0.85 + (float64(shorter)/float64(longer))*0.15
	}

	if abs(len(lowerA)-len(lowerB)) < 10 {
		return similarity.Ratio(lowerA, lowerB)
	}

	return wordOverlapScore(lowerA, lowerB)
}

// wordOverlapScore implements a word-overlap fallback: shared
// tokens longer than 2 characters, normalized by the larger token count.
func wordOverlapScore(a, b string) float64 {
	tokensA := longTokens(a)
	tokensB := longTokens(b)
	if len(tokensA) == 0 || len(tokensB) == 0 {
		return 0
	}

	setB := make(map[string]bool, len(tokensB))
	for _, t := range tokensB {
		setB[t] = true
	}
	shared := 0
	for _, t := range tokensA {
		if setB[t] {
			shared++
		}
	}

	maxTokens := len(tokensA)
	if len(tokensB) > maxTokens {
		maxTokens = len(tokensB)
	}
	return float64(shared) / float64(maxTokens)
}

func longTokens(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// escapeText escapes a literal for embedding in a generated selector:
// backslash and double-quote are escaped, newline/CR/tab collapse to a
// single space.
func escapeText(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		`"`, `\"`,
		"\n", " ",
		"\r", " ",
		"\t", " ",
	)
	return replacer.Replace(s)
}

// textCandidates emits every selector variant worth trying for one
// surviving element.
func textCandidates(strategyName string, el domain.ElementDescriptor, confidence float64) []domain.Candidate {
	text := escapeText(el.Text)
	var out []domain.Candidate

	add := func(sel string, reason string) {
		out = append(out, domain.Candidate{
			Selector:   domain.Selector(sel),
			Confidence: confidence,
			Strategy:   strategyName,
			Reason:     reason,
		})
	}

	add(fmt.Sprintf(`text="%s"`, text), "exact-text")
	add(fmt.Sprintf(`:has-text("%s")`, text), "has-text")

	if el.Tag == "button" || el.Tag == "a" {
		add(fmt.Sprintf(`%s:has-text("%s")`, el.Tag, text), "tag-scoped-has-text")
	}
	if role, ok := el.Attributes["role"]; ok && role != "" {
		add(fmt.Sprintf(`[role="%s"]:has-text("%s")`, role, text), "role-scoped-has-text")
	}
	if ariaLabel, ok := el.Attributes["aria-label"]; ok && ariaLabel != "" && strings.EqualFold(ariaLabel, el.Text) {
		add(fmt.Sprintf(`[aria-label="%s"]`, escapeText(ariaLabel)), "aria-label-equality")
	}
	if title, ok := el.Attributes["title"]; ok && title != "" && strings.EqualFold(title, el.Text) {
		add(fmt.Sprintf(`[title="%s"]`, escapeText(title)), "title-equality")
	}
	if len(text) > 20 {
		add(fmt.Sprintf(`:has-text("%s")`, escapeText(el.Text[:15])), "wildcard-contains")
	}

	return out
}
