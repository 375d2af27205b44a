package strategy

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
)

var (
	idFragmentPattern     = regexp.MustCompile(`#[a-zA-Z0-9_-]+`)
	nthChildPattern       = regexp.MustCompile(`:nth-child\(\d+\)`)
	classFragmentPattern  = regexp.MustCompile(`\.[a-zA-Z0-9_-]+`)
	attrFragmentPattern   = regexp.MustCompile(`\[[^\]]*\]`)
	leadingTagPattern     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*`)
	combinatorTokens      = map[string]bool{">": true, "+": true, "~": true}
)

// cssPart is one parsed whitespace-separated token of a CSS selector.
type cssPart struct {
	raw     string
	tag     string
	hasID   bool
	classes []string
	attrs   []string
	hasNth  bool
}

func parseCSSParts(selector string) []cssPart {
	var parts []cssPart
	for _, tok := range strings.Fields(selector) {
		if combinatorTokens[tok] {
			continue
		}
		parts = append(parts, cssPart{
			raw:     tok,
			tag:     leadingTagPattern.FindString(tok),
			hasID:   idFragmentPattern.MatchString(tok),
			classes: stripLeadingDots(classFragmentPattern.FindAllString(tok, -1)),
			attrs:   attrFragmentPattern.FindAllString(tok, -1),
			hasNth:  nthChildPattern.MatchString(tok),
		})
	}
	return parts
}

func stripLeadingDots(matches []string) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = strings.TrimPrefix(m, ".")
	}
	return out
}

// CSSHierarchy proposes candidates via fixed structural transforms of the
// broken selector's own text. It never reads the DOM except to
// validate candidate existence.
type CSSHierarchy struct{}

// NewCSSHierarchy constructs a CSSHierarchy strategy.
func NewCSSHierarchy() *CSSHierarchy { return &CSSHierarchy{} }

func (s *CSSHierarchy) Name() string { return NameCSSHierarchy }

func (s *CSSHierarchy) Available(ctx context.Context) bool { return true }

func (s *CSSHierarchy) Heal(ctx context.Context, d driver.Driver, broken domain.Selector, opts domain.HealOptions) domain.HealingResult {
	raw := string(broken)
	parts := parseCSSParts(raw)
	if len(parts) == 0 {
		return failure(s.Name(), domain.ErrNoSignal(s.Name(), "selector has no parseable parts"))
	}

	candidates := s.transforms(raw, parts)
	if len(candidates) == 0 {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}

	candidates = dedupeCandidates(candidates)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })

	winner, ok := validate(ctx, d, candidates)
	if !ok {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}
	return success(s.Name(), broken, winner)
}

// transforms produces the fixed, ordered family of structural candidates
// in a fixed transform table, skipping any whose precondition fails.
func (s *CSSHierarchy) transforms(raw string, parts []cssPart) []domain.Candidate {
	depth := len(parts)
	first, last := parts[0], parts[len(parts)-1]

	hasID := anyPart(parts, func(p cssPart) bool { return p.hasID })
	hasNth := anyPart(parts, func(p cssPart) bool { return p.hasNth })
	hasClass := anyPart(parts, func(p cssPart) bool { return len(p.classes) > 0 })
	hasAttr := anyPart(parts, func(p cssPart) bool { return len(p.attrs) > 0 })
	allClasses := collectClasses(parts)
	allAttrs := collectAttrs(parts)

	var out []domain.Candidate
	add := func(sel string, confidence float64, reason string) {
		if sel == "" {
			return
		}
		out = append(out, domain.Candidate{Selector: domain.Selector(sel), Confidence: confidence, Strategy: s.Name(), Reason: reason})
	}

	if hasID && depth > 1 {
		add(idFragmentPattern.ReplaceAllString(raw, ""), 0.70, "strip-id")
	}
	if hasNth {
		add(nthChildPattern.ReplaceAllString(raw, ""), 0.75, "strip-nth-child")
	}
	if depth > 2 {
		add(parts[depth-2].raw+" "+last.raw, 0.65, "last-two-parts")
	}
	if hasClass {
		add(joinClasses(allClasses), 0.60, "all-classes-concatenated")
		for _, c := range allClasses {
			add("."+c, 0.55, "each-class-singly")
		}
	}
	if last.tag != "" && hasClass {
		add(last.tag+joinClasses(allClasses), 0.68, "last-tag-plus-all-classes")
	}
	if depth > 1 {
		add(joinRaw(parts, " > "), 0.58, "child-combinator-join")
	}
	if hasAttr {
		for _, a := range allAttrs {
			add(a, 0.72, "bracketed-attribute-alone")
		}
	}
	if first.tag != "" && hasClass {
		add(first.tag+"."+allClasses[0], 0.62, "first-tag-plus-first-class")
	}
	if last.tag != "" {
		add(last.tag, 0.50, "last-tag-alone")
	}
	if depth > 1 {
		add(joinRaw(parts[:depth-1], " "), 0.45, "drop-last-part")
	}

	return out
}

func anyPart(parts []cssPart, pred func(cssPart) bool) bool {
	for _, p := range parts {
		if pred(p) {
			return true
		}
	}
	return false
}

func collectClasses(parts []cssPart) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range parts {
		for _, c := range p.classes {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func collectAttrs(parts []cssPart) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range parts {
		for _, a := range p.attrs {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

func joinClasses(classes []string) string {
	var b strings.Builder
	for _, c := range classes {
		b.WriteString(".")
		b.WriteString(c)
	}
	return b.String()
}

func joinRaw(parts []cssPart, sep string) string {
	raws := make([]string, len(parts))
	for i, p := range parts {
		raws[i] = p.raw
	}
	return strings.Join(raws, sep)
}

func dedupeCandidates(candidates []domain.Candidate) []domain.Candidate {
	seen := map[domain.Selector]bool{}
	out := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Selector] {
			continue
		}
		seen[c.Selector] = true
		out = append(out, c)
	}
	return out
}
