package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/selectorheal/selectorheal/internal/domain"
	"github.com/selectorheal/selectorheal/internal/driver"
	"github.com/selectorheal/selectorheal/internal/introspect"
)

const maxLLMCandidates = 5
const promptElementLimit = 30

var interactiveTags = map[string]bool{
	"button": true, "a": true, "input": true, "select": true, "textarea": true,
}

// LLMBackend is the remote text-generation collaborator LLM Analysis
// delegates to. It is satisfied by internal/llmclient.Client.
type LLMBackend interface {
	Available(ctx context.Context) bool
	Generate(ctx context.Context, prompt string) (string, error)
}

// LLMAnalysis proposes candidates by asking a remote LLM to read a page
// snapshot and suggest selectors. The model's output is treated as a
// fallible suggestion, never trusted without driver validation.
type LLMAnalysis struct {
	backend LLMBackend
}

// NewLLMAnalysis constructs an LLMAnalysis strategy against backend.
func NewLLMAnalysis(backend LLMBackend) *LLMAnalysis {
	return &LLMAnalysis{backend: backend}
}

func (s *LLMAnalysis) Name() string { return NameLLMAnalysis }

func (s *LLMAnalysis) Available(ctx context.Context) bool {
	return s.backend != nil && s.backend.Available(ctx)
}

func (s *LLMAnalysis) Heal(ctx context.Context, d driver.Driver, broken domain.Selector, opts domain.HealOptions) domain.HealingResult {
	if !s.Available(ctx) {
		return failure(s.Name(), domain.ErrLLMUnavailable(nil))
	}

	descriptors, err := introspect.RunForLLM(ctx, d)
	if err != nil {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}
	descriptors = prioritizeDescriptors(descriptors)

	pageURL, _ := d.URL(ctx)
	pageTitle, _ := d.Title(ctx)

	prompt := buildPrompt(string(broken), opts.ExpectedType, pageURL, pageTitle, descriptors)

	raw, err := s.backend.Generate(ctx, prompt)
	if err != nil {
		if appErr, ok := domain.AsAppError(err); ok {
			return failure(s.Name(), appErr)
		}
		return failure(s.Name(), domain.ErrLLMUnavailable(err))
	}

	candidates := parseSuggestions(raw, s.Name())
	if len(candidates) == 0 {
		return failure(s.Name(), domain.ErrLLMMalformed(raw))
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })
	if len(candidates) > maxLLMCandidates {
		candidates = candidates[:maxLLMCandidates]
	}

	winner, ok := validate(ctx, d, candidates)
	if !ok {
		return failure(s.Name(), domain.ErrNoCandidate(s.Name()))
	}
	return success(s.Name(), broken, winner)
}

// prioritizeDescriptors moves interactive elements and elements with
// visible text to the front, preserving relative order otherwise.
func prioritizeDescriptors(descriptors []domain.ElementDescriptor) []domain.ElementDescriptor {
	var priority, rest []domain.ElementDescriptor
	for _, d := range descriptors {
		if interactiveTags[d.Tag] || (d.Visible && d.Text != "") {
			priority = append(priority, d)
		} else {
			rest = append(rest, d)
		}
	}
	return append(priority, rest...)
}

func buildPrompt(broken, expectedType, pageURL, pageTitle string, descriptors []domain.ElementDescriptor) string {
	if len(descriptors) > promptElementLimit {
		descriptors = descriptors[:promptElementLimit]
	}
	elementsJSON, _ := json.Marshal(descriptors)

	var b strings.Builder
	fmt.Fprintf(&b, "A browser test selector no longer matches any element.\n")
	fmt.Fprintf(&b, "Broken selector: %s\n", broken)
	if expectedType != "" {
		fmt.Fprintf(&b, "Expected element tag: %s\n", expectedType)
	}
	fmt.Fprintf(&b, "Page URL: %s\n", pageURL)
	fmt.Fprintf(&b, "Page title: %s\n", pageTitle)
	fmt.Fprintf(&b, "Visible elements (JSON): %s\n", string(elementsJSON))
	b.WriteString("Prioritize stable-ID attributes, then roles, then text, then semantic classes.\n")
	b.WriteString(`Return only a JSON object: {"suggestions":[{"selector":"...","confidence":0.0,"reasoning":"..."}]}`)
	return b.String()
}

var jsonObjectWithSuggestionsPattern = regexp.MustCompile(`\{[^{}]*"suggestions"[\s\S]*\}`)
var quotedSelectorFieldPattern = regexp.MustCompile(`"selector"\s*:\s*"([^"]*)"`)
var quotedConfidenceFieldPattern = regexp.MustCompile(`"confidence"\s*:\s*([0-9.]+)`)

var knownSelectorShapePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[data-testid="[^"]*"\]`),
	regexp.MustCompile(`\[role="[^"]*"\]`),
	regexp.MustCompile(`text="[^"]*"`),
	regexp.MustCompile(`[a-zA-Z]+:has-text\("[^"]*"\)`),
}

type suggestion struct {
	Selector   string  `json:"selector"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

type suggestionsPayload struct {
	Suggestions []suggestion `json:"suggestions"`
}

// parseSuggestions degrades across three layers: full
// JSON, then a quoted-field scan, then a regex over known selector shapes.
func parseSuggestions(raw, strategyName string) []domain.Candidate {
	if candidates := parseJSONSuggestions(raw, strategyName); len(candidates) > 0 {
		return candidates
	}
	if candidates := parseQuotedFieldSuggestions(raw, strategyName); len(candidates) > 0 {
		return candidates
	}
	return parseKnownShapeSuggestions(raw, strategyName)
}

func parseJSONSuggestions(raw, strategyName string) []domain.Candidate {
	match := jsonObjectWithSuggestionsPattern.FindString(raw)
	if match == "" {
		match = raw
	}
	var payload suggestionsPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return nil
	}
	return dedupeCandidates(toCandidates(payload.Suggestions, strategyName))
}

func parseQuotedFieldSuggestions(raw, strategyName string) []domain.Candidate {
	selectors := quotedSelectorFieldPattern.FindAllStringSubmatch(raw, -1)
	if len(selectors) == 0 {
		return nil
	}
	confidences := quotedConfidenceFieldPattern.FindAllStringSubmatch(raw, -1)

	var out []domain.Candidate
	for i, m := range selectors {
		confidence := 0.5
		if i < len(confidences) {
			if v, err := strconv.ParseFloat(confidences[i][1], 64); err == nil {
				confidence = v
			}
		}
		out = append(out, domain.Candidate{
			Selector:   domain.Selector(m[1]),
			Confidence: clampConfidence(confidence),
			Strategy:   strategyName,
			Reason:     "quoted-field-scan",
		})
	}
	return dedupeCandidates(out)
}

func parseKnownShapeSuggestions(raw, strategyName string) []domain.Candidate {
	var out []domain.Candidate
	for _, pattern := range knownSelectorShapePatterns {
		for _, m := range pattern.FindAllString(raw, -1) {
			out = append(out, domain.Candidate{
				Selector:   domain.Selector(m),
				Confidence: 0.4,
				Strategy:   strategyName,
				Reason:     "known-shape-regex",
			})
		}
	}
	return dedupeCandidates(out)
}

func toCandidates(suggestions []suggestion, strategyName string) []domain.Candidate {
	out := make([]domain.Candidate, 0, len(suggestions))
	for _, sg := range suggestions {
		if sg.Selector == "" {
			continue
		}
		out = append(out, domain.Candidate{
			Selector:   domain.Selector(sg.Selector),
			Confidence: clampConfidence(sg.Confidence),
			Strategy:   strategyName,
			Reason:     sg.Reasoning,
		})
	}
	return out
}
