// Package routing provides rule-based intent classification for inbound
// utterances. Classification decides which backend class answers a request.
package routing

import (
	"regexp"
	"strings"
)

// Class is a coarse category of request used to pick a model backend
// and prompt dialect.
type Class string

const (
	// ClassConversational is the default class for plain chat.
	ClassConversational Class = "conversational"
	// ClassToolUsing covers utterances that request an action against a
	// capability service (lists, calendar, contacts, facts).
	ClassToolUsing Class = "tool_using"
	// ClassMemory covers recall questions answered from long-term memory.
	ClassMemory Class = "memory"
	// ClassMultimodal covers requests with attached media.
	ClassMultimodal Class = "multimodal"
)

// AllClasses returns every class the classifier can emit.
// The backend registry is validated against this set at boot.
func AllClasses() []Class {
	return []Class{ClassConversational, ClassToolUsing, ClassMemory, ClassMultimodal}
}

// Result is the outcome of one classification. Created once per request
// and never mutated.
type Result struct {
	Class      Class
	Confidence float32
	Reasoning  string
}

// Lexicon tables are ordered: media > tool-using > memory > conversational.
// The ordering is load-bearing for reproducibility and must not change.
var (
	actionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(add|put)\b.*\b(to|on)\b.*\blist\b`),
		regexp.MustCompile(`\b(create|schedule|set up|plan|book)\b`),
		regexp.MustCompile(`\bremind me\b`),
		regexp.MustCompile(`\b(delete|remove|cancel|update|change|reschedule)\b`),
		regexp.MustCompile(`\bmy favou?rite \w+ is\b`),
	}

	memoryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bremember\b`),
		regexp.MustCompile(`\brecall\b`),
		regexp.MustCompile(`\bwho is\b`),
		regexp.MustCompile(`\bwhat did\b`),
		regexp.MustCompile(`\bwhat('s| is) my\b`),
		regexp.MustCompile(`\bwhen did\b`),
	}
)

// Classifier maps an utterance to a backend class. It is a pure function
// of its inputs plus the fixed lexicon tables; no network calls, no state.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never fails. On total ambiguity it returns the conversational
// class with confidence at or below 0.5.
func (c *Classifier) Classify(utterance string, hasMedia bool) Result {
	if hasMedia {
		return Result{
			Class:      ClassMultimodal,
			Confidence: 1.0,
			Reasoning:  "attached media",
		}
	}

	lower := normalize(utterance)

	if matched, n := countMatches(actionPatterns, lower); matched {
		return Result{
			Class:      ClassToolUsing,
			Confidence: matchConfidence(n),
			Reasoning:  "action lexicon match",
		}
	}

	if matched, n := countMatches(memoryPatterns, lower); matched {
		return Result{
			Class:      ClassMemory,
			Confidence: matchConfidence(n),
			Reasoning:  "memory lexicon match",
		}
	}

	return Result{
		Class:      ClassConversational,
		Confidence: 0.5,
		Reasoning:  "no lexicon match, default class",
	}
}

func countMatches(patterns []*regexp.Regexp, input string) (bool, int) {
	n := 0
	for _, p := range patterns {
		if p.MatchString(input) {
			n++
		}
	}
	return n > 0, n
}

// matchConfidence scales with the number of matched patterns, capped at 0.95.
func matchConfidence(matches int) float32 {
	confidence := 0.6 + float32(matches)*0.15
	if confidence > 0.95 {
		confidence = 0.95
	}
	return confidence
}

func normalize(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}
