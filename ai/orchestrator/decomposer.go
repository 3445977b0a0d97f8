package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// Decomposer judges whether an utterance is compound and splits it into
// independently executable sub-tasks. The heuristic is conservative:
// only multiple imperative clauses referencing different tool categories
// trigger a split.
type Decomposer struct {
	maxSubTasks int
}

func NewDecomposer(maxSubTasks int) *Decomposer {
	if maxSubTasks <= 0 {
		maxSubTasks = DefaultConfig().MaxSubTasks
	}
	return &Decomposer{maxSubTasks: maxSubTasks}
}

// imperativeRe recognizes clauses that open with an action verb.
var imperativeRe = regexp.MustCompile(`^(?:please\s+)?(?:add|put|create|schedule|plan|set(?:\s+up)?|book|remind|delete|remove|cancel|update|change|buy|order|find|search|check|store|remember|send|call|make)\b`)

// clauseCategories is an ordered table mapping clause vocabulary to a
// tool category. First match wins.
var clauseCategories = []struct {
	name string
	re   *regexp.Regexp
}{
	{"list", regexp.MustCompile(`\b(?:list|shopping|grocer\w*|buy|purchase)\b`)},
	{"calendar", regexp.MustCompile(`\b(?:schedule|event|meeting|appointment|remind|calendar|party|dinner|lunch|plan)\b`)},
	{"memory", regexp.MustCompile(`\b(?:remember|favou?rite|recall|memory|fact)\b`)},
	{"people", regexp.MustCompile(`\b(?:contact|person|people|call|email|phone)\b`)},
}

// clauseSeparatorRe splits an utterance at clause boundaries. Separators
// containing "then" introduce an ordering dependency on the previous
// clause; plain "and"/comma boundaries do not.
var clauseSeparatorRe = regexp.MustCompile(`,?\s+and\s+then\s+|,\s*then\s+|\s+then\s+|,\s*and\s+|\s+and\s+|;\s*|,\s+`)

type clause struct {
	text          string
	dependsOnPrev bool
}

func splitClauses(utterance string) []clause {
	seps := clauseSeparatorRe.FindAllStringIndex(utterance, -1)
	if len(seps) == 0 {
		return []clause{{text: utterance}}
	}

	var clauses []clause
	prev := 0
	depends := false
	for _, sep := range seps {
		if text := strings.TrimSpace(utterance[prev:sep[0]]); text != "" {
			clauses = append(clauses, clause{text: text, dependsOnPrev: depends})
		}
		depends = strings.Contains(utterance[sep[0]:sep[1]], "then")
		prev = sep[1]
	}
	if text := strings.TrimSpace(utterance[prev:]); text != "" {
		clauses = append(clauses, clause{text: text, dependsOnPrev: depends})
	}
	return clauses
}

func clauseCategory(text string) string {
	lower := strings.ToLower(text)
	for _, c := range clauseCategories {
		if c.re.MatchString(lower) {
			return c.name
		}
	}
	return ""
}

// Split returns the sub-tasks of a compound utterance, or nil when the
// utterance is not judged compound. A sub-task whose leading clause was
// joined with "then" depends on the sub-task before it.
func (d *Decomposer) Split(utterance string) []*SubTask {
	clauses := splitClauses(utterance)
	if len(clauses) < 2 {
		return nil
	}

	// Rebuild fragments: each imperative clause opens a fragment, and a
	// non-imperative continuation is glued back onto the fragment before
	// it ("add bread and milk" stays one action).
	var fragments []clause
	for _, cl := range clauses {
		if imperativeRe.MatchString(strings.ToLower(cl.text)) {
			fragments = append(fragments, cl)
			continue
		}
		if len(fragments) == 0 {
			fragments = append(fragments, cl)
			continue
		}
		fragments[len(fragments)-1].text += " and " + cl.text
	}
	if len(fragments) < 2 {
		return nil
	}

	categories := make(map[string]bool)
	for _, f := range fragments {
		if cat := clauseCategory(f.text); cat != "" {
			categories[cat] = true
		}
	}
	if len(categories) < 2 {
		return nil
	}

	// Cap decomposition width; overflow clauses fold into the last task.
	if len(fragments) > d.maxSubTasks {
		for _, f := range fragments[d.maxSubTasks:] {
			fragments[d.maxSubTasks-1].text += " and " + f.text
		}
		fragments = fragments[:d.maxSubTasks]
	}

	tasks := make([]*SubTask, 0, len(fragments))
	for i, f := range fragments {
		var deps []string
		if f.dependsOnPrev && i > 0 {
			deps = []string{tasks[i-1].ID}
		}
		tasks = append(tasks, NewSubTask(fmt.Sprintf("sub_%d", i+1), f.text, deps))
	}
	return tasks
}

// SplitOrWhole splits a compound utterance, or wraps a simple one in a
// single sub-task. Used when a timed-out single-shot turn falls back to
// the decomposition path regardless of compoundness.
func (d *Decomposer) SplitOrWhole(utterance string) []*SubTask {
	if tasks := d.Split(utterance); len(tasks) > 0 {
		return tasks
	}
	return []*SubTask{NewSubTask("sub_1", utterance, nil)}
}
