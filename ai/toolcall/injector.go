package toolcall

import (
	"regexp"
	"strings"

	"github.com/hrygo/parley/ai/routing"
)

// injectionRule is one (pattern, tool, argument builder) triple. The rule
// set is a closed, ordered list; first match wins. Patterns are kept
// conservative on purpose: a false injection executes an unintended
// action, a missed one just falls back to the conversational reply.
type injectionRule struct {
	pattern *regexp.Regexp
	tool    string
	classes map[routing.Class]bool
	build   func(m []string) map[string]any
}

var toolUsingOnly = map[routing.Class]bool{routing.ClassToolUsing: true}

// Recall rules also fire for the memory class: a stored-fact question is
// classified as memory but still needs a get_self_info call.
var toolUsingOrMemory = map[routing.Class]bool{
	routing.ClassToolUsing: true,
	routing.ClassMemory:    true,
}

var injectionRules = []injectionRule{
	{
		pattern: regexp.MustCompile(`^(?:please )?(?:add|put) (?:the )?(.+?) (?:to|on) (?:my |the )?(?:(\w+) )?list$`),
		tool:    "add_to_list",
		classes: toolUsingOnly,
		build: func(m []string) map[string]any {
			list := m[2]
			if list == "" {
				list = "shopping"
			}
			return map[string]any{"list": list, "item": m[1]}
		},
	},
	{
		pattern: regexp.MustCompile(`^my favou?rite ([a-z ]+?) is (.+)$`),
		tool:    "store_self_fact",
		classes: toolUsingOnly,
		build: func(m []string) map[string]any {
			return map[string]any{"key": factKey(m[1]), "value": m[2]}
		},
	},
	{
		pattern: regexp.MustCompile(`^what(?:'s| is) my favou?rite ([a-z ]+?)$`),
		tool:    "get_self_info",
		classes: toolUsingOrMemory,
		build: func(m []string) map[string]any {
			return map[string]any{"key": factKey(m[1])}
		},
	},
	{
		pattern: regexp.MustCompile(`^remind me to (.+?) (?:at|on) (.+)$`),
		tool:    "create_event",
		classes: toolUsingOnly,
		build: func(m []string) map[string]any {
			return map[string]any{"title": m[1], "when": m[2]}
		},
	},
}

func factKey(subject string) string {
	return "favorite_" + strings.ReplaceAll(strings.TrimSpace(subject), " ", "_")
}

// Injector synthesizes invocations from high-confidence lexical patterns
// in the original utterance. It exists because backend models are not
// uniformly reliable at emitting the invocation token; it is a safety
// net, not the primary path.
type Injector struct {
	catalog *Catalog
}

func NewInjector(catalog *Catalog) *Injector {
	return &Injector{catalog: catalog}
}

// TryInject returns an invocation when an injection rule matches the
// utterance and the rule's tool exists in the catalog. It is a pure
// function of its inputs: same utterance, same invocation arguments.
func (i *Injector) TryInject(utterance string, class routing.Class) *Invocation {
	input := normalizeUtterance(utterance)

	for _, rule := range injectionRules {
		if !rule.classes[class] {
			continue
		}
		if _, ok := i.catalog.Lookup(rule.tool); !ok {
			continue
		}
		m := rule.pattern.FindStringSubmatch(input)
		if m == nil {
			continue
		}
		return NewInvocation(rule.tool, rule.build(m), SourceInjected)
	}
	return nil
}

func normalizeUtterance(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.TrimRight(s, ".!? ")
}
