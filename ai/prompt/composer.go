// Package prompt composes system prompts per backend dialect. The
// invocation token format is identical across dialects; only the amount
// of hand-holding around it varies.
package prompt

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hrygo/parley/ai/backend"
	"github.com/hrygo/parley/ai/toolcall"
)

// Composer renders the system prompt for a backend profile. It is
// side-effect-free: same profile, same catalog, same output.
type Composer struct {
	catalog *toolcall.Catalog
}

func NewComposer(catalog *toolcall.Catalog) *Composer {
	return &Composer{catalog: catalog}
}

// Compose returns the system prompt for the given profile. Tool names
// and argument schemas are embedded verbatim from the catalog so the
// extractor and the model agree on the exact names.
func (c *Composer) Compose(profile *backend.Profile) string {
	switch profile.Dialect {
	case backend.DialectWorkedExamples:
		return c.composeWorkedExamples()
	default:
		return c.composeTerse()
	}
}

const invocationGrammar = `To call a tool, emit exactly one tag of the form:
[TOOL_CALL:<tool_name>:<json_arguments>]
The tag must use the tool name verbatim and a single JSON object for the
arguments. Emit at most one tag per reply. If no tool is needed, reply
normally without a tag.`

func (c *Composer) composeTerse() string {
	var sb strings.Builder
	sb.WriteString("You are a capable assistant with access to the following tools.\n\n")
	sb.WriteString("Tools:\n")
	for _, def := range c.catalog.Definitions() {
		fmt.Fprintf(&sb, "- %s: %s\n  arguments: %s\n", def.Name, def.Description, schemaLine(def))
	}
	sb.WriteString("\n")
	sb.WriteString(invocationGrammar)
	return sb.String()
}

func (c *Composer) composeWorkedExamples() string {
	var sb strings.Builder
	sb.WriteString("You are a capable assistant. You can perform actions for the user by emitting a tool tag.\n\n")
	sb.WriteString(invocationGrammar)
	sb.WriteString("\n\nAvailable tools:\n")
	for _, def := range c.catalog.Definitions() {
		fmt.Fprintf(&sb, "- %s: %s\n  arguments: %s\n", def.Name, def.Description, schemaLine(def))
	}

	sb.WriteString("\nExamples:\n")
	for _, category := range c.categories() {
		for _, ex := range categoryExamples[category] {
			if _, ok := c.catalog.Lookup(ex.tool); !ok {
				continue
			}
			fmt.Fprintf(&sb, "\nUser: %s\nAssistant: %s [TOOL_CALL:%s:%s]\n", ex.user, ex.lead, ex.tool, ex.args)
		}
	}

	return sb.String()
}

// schemaLine renders one tool's argument schema as a stable JSON object.
func schemaLine(def *toolcall.Definition) string {
	names := make([]string, 0, len(def.Params))
	for name := range def.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		spec := def.Params[name]
		requirement := "optional"
		if spec.Required {
			requirement = "required"
		}
		encoded, _ := json.Marshal(name)
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", encoded, spec.Type, requirement))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (c *Composer) categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, def := range c.catalog.Definitions() {
		if def.Category == "" || seen[def.Category] {
			continue
		}
		seen[def.Category] = true
		out = append(out, def.Category)
	}
	return out
}

type workedExample struct {
	user string
	lead string
	tool string
	args string
}

// Worked examples per tool category, three per category, used by the
// pattern-matching dialect. Argument JSON here must stay schema-valid
// against the default catalog.
var categoryExamples = map[string][]workedExample{
	"list": {
		{"Add bread to the shopping list", "Adding it now.", "add_to_list", `{"list":"shopping","item":"bread"}`},
		{"Put batteries on the hardware list", "Sure.", "add_to_list", `{"list":"hardware","item":"batteries"}`},
		{"Can you add milk to my list?", "Of course.", "add_to_list", `{"list":"shopping","item":"milk"}`},
	},
	"calendar": {
		{"Schedule a dentist appointment on Tuesday at 9am", "Booking it.", "create_event", `{"title":"dentist appointment","when":"Tuesday 9am"}`},
		{"Remind me to call mom at 6pm", "Will do.", "create_event", `{"title":"call mom","when":"6pm"}`},
		{"Plan a team lunch on Friday", "Setting it up.", "create_event", `{"title":"team lunch","when":"Friday"}`},
	},
	"memory": {
		{"My favorite color is green", "Noted.", "store_self_fact", `{"key":"favorite_color","value":"green"}`},
		{"What is my favorite color?", "Let me check.", "get_self_info", `{"key":"favorite_color"}`},
		{"Remember that my wifi password is hunter2", "Saved.", "store_self_fact", `{"key":"wifi_password","value":"hunter2"}`},
	},
	"people": {
		{"Who is Alice?", "Looking her up.", "find_person", `{"name":"Alice"}`},
		{"Find Bob's details", "One moment.", "find_person", `{"name":"Bob"}`},
		{"Look up my contact Carol", "Searching.", "find_person", `{"name":"Carol"}`},
	},
}
