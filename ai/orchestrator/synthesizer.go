package orchestrator

import (
	"fmt"
	"strings"

	"github.com/hrygo/parley/ai/toolcall"
)

// fallbackReply is the reply of last resort. Every turn produces some
// reply; a raw error never reaches the caller.
const fallbackReply = "Sorry, I wasn't able to put together a full answer to that."

// Synthesizer turns tool outcomes and sub-task results into the
// user-facing reply text.
type Synthesizer struct{}

func NewSynthesizer() *Synthesizer {
	return &Synthesizer{}
}

// SingleShot assembles the final reply of a single-shot turn from the
// model's prose and the tool outcome, if any. The prose is used
// verbatim: it has already been streamed as deltas, and the reply must
// equal their concatenation byte for byte.
func (s *Synthesizer) SingleShot(prose string, result *toolcall.Result) string {
	outcome := s.Outcome(result)

	switch {
	case prose != "" && outcome != "":
		return prose + "\n\n" + outcome
	case prose != "":
		return prose
	case outcome != "":
		return outcome
	default:
		return fallbackReply
	}
}

// Outcome renders a tool result in natural language. Failures are
// always recovered into an explanation, never surfaced as errors.
func (s *Synthesizer) Outcome(result *toolcall.Result) string {
	if result == nil {
		return ""
	}

	inv := result.Invocation
	if result.Success {
		return renderSuccess(inv, result.Payload)
	}

	switch result.ErrorKind {
	case toolcall.ErrorInvalidArguments:
		return fmt.Sprintf("I tried to use %s, but the request was missing some required details.", humanizeTool(inv.Tool))
	case toolcall.ErrorRemoteRejected:
		if result.Message != "" {
			return fmt.Sprintf("The %s service couldn't do that: %s", humanizeTool(inv.Tool), result.Message)
		}
		return fmt.Sprintf("The %s service couldn't do that.", humanizeTool(inv.Tool))
	default:
		return fmt.Sprintf("I couldn't reach the %s service, so that part didn't happen.", humanizeTool(inv.Tool))
	}
}

func renderSuccess(inv *toolcall.Invocation, payload map[string]any) string {
	if msg, ok := payload["message"].(string); ok && msg != "" {
		return msg
	}

	switch inv.Tool {
	case "add_to_list":
		item, list := argString(inv, "item"), argString(inv, "list")
		if item != "" && list != "" {
			return fmt.Sprintf("Added %s to your %s list.", item, list)
		}
	case "store_self_fact":
		key, value := argString(inv, "key"), argString(inv, "value")
		if key != "" && value != "" {
			return fmt.Sprintf("Got it, I'll remember that your %s is %s.", humanizeKey(key), value)
		}
	case "get_self_info":
		if v, ok := payload["value"]; ok {
			return fmt.Sprintf("Your %s is %v.", humanizeKey(argString(inv, "key")), v)
		}
	case "create_event":
		title := argString(inv, "title")
		if title != "" {
			return fmt.Sprintf("I've set a reminder to %s.", title)
		}
	}

	if v, ok := payload["value"]; ok {
		return fmt.Sprintf("%v", v)
	}
	return fmt.Sprintf("Done, %s completed successfully.", humanizeTool(inv.Tool))
}

// Combined assembles the final reply of a decomposed turn, referencing
// every sub-task in declaration order. Failed and skipped sub-tasks
// contribute a partial-result line rather than failing the whole reply.
func (s *Synthesizer) Combined(tasks []*SubTask) string {
	var parts []string
	for _, st := range tasks {
		switch st.Status() {
		case SubTaskCompleted:
			if turn := st.Turn(); turn != nil && turn.FinalReply != "" {
				parts = append(parts, turn.FinalReply)
			}
		default:
			parts = append(parts, fmt.Sprintf("I could not complete this part: %q.", st.Fragment))
		}
	}
	if len(parts) == 0 {
		return fallbackReply
	}
	return strings.Join(parts, "\n\n")
}

func argString(inv *toolcall.Invocation, key string) string {
	v, _ := inv.Arguments[key].(string)
	return v
}

func humanizeKey(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

func humanizeTool(tool string) string {
	return strings.ReplaceAll(tool, "_", " ")
}
