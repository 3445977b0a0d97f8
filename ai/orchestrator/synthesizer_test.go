package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/parley/ai/toolcall"
)

func TestOutcome_SuccessRendering(t *testing.T) {
	s := NewSynthesizer()

	tests := []struct {
		name   string
		result *toolcall.Result
		want   string
	}{
		{
			name: "add to list",
			result: &toolcall.Result{
				Invocation: toolcall.NewInvocation("add_to_list",
					map[string]any{"list": "shopping", "item": "bread"}, toolcall.SourceInjected),
				Success: true,
				Payload: map[string]any{},
			},
			want: "Added bread to your shopping list.",
		},
		{
			name: "store fact",
			result: &toolcall.Result{
				Invocation: toolcall.NewInvocation("store_self_fact",
					map[string]any{"key": "favorite_food", "value": "pizza"}, toolcall.SourceInjected),
				Success: true,
			},
			want: "Got it, I'll remember that your favorite food is pizza.",
		},
		{
			name: "recall fact",
			result: &toolcall.Result{
				Invocation: toolcall.NewInvocation("get_self_info",
					map[string]any{"key": "favorite_food"}, toolcall.SourceInjected),
				Success: true,
				Payload: map[string]any{"value": "pizza"},
			},
			want: "Your favorite food is pizza.",
		},
		{
			name: "remote message preferred",
			result: &toolcall.Result{
				Invocation: toolcall.NewInvocation("add_to_list",
					map[string]any{"list": "shopping", "item": "bread"}, toolcall.SourceModel),
				Success: true,
				Payload: map[string]any{"message": "Bread is already on the list."},
			},
			want: "Bread is already on the list.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Outcome(tt.result))
		})
	}
}

func TestOutcome_FailuresBecomeExplanations(t *testing.T) {
	s := NewSynthesizer()
	inv := toolcall.NewInvocation("add_to_list",
		map[string]any{"item": "bread"}, toolcall.SourceInjected)

	rejected := &toolcall.Result{
		Invocation: inv,
		ErrorKind:  toolcall.ErrorRemoteRejected,
		Message:    "list not found",
	}
	assert.Contains(t, s.Outcome(rejected), "list not found")

	failed := &toolcall.Result{Invocation: inv, ErrorKind: toolcall.ErrorExecutionFailed}
	assert.Contains(t, s.Outcome(failed), "couldn't reach")

	invalid := &toolcall.Result{Invocation: inv, ErrorKind: toolcall.ErrorInvalidArguments}
	assert.Contains(t, s.Outcome(invalid), "missing")
}

func TestSingleShot_FallbackWhenEmpty(t *testing.T) {
	s := NewSynthesizer()
	assert.Equal(t, fallbackReply, s.SingleShot("", nil))
	assert.Equal(t, "Just chatting.", s.SingleShot("Just chatting.", nil))
}

// The prose has already been streamed verbatim, so the assembled reply
// must carry it unmodified, surrounding whitespace included.
func TestSingleShot_ProseVerbatim(t *testing.T) {
	s := NewSynthesizer()
	result := &toolcall.Result{
		Invocation: toolcall.NewInvocation("add_to_list",
			map[string]any{"list": "shopping", "item": "bread"}, toolcall.SourceModel),
		Success: true,
	}
	assert.Equal(t, "On it. \n\nAdded bread to your shopping list.", s.SingleShot("On it. ", result))
	assert.Equal(t, "On it. ", s.SingleShot("On it. ", nil))
}

func TestCombined_ReferencesEverySubTask(t *testing.T) {
	s := NewSynthesizer()

	done := NewSubTask("sub_1", "add wine to the shopping list", nil)
	doneTurn := &Turn{FinalReply: "Added wine to your shopping list."}
	done.Complete(doneTurn)

	failed := NewSubTask("sub_2", "plan a dinner party", nil)
	failed.Fail("backend timeout")

	reply := s.Combined([]*SubTask{done, failed})
	assert.Contains(t, reply, "Added wine to your shopping list.")
	assert.Contains(t, reply, "could not complete")
	assert.Contains(t, reply, "plan a dinner party")
}
