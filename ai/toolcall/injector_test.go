package toolcall

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/parley/ai/routing"
)

func TestTryInject_AddToList(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	inv := inj.TryInject("Add bread to shopping list", routing.ClassToolUsing)
	require.NotNil(t, inv)
	assert.Equal(t, "add_to_list", inv.Tool)
	assert.Equal(t, "shopping", inv.Arguments["list"])
	assert.Equal(t, "bread", inv.Arguments["item"])
	assert.Equal(t, SourceInjected, inv.Source)
}

func TestTryInject_AddToList_DefaultList(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	inv := inj.TryInject("put milk on the list", routing.ClassToolUsing)
	require.NotNil(t, inv)
	assert.Equal(t, "shopping", inv.Arguments["list"])
	assert.Equal(t, "milk", inv.Arguments["item"])
}

func TestTryInject_StoreSelfFact(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	inv := inj.TryInject("My favorite food is pizza", routing.ClassToolUsing)
	require.NotNil(t, inv)
	assert.Equal(t, "store_self_fact", inv.Tool)
	assert.Equal(t, "favorite_food", inv.Arguments["key"])
	assert.Equal(t, "pizza", inv.Arguments["value"])
}

func TestTryInject_GetSelfInfo_MemoryClass(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	inv := inj.TryInject("What is my favorite food?", routing.ClassMemory)
	require.NotNil(t, inv)
	assert.Equal(t, "get_self_info", inv.Tool)
	assert.Equal(t, "favorite_food", inv.Arguments["key"])
}

func TestTryInject_CreateEvent(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	inv := inj.TryInject("remind me to water the plants at 6pm", routing.ClassToolUsing)
	require.NotNil(t, inv)
	assert.Equal(t, "create_event", inv.Tool)
	assert.Equal(t, "water the plants", inv.Arguments["title"])
	assert.Equal(t, "6pm", inv.Arguments["when"])
}

// The pattern set is high precision: loose phrasing does not inject.
func TestTryInject_ConservativeNoMatch(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	for _, input := range []string{
		"maybe we should get bread sometime",
		"I love pizza",
		"tell me about shopping lists",
		"what do you think my favorite food might say about me",
	} {
		assert.Nil(t, inj.TryInject(input, routing.ClassToolUsing), "input: %s", input)
	}
}

// Store-fact rules never fire for non-tool-using classes.
func TestTryInject_ClassGate(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	assert.Nil(t, inj.TryInject("Add bread to shopping list", routing.ClassConversational))
	assert.Nil(t, inj.TryInject("My favorite food is pizza", routing.ClassMemory))
}

// Same utterance, same tool and arguments, every time.
func TestTryInject_Deterministic(t *testing.T) {
	inj := NewInjector(newTestCatalog(t))

	first := inj.TryInject("Add bread to shopping list", routing.ClassToolUsing)
	require.NotNil(t, first)
	for i := 0; i < 5; i++ {
		again := inj.TryInject("Add bread to shopping list", routing.ClassToolUsing)
		require.NotNil(t, again)
		assert.Equal(t, first.Tool, again.Tool)
		assert.Equal(t, first.Arguments, again.Arguments)
	}
}

// Rules whose tool is missing from the catalog are skipped.
func TestTryInject_MissingToolSkipsRule(t *testing.T) {
	c, err := NewCatalog([]*Definition{{
		Name:     "find_person",
		Endpoint: "http://people.local/rpc/find",
		Params:   map[string]ParamSpec{"name": {Type: "string", Required: true}},
	}})
	require.NoError(t, err)
	inj := NewInjector(c)

	assert.Nil(t, inj.TryInject("Add bread to shopping list", routing.ClassToolUsing))
}
