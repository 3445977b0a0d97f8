package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_CompoundDifferentCategories(t *testing.T) {
	d := NewDecomposer(4)

	tasks := d.Split("Plan a dinner party Friday and add wine to the shopping list")
	require.Len(t, tasks, 2)
	assert.Equal(t, "Plan a dinner party Friday", tasks[0].Fragment)
	assert.Equal(t, "add wine to the shopping list", tasks[1].Fragment)
	assert.Empty(t, tasks[0].DependsOn)
	assert.Empty(t, tasks[1].DependsOn)
}

// "and" joining objects of a single action must not split.
func TestSplit_ConjunctionInsideOneAction(t *testing.T) {
	d := NewDecomposer(4)

	assert.Nil(t, d.Split("Add bread and milk to my shopping list"))
}

func TestSplit_SimpleUtteranceNotCompound(t *testing.T) {
	d := NewDecomposer(4)

	assert.Nil(t, d.Split("Add bread to shopping list"))
	assert.Nil(t, d.Split("What is my favorite food?"))
	assert.Nil(t, d.Split("Tell me a joke"))
}

// Same category on both sides is treated as one request, not compound.
func TestSplit_SameCategoryNotCompound(t *testing.T) {
	d := NewDecomposer(4)

	assert.Nil(t, d.Split("Add bread to my shopping list and add milk to my shopping list"))
}

// A "then" boundary yields an ordering dependency on the previous task.
func TestSplit_ThenIntroducesDependency(t *testing.T) {
	d := NewDecomposer(4)

	tasks := d.Split("Add milk to my shopping list, then remind me to buy it at 5pm")
	require.Len(t, tasks, 2)
	assert.Empty(t, tasks[0].DependsOn)
	assert.Equal(t, []string{tasks[0].ID}, tasks[1].DependsOn)
}

// Overflow clauses fold into the last sub-task so width stays capped.
func TestSplit_CapsSubTaskCount(t *testing.T) {
	d := NewDecomposer(2)

	tasks := d.Split("Plan a dinner party Friday and add wine to the shopping list and remind me to buy flowers at noon")
	require.Len(t, tasks, 2)
	assert.Contains(t, tasks[1].Fragment, "flowers")
}

func TestSplitOrWhole_WrapsSimpleUtterance(t *testing.T) {
	d := NewDecomposer(4)

	tasks := d.SplitOrWhole("Add bread to shopping list")
	require.Len(t, tasks, 1)
	assert.Equal(t, "Add bread to shopping list", tasks[0].Fragment)
}

func TestSplit_Deterministic(t *testing.T) {
	d := NewDecomposer(4)
	utterance := "Plan a dinner party Friday and add wine to the shopping list"

	first := d.Split(utterance)
	second := d.Split(utterance)
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Fragment, second[i].Fragment)
		assert.Equal(t, first[i].DependsOn, second[i].DependsOn)
	}
}
