package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Media(t *testing.T) {
	c := NewClassifier()

	result := c.Classify("what is in this picture?", true)
	assert.Equal(t, ClassMultimodal, result.Class)
	assert.Equal(t, float32(1.0), result.Confidence)
}

func TestClassify_ToolUsing(t *testing.T) {
	c := NewClassifier()

	testCases := []struct {
		input string
	}{
		{"Add bread to the shopping list"},
		{"add milk to my grocery list"},
		{"Schedule a meeting with Bob tomorrow"},
		{"remind me to water the plants"},
		{"delete the dentist appointment"},
		{"My favorite food is pizza"},
		{"my favourite colour is green"},
		{"Plan a dinner party Friday"},
	}

	for _, tc := range testCases {
		result := c.Classify(tc.input, false)
		assert.Equal(t, ClassToolUsing, result.Class, "input: %s", tc.input)
		assert.GreaterOrEqual(t, result.Confidence, float32(0.6), "input: %s", tc.input)
	}
}

func TestClassify_Memory(t *testing.T) {
	c := NewClassifier()

	testCases := []string{
		"What is my favorite food?",
		"what's my wifi password",
		"Who is Alice?",
		"What did I say about the trip last week?",
		"Do you remember where I parked?",
	}

	for _, input := range testCases {
		result := c.Classify(input, false)
		assert.Equal(t, ClassMemory, result.Class, "input: %s", input)
	}
}

func TestClassify_DefaultConversational(t *testing.T) {
	c := NewClassifier()

	result := c.Classify("hello there, how are you today?", false)
	assert.Equal(t, ClassConversational, result.Class)
	assert.LessOrEqual(t, result.Confidence, float32(0.5))
}

// Tool-using takes priority over memory when both lexicons match.
func TestClassify_PriorityOrder(t *testing.T) {
	c := NewClassifier()

	result := c.Classify("remind me to remember the milk", false)
	assert.Equal(t, ClassToolUsing, result.Class)

	// Media beats everything.
	result = c.Classify("add bread to the shopping list", true)
	assert.Equal(t, ClassMultimodal, result.Class)
}

func TestClassify_Deterministic(t *testing.T) {
	c := NewClassifier()

	first := c.Classify("Add bread to shopping list", false)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, c.Classify("Add bread to shopping list", false))
	}
}

func TestClassify_ConfidenceCap(t *testing.T) {
	c := NewClassifier()

	// Stacked action verbs should not push confidence past the cap.
	result := c.Classify("create, schedule, update and delete things, remind me, add it to the list", false)
	assert.LessOrEqual(t, result.Confidence, float32(0.95))
}

func TestAllClasses(t *testing.T) {
	classes := AllClasses()
	require.Len(t, classes, 4)
	assert.Contains(t, classes, ClassConversational)
	assert.Contains(t, classes, ClassToolUsing)
	assert.Contains(t, classes, ClassMemory)
	assert.Contains(t, classes, ClassMultimodal)
}
