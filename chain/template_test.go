package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestResolveStrict_InputBag(t *testing.T) {
	inputs := map[string]interface{}{"topic": "cats"}

	resolved := ResolveStrict("Summarize: {{topic}}", inputs, nil, nil)
	assert.Equal(t, "Summarize: cats", resolved)
}

func TestResolveStrict_StepOutputMapping(t *testing.T) {
	mapping := map[string]string{"prior": "prompt_step-1.output"}
	previousOutputs := map[string]string{"step-1": "a summary of cats"}

	resolved := ResolveStrict("Expand: {{prior}}", nil, previousOutputs, mapping)
	assert.Equal(t, "Expand: a summary of cats", resolved)
}

func TestResolveStrict_UnexecutedStepLeavesPlaceholder(t *testing.T) {
	mapping := map[string]string{"prior": "prompt_step-9.output"}

	resolved := ResolveStrict("Expand: {{prior}}", nil, nil, mapping)
	assert.Equal(t, "Expand: {{prior}}", resolved)
}

func TestResolveStrictChecked_UnexecutedStepErrors(t *testing.T) {
	mapping := map[string]string{"prior": "prompt_step-9.output"}

	_, err := ResolveStrictChecked("Expand: {{prior}}", nil, nil, mapping)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prior")
	assert.Contains(t, err.Error(), "step-9")
}

func TestResolveStrictChecked_ExecutedStepSucceeds(t *testing.T) {
	mapping := map[string]string{"prior": "prompt_step-1.output"}
	previousOutputs := map[string]string{"step-1": "done"}

	resolved, err := ResolveStrictChecked("Got: {{prior}}", nil, previousOutputs, mapping)
	require.NoError(t, err)
	assert.Equal(t, "Got: done", resolved)
}

func TestResolveStrict_DotPathMapping(t *testing.T) {
	inputs := map[string]interface{}{
		"user": map[string]interface{}{"first": "Ada"},
	}
	mapping := map[string]string{"name": "inputs.user.first"}

	resolved := ResolveStrict("Hello {{name}}", inputs, nil, mapping)
	assert.Equal(t, "Hello Ada", resolved)
}

func TestResolveStrict_DotPathMissingFallsThrough(t *testing.T) {
	inputs := map[string]interface{}{
		"user": map[string]interface{}{"first": "Ada"},
		"name": "fallback",
	}
	mapping := map[string]string{"name": "inputs.user.last"}

	resolved := ResolveStrict("Hello {{name}}", inputs, nil, mapping)
	assert.Equal(t, "Hello fallback", resolved)
}

func TestResolveStrict_UnknownPlaceholderUntouched(t *testing.T) {
	resolved := ResolveStrict("Hello {{who}}", map[string]interface{}{}, nil, nil)
	assert.Equal(t, "Hello {{who}}", resolved)
}

func TestResolveStrict_NilValueUntouched(t *testing.T) {
	inputs := map[string]interface{}{"who": nil}

	resolved := ResolveStrict("Hello {{who}}", inputs, nil, nil)
	assert.Equal(t, "Hello {{who}}", resolved)
}

func TestResolveStrict_NonStringValues(t *testing.T) {
	inputs := map[string]interface{}{
		"count":   3,
		"ratio":   0.5,
		"enabled": true,
		"tags":    []string{"a", "b"},
	}

	resolved := ResolveStrict("{{count}} {{ratio}} {{enabled}} {{tags}}", inputs, nil, nil)
	assert.Equal(t, `3 0.5 true ["a","b"]`, resolved)
}

func TestResolveStrict_Deterministic(t *testing.T) {
	inputs := map[string]interface{}{"a": "x", "b": "y"}
	template := "{{a}}-{{b}}-{{a}}"

	first := ResolveStrict(template, inputs, nil, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ResolveStrict(template, inputs, nil, nil))
	}
	assert.Equal(t, "x-y-x", first)
}

func TestLenientResolver_BothBraceForms(t *testing.T) {
	r := NewLenientResolver(zap.NewNop().Sugar())
	vars := map[string]string{
		"prompt_1_output": "first result",
		"draft_output":    "second result",
	}

	resolved := r.Resolve("A: {{prompt_1_output}} B: {draft_output}", vars)
	assert.Equal(t, "A: first result B: second result", resolved)
}

func TestLenientResolver_UnknownNameUntouched(t *testing.T) {
	r := NewLenientResolver(zap.NewNop().Sugar())

	resolved := r.Resolve("keep {missing} and {{missing}}", map[string]string{})
	assert.Equal(t, "keep {missing} and {{missing}}", resolved)
}

func TestLenientResolver_InvalidNameUntouched(t *testing.T) {
	r := NewLenientResolver(zap.NewNop().Sugar())
	vars := map[string]string{"ok": "yes"}

	resolved := r.Resolve(`{"json": true} {has space} {ok}`, vars)
	assert.Equal(t, `{"json": true} {has space} yes`, resolved)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "draft_summary", Slug("Draft Summary"))
	assert.Equal(t, "step_2", Slug("  Step 2! "))
	assert.Equal(t, "", Slug("!!!"))
}
