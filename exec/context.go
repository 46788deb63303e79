package exec

import (
	"fmt"

	"github.com/archonhq/archon/ai"
	"github.com/archonhq/archon/chain"
)

// ChainContext is the in-memory state of one chain run: prior step outputs,
// the accumulated conversation turns, and the flat variable map used by the
// worker's substitution grammar. It is owned exclusively by one runner
// invocation and is never persisted as a unit; only step outputs reach the
// database, through their StepResult rows.
type ChainContext struct {
	Inputs map[string]interface{}

	maxTurns        int
	previousOutputs map[string]string
	messages        []ai.Message
	stepVars        map[string]string
}

// NewChainContext creates the context for one run. maxTurns bounds the
// conversation memory to the newest N user/assistant pairs; 0 keeps all.
func NewChainContext(inputs map[string]interface{}, maxTurns int) *ChainContext {
	if inputs == nil {
		inputs = map[string]interface{}{}
	}
	return &ChainContext{
		Inputs:          inputs,
		maxTurns:        maxTurns,
		previousOutputs: map[string]string{},
		stepVars:        map[string]string{},
	}
}

// PreviousOutputs returns the step-id keyed output map for strict substitution
func (c *ChainContext) PreviousOutputs() map[string]string {
	return c.previousOutputs
}

// RecordOutput folds a completed step's output into the context. ordinal is
// the step's 1-based position in the run, used for the worker variable names
// prompt_<ordinal>_output and <slug(name)>_output.
func (c *ChainContext) RecordOutput(step *chain.Prompt, ordinal int, output string) {
	c.previousOutputs[step.ID] = output
	c.stepVars[fmt.Sprintf("prompt_%d_output", ordinal)] = output
	if slug := chain.Slug(step.Name); slug != "" {
		c.stepVars[slug+"_output"] = output
	}
}

// AppendTurn adds one user/assistant pair to the conversation memory,
// dropping the oldest pairs beyond the configured bound.
func (c *ChainContext) AppendTurn(userContent, assistantContent string) {
	c.messages = append(c.messages,
		ai.Message{Role: ai.RoleUser, Content: userContent},
		ai.Message{Role: ai.RoleAssistant, Content: assistantContent},
	)
	if c.maxTurns > 0 && len(c.messages) > c.maxTurns*2 {
		c.messages = c.messages[len(c.messages)-c.maxTurns*2:]
	}
}

// Messages returns a copy of the accumulated conversation turns
func (c *ChainContext) Messages() []ai.Message {
	out := make([]ai.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Vars builds the flat variable map for the worker's lenient grammar: the
// input bag stringified, overlaid with the step output variables.
func (c *ChainContext) Vars() map[string]string {
	vars := make(map[string]string, len(c.Inputs)+len(c.stepVars))
	for name, value := range c.Inputs {
		if value == nil {
			continue
		}
		vars[name] = chain.String(value)
	}
	for name, value := range c.stepVars {
		vars[name] = value
	}
	return vars
}
